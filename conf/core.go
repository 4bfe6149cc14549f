package conf

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/zeptools/gw-certs/archive"
	"github.com/zeptools/gw-certs/db"
	"github.com/zeptools/gw-certs/db/kvdb"
	"github.com/zeptools/gw-certs/db/kvdb/impls/memory"
	"github.com/zeptools/gw-certs/db/kvdb/impls/redis"
	"github.com/zeptools/gw-certs/db/sqldb"
	"github.com/zeptools/gw-certs/db/sqldb/impls/mysql"
	"github.com/zeptools/gw-certs/db/sqldb/impls/pgsql"
	"github.com/zeptools/gw-certs/documents"
	"github.com/zeptools/gw-certs/orchestrator"
	"github.com/zeptools/gw-certs/records"
	"github.com/zeptools/gw-certs/schedjobs"
	"github.com/zeptools/gw-certs/sec"
	"github.com/zeptools/gw-certs/storages"
	"github.com/zeptools/gw-certs/storages/gcs"
	"github.com/zeptools/gw-certs/svc"
	"github.com/zeptools/gw-certs/throttle"
	"github.com/zeptools/gw-certs/uds"
	"github.com/zeptools/gw-certs/web"
)

// Core - common config and the services built from it
type Core struct {
	AppName             string                        `json:"app_name"`
	Listen              string                        `json:"listen"`     // HTTP Server Listen IP:PORT Address
	Host                string                        `json:"host"`       // HTTP Host. Can be used to generate public url endpoints
	BaseURL             string                        `json:"base_url"`   // public URL prefix of download links. Default "https://"+Host
	UDSSocket           string                        `json:"uds_socket"` // admin socket path. Empty disables the UDS service
	DebugOpts           DebugOpts                     `json:"debug_opts"` // Debug Options
	AppRoot             string                        `json:"-"`          // Filled from compiled paths
	RootCtx             context.Context               `json:"-"`          // Global Context with RootCancel
	RootCancel          context.CancelFunc            `json:"-"`          // CancelFunc for RootCtx
	UDSService          *uds.Service                  `json:"-"`          // PrepareUDSService
	JobScheduler        *schedjobs.Scheduler          `json:"-"`          // PrepareJobScheduler
	WebService          *web.Service                  `json:"-"`          // PrepareWebService
	ThrottleBucketStore *throttle.BucketStore[string] `json:"-"`          // PrepareThrottleBucketStore
	StorageConf         storages.Conf                 `json:"-"`          // LoadStorageConf
	CertsConf           CertsConf                     `json:"-"`          // LoadCertsConf
	BackendHttpClient   *http.Client                  `json:"-"`          // for background image requests
	KVDBConf            kvdb.Conf                     `json:"-"`          // loadKVDBConf
	BackendKVDBClient   kvdb.Client                   `json:"-"`          // prepareKVDBClient
	SQLDBConfs          map[string]*sqldb.Conf        `json:"-"`          // loadSQLDBConfs
	BackendSQLDBClients map[string]sqldb.Client       `json:"-"`          // prepareSQLDBClients

	// PrepareCerts
	Records      records.Store              `json:"-"`
	Producer     *documents.Producer        `json:"-"`
	Signer       *sec.DownloadSigner        `json:"-"`
	Publisher    archive.Publisher          `json:"-"`
	Assembler    *archive.Assembler         `json:"-"`
	Orchestrator *orchestrator.Orchestrator `json:"-"`

	services []svc.Service // Services to Manage
	done     chan error
}

// BaseInit - 1st step for initialization
// 1. set AppRoot
// 2. load config/.core.json file
// 3. prepare base fields
// 4. Start ShutdownSignalListener
func (c *Core) BaseInit(appRoot string, rootCtx context.Context, rootCancel context.CancelFunc) error {
	c.AppRoot = appRoot
	if err := c.loadConfFile(".core.json", c); err != nil {
		return err
	}
	c.RootCtx = rootCtx
	c.RootCancel = rootCancel
	c.prepareDefaultFeatures()
	c.startShutdownSignalListener()
	return nil
}

func (c *Core) loadConfFile(name string, dst any) error {
	confFilePath := filepath.Join(c.AppRoot, "config", name)
	confBytes, err := os.ReadFile(confFilePath) // ([]byte, error)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(confBytes, dst); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (c *Core) prepareDefaultFeatures() {
	c.BackendHttpClient = &http.Client{}
	if c.BaseURL == "" && c.Host != "" {
		c.BaseURL = "https://" + c.Host
	}
}

func (c *Core) AddService(s svc.Service) {
	log.Printf("[INFO] adding service: %s", s.Name())
	c.services = append(c.services, s)
	log.Printf("[INFO] total services: %d", len(c.services))
}

func (c *Core) StartServices() error {
	c.done = make(chan error, len(c.services))
	for _, s := range c.services {
		err := s.Start()
		if err != nil {
			return fmt.Errorf("%s: %w", s.Name(), err)
		}
		go func(s svc.Service) {
			err := <-s.Done()
			c.done <- err
		}(s) // pass the loop var to the param. otherwise, they are captured inside goroutine lazily
	}
	return nil
}

func (c *Core) WaitServicesDone() error {
	for i := 0; i < len(c.services); i++ {
		if err := <-c.done; err != nil {
			return err
		}
	}
	return nil
}

func (c *Core) StopServices() {
	for _, s := range c.services {
		s.Stop()
	}
}

var once sync.Once

func (c *Core) startShutdownSignalListener() {
	once.Do(func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigs
			log.Printf("[INFO] got signal [%s]. shutting down app [%s] ...", sig, c.AppName)
			c.RootCancel() // broadcast to all child services via Context.Done()
		}()
	})
	log.Printf("[INFO][CORE] shutdown signal listener started")
}

func (c *Core) PrepareJobScheduler(conf schedjobs.Conf) {
	c.JobScheduler = schedjobs.NewScheduler(c.RootCtx, conf)
	c.AddService(c.JobScheduler)
}

func (c *Core) PrepareUDSService(sockPath string, cmdMap map[string]uds.CmdHnd) {
	c.UDSService = uds.NewService(c.RootCtx, sockPath, cmdMap)
	c.AddService(c.UDSService)
}

func (c *Core) PrepareWebService(addr string, router http.Handler) {
	c.WebService = web.NewService(c.RootCtx, addr, router)
	c.AddService(c.WebService)
}

// PrepareThrottleBucketStore registers one bucket group per configured group ID
func (c *Core) PrepareThrottleBucketStore(cleanupCycle time.Duration, cleanupOlderThan time.Duration, groups map[string]*throttle.BucketConf) {
	c.ThrottleBucketStore = throttle.NewBucketStore[string](c.RootCtx, cleanupCycle, cleanupOlderThan)
	for id, gconf := range groups {
		c.ThrottleBucketStore.SetBucketGroup(id, gconf)
	}
	c.AddService(c.ThrottleBucketStore)
}

func (c *Core) LoadStorageConf() error {
	if err := c.loadConfFile(".storages.json", &c.StorageConf); err != nil {
		return err
	}
	return c.StorageConf.Normalize()
}

func (c *Core) PrepareKVDatabase() error {
	// Load KV Database Config File
	err := c.loadKVDBConf()
	if err != nil {
		return err
	}
	if err = c.prepareKVDBClient(); err != nil {
		return err
	}
	return nil
}

func (c *Core) loadKVDBConf() error {
	return c.loadConfFile(".kv-databases.json", &c.KVDBConf)
}

func (c *Core) prepareKVDBClient() error {
	switch c.KVDBConf.Type {
	case "redis":
		c.BackendKVDBClient = &redis.Client{Conf: &c.KVDBConf}
	case "memory":
		// single process only; jobs do not survive a restart
		c.BackendKVDBClient = &memory.Client{Conf: &c.KVDBConf}
	default:
		return fmt.Errorf("%w: %q", kvdb.ErrUnsupportedType, c.KVDBConf.Type)
	}
	return c.BackendKVDBClient.Init()
}

func (c *Core) loadSQLDBConfs() error {
	c.SQLDBConfs = make(map[string]*sqldb.Conf)
	return c.loadConfFile(".sql-databases.json", &c.SQLDBConfs)
}

// prepareSQLDBClients - Build & Init SQL DB Clients
// Use after loadSQLDBConfs
func (c *Core) prepareSQLDBClients() error {
	c.BackendSQLDBClients = make(map[string]sqldb.Client)

	// Registering Supported Implementations
	pgsql.Register()
	mysql.Register()

	// Prepare New Clients
	for dbName, sqlDBConf := range c.SQLDBConfs {
		dbClient, err := sqldb.New(sqlDBConf.Type, sqlDBConf)
		if err != nil {
			return err
		}
		if err = dbClient.Init(); err != nil {
			return err
		}
		c.BackendSQLDBClients[dbName] = dbClient
	}
	return nil
}

// PrepareSQLDatabases for SQL DB Clients & RawSQL Stores, etc
// A missing config file means no SQL databases.
func (c *Core) PrepareSQLDatabases(ensureImports func()) error {
	// Load SQL Databases Config File
	err := c.loadSQLDBConfs()
	if os.IsNotExist(err) {
		log.Println("[INFO][CORE] no SQL databases configured")
		return nil
	}
	if err != nil {
		return err
	}
	DBTypesSet := make(map[string]struct{})
	for _, conf := range c.SQLDBConfs {
		DBTypesSet[conf.Type] = struct{}{}
	}
	if len(DBTypesSet) == 0 {
		return nil
	}

	// Prepare SQL DB Clients
	if err = c.prepareSQLDBClients(); err != nil {
		return err
	}

	// Load Raw Statements to Stores
	if ensureImports != nil {
		ensureImports()
	}
	if _, ok := DBTypesSet["mysql"]; ok {
		err = mysql.LoadRawStmtsToStore()
		if err != nil {
			return err
		}
	}
	if _, ok := DBTypesSet["pgsql"]; ok {
		err = pgsql.LoadRawStmtsToStore()
		if err != nil {
			return err
		}
	}
	return nil
}

// ResourceCleanUp closes every backend client; it keeps going past failures
func (c *Core) ResourceCleanUp() error {
	log.Println("[INFO] App Resource Cleaning Up...")
	var errs []error
	errs = append(errs, db.CloseClient[any]("kvdb", c.BackendKVDBClient))
	for name, sqlDBClient := range c.BackendSQLDBClients {
		errs = append(errs, db.CloseClient[sqldb.Handle](sqlDBClient.Conf().Type+":"+name, sqlDBClient))
	}
	if closer, ok := c.Publisher.(*gcs.Publisher); ok {
		if err := closer.Close(); err != nil {
			log.Printf("[WARN] Failed to Close gcs publisher: %v", err)
			errs = append(errs, err)
		}
	}
	log.Println("[INFO] App Resource Cleanup Complete")
	return errors.Join(errs...)
}
