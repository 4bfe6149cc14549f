package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/zeptools/gw-certs/archive"
	"github.com/zeptools/gw-certs/documents"
	"github.com/zeptools/gw-certs/handlers"
	"github.com/zeptools/gw-certs/jobs"
	"github.com/zeptools/gw-certs/orchestrator"
	"github.com/zeptools/gw-certs/pdfs"
	"github.com/zeptools/gw-certs/pdfs/impls/fpdf"
	"github.com/zeptools/gw-certs/records"
	"github.com/zeptools/gw-certs/render"
	"github.com/zeptools/gw-certs/schedjobs"
	"github.com/zeptools/gw-certs/sec"
	"github.com/zeptools/gw-certs/storages/gcs"
	"github.com/zeptools/gw-certs/throttle"
)

// CertsConf from config/.certs.json
type CertsConf struct {
	SigningKey   string                          `json:"signing_key"` // HS256 key of download links, 32+ bytes
	JobTTLStr    string                          `json:"job_ttl"`
	JobTTL       time.Duration                   `json:"-"`
	RecordDB     string                          `json:"record_db"`    // name in .sql-databases.json. Empty uses RecordsFile
	RecordsFile  string                          `json:"records_file"` // JSON array of records for a memory store, relative to AppRoot
	Documents    documents.Conf                  `json:"documents"`
	Backgrounds  render.BackgroundConf           `json:"backgrounds"`
	Archive      archive.Conf                    `json:"archive"`
	Orchestrator orchestrator.Conf               `json:"orchestrator"`
	Scheduler    schedjobs.Conf                  `json:"scheduler"`
	Throttle     map[string]*throttle.BucketConf `json:"throttle"` // group id -> bucket conf
}

func (c *CertsConf) Normalize() error {
	if c.JobTTLStr != "" {
		d, err := time.ParseDuration(c.JobTTLStr)
		if err != nil {
			return fmt.Errorf("job_ttl: %w", err)
		}
		c.JobTTL = d
	}
	if c.JobTTL <= 0 {
		c.JobTTL = jobs.DefaultTTL
	}
	if len(c.SigningKey) < sec.MinSigningKeyLen {
		return fmt.Errorf("signing_key must be at least %d bytes", sec.MinSigningKeyLen)
	}
	if c.Documents.OutputDir == "" {
		return errors.New("documents.output_dir required")
	}
	if err := c.Backgrounds.Normalize(); err != nil {
		return err
	}
	if err := c.Archive.Normalize(); err != nil {
		return err
	}
	if err := c.Orchestrator.Normalize(); err != nil {
		return err
	}
	if err := c.Scheduler.Normalize(); err != nil {
		return err
	}
	for id, bc := range c.Throttle {
		if err := bc.Normalize(); err != nil {
			return fmt.Errorf("throttle %q: %w", id, err)
		}
	}
	return nil
}

func (c *Core) LoadCertsConf() error {
	if err := c.loadConfFile(".certs.json", &c.CertsConf); err != nil {
		return err
	}
	return c.CertsConf.Normalize()
}

// PrepareCerts builds the rendering stack: records -> producer -> assembler -> orchestrator.
// Prerequisites: BackendKVDBClient, JobScheduler, LoadStorageConf, LoadCertsConf, PrepareSQLDatabases when RecordDB is set
func (c *Core) PrepareCerts() error {
	if c.BackendKVDBClient == nil {
		return errors.New("backend KVDB client not ready")
	}
	if c.JobScheduler == nil {
		return errors.New("job scheduler not ready")
	}
	cc := &c.CertsConf
	for _, dir := range []string{cc.Documents.OutputDir, cc.Archive.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	store, err := c.recordStore()
	if err != nil {
		return err
	}
	c.Records = store

	renderer := render.NewRenderer(
		func() pdfs.Writer { return fpdf.New() },
		render.NewBackgrounds(c.BackendHttpClient, cc.Backgrounds),
	)
	c.Producer = documents.NewProducer(store, renderer, cc.Documents)

	if c.Signer, err = sec.NewDownloadSigner([]byte(cc.SigningKey), c.AppName); err != nil {
		return err
	}
	switch c.StorageConf.Type {
	case "gcs":
		if c.Publisher, err = gcs.NewPublisher(c.RootCtx, c.StorageConf); err != nil {
			return err
		}
	default:
		c.Publisher = &archive.LocalPublisher{Signer: c.Signer, BaseURL: c.BaseURL, TTL: c.StorageConf.SignedURLTTL}
	}
	c.Assembler = archive.NewAssembler(cc.Archive, c.BackendKVDBClient, c.Publisher, c.JobScheduler)
	if swept, err := c.Assembler.Sweep(c.RootCtx); err != nil {
		log.Printf("[WARN][CORE] archive sweep: %v", err)
	} else if swept > 0 {
		log.Printf("[INFO][CORE] swept %d expired archives left by a previous run", swept)
	}
	c.JobScheduler.AddCronJob(c.Assembler.SweepCronJob())

	repo := jobs.NewKVRepository(c.BackendKVDBClient, cc.JobTTL)
	c.Orchestrator = orchestrator.New(cc.Orchestrator, repo, c.Producer, c.Assembler, c.JobScheduler)
	c.JobScheduler.AddCronJob(c.Orchestrator.ReconcileCronJob())

	n, err := c.Orchestrator.Resume(c.RootCtx)
	if err != nil {
		return fmt.Errorf("resume active jobs: %w", err)
	}
	if n > 0 {
		log.Printf("[INFO][CORE] resumed %d tasks of active jobs", n)
	}
	return nil
}

func (c *Core) recordStore() (records.Store, error) {
	cc := &c.CertsConf
	if cc.RecordDB != "" {
		client, ok := c.BackendSQLDBClients[cc.RecordDB]
		if !ok {
			return nil, fmt.Errorf("record_db %q is not a configured SQL database", cc.RecordDB)
		}
		return records.NewSQLStore(client), nil
	}
	store := records.NewMemoryStore()
	if cc.RecordsFile == "" {
		log.Println("[WARN][CORE] no record source configured, using an empty memory store")
		return store, nil
	}
	data, err := os.ReadFile(filepath.Join(c.AppRoot, cc.RecordsFile))
	if err != nil {
		return nil, err
	}
	var recs []*records.Record
	if err = json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%s: %w", cc.RecordsFile, err)
	}
	for _, r := range recs {
		store.Put(r)
	}
	log.Printf("[INFO][CORE] %d records loaded from %s", len(recs), cc.RecordsFile)
	return store, nil
}

// NewHandlers wires the HTTP handlers to the prepared stack
func (c *Core) NewHandlers() *handlers.Handlers {
	h := handlers.New(c.Orchestrator, c.Records, c.Producer, c.Signer, c.CertsConf.Archive.OutputDir)
	h.Throttle = c.ThrottleBucketStore
	h.Debug = c.DebugOpts.DebugResponses
	return h
}
