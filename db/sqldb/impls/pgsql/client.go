package pgsql

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zeptools/gw-certs/db/sqldb"
)

const (
	DBType                   = "pgsql"
	DefaultPlaceholderPrefix = '$'
)

var rawStmtStore = sqldb.NewRawStore()

type Client struct {
	Handle // [Embedded] for Promoted Methods
	conf   *sqldb.Conf
	dsn    string
}

// Ensure pgsql.Client implements sqldb.Client interface
var _ sqldb.Client = (*Client)(nil)

// Register the pgsql factory with sqldb.New
func Register() {
	sqldb.RegisterFactory(DBType, func(conf *sqldb.Conf) (sqldb.Client, error) {
		return &Client{conf: conf}, nil
	})
}

// LoadRawStmtsToStore
// WARNING: Ensure required imports beforehand
func LoadRawStmtsToStore() error {
	return sqldb.LoadRawStmtsToStore(rawStmtStore, DBType, DefaultPlaceholderPrefix)
}

func (c *Client) Init() error {
	// DSN
	if c.conf.DSN != "" {
		c.dsn = c.conf.DSN
	} else {
		// NOTE: sslmode=disable is often used for local dev, adjust as needed.
		c.dsn = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=%s",
			c.conf.Host,
			c.conf.Port,
			c.conf.User,
			c.conf.PW,
			c.conf.DB,
			c.conf.TZ,
		)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Open
	err := c.open(ctx)
	if err != nil {
		return err
	}
	// Ping
	if err = c.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	log.Print("[INFO] pgsql client initialized")
	return nil
}

func (c *Client) open(ctx context.Context) error {
	config, err := pgxpool.ParseConfig(c.dsn)
	if err != nil {
		return fmt.Errorf("failed to parse pgx config: %w", err)
	}
	maxOpen, lifetime := c.conf.PoolLimits()
	config.MaxConns = int32(maxOpen)
	config.MinConns = 2
	config.MaxConnLifetime = lifetime
	c.Pool, err = pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to connect pgx Pool: %w", err)
	}
	return nil
}

func (c *Client) DBHandle() sqldb.Handle {
	return &Handle{Pool: c.Pool}
}

func (c *Client) Conf() *sqldb.Conf {
	return c.conf
}

func (c *Client) DSN() string {
	return c.dsn
}

func (c *Client) Placeholder(i int) string {
	return sqldb.Placeholder(DefaultPlaceholderPrefix, i)
}

func (c *Client) Placeholders(n int, start ...int) string {
	return sqldb.JoinPlaceholders(DefaultPlaceholderPrefix, n, start...)
}

func (c *Client) RawStmt(group string, name string) (string, bool) {
	return rawStmtStore.Get(sqldb.StoreGroupedStmtKey{Group: group, StmtName: name}.String())
}

func (c *Client) Ping(ctx context.Context) error {
	return c.Pool.Ping(ctx)
}

func (c *Client) Close() error {
	if c.Pool == nil {
		return nil
	}
	log.Println("[INFO] closing pgsql client")
	c.Pool.Close()
	log.Println("[INFO] pgsql client closed")
	return nil
}

func (c *Client) BeginTx(ctx context.Context) (sqldb.Tx, error) {
	if c.Pool == nil {
		return nil, fmt.Errorf("pgsql client not initialized")
	}
	tx, err := c.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction failed: %w", err)
	}
	return &Tx{tx: tx}, nil
}
