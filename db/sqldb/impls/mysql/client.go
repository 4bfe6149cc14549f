package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"

	_ "github.com/go-sql-driver/mysql" // side-effect
	"github.com/zeptools/gw-certs/db/sqldb"
)

const (
	DBType                   = "mysql"
	DefaultPlaceholderPrefix = '?'
)

var rawStmtStore = sqldb.NewRawStore()

type Client struct {
	Handle // [Embedded] for Promoted Methods
	conf   *sqldb.Conf
	dsn    string
}

// Ensure mysql.Client implements sqldb.Client interface
var _ sqldb.Client = (*Client)(nil)

// Register the mysql factory with sqldb.New
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
	var err error
	if c.conf.DSN != "" {
		c.dsn = c.conf.DSN
	} else {
		loc := c.conf.TZ
		if loc == "" {
			loc = "UTC"
		}
		c.dsn = fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=%s&sql_mode=ANSI_QUOTES",
			c.conf.User,
			c.conf.PW,
			c.conf.Host,
			c.conf.Port,
			c.conf.DB,
			url.QueryEscape(loc),
		)
	}
	if c.DB, err = sql.Open("mysql", c.dsn); err != nil {
		return err
	}
	maxOpen, lifetime := c.conf.PoolLimits()
	c.DB.SetConnMaxLifetime(lifetime)
	c.DB.SetMaxOpenConns(maxOpen)
	c.DB.SetMaxIdleConns(maxOpen)
	if err = c.DB.Ping(); err != nil {
		return err
	}
	log.Println("[INFO] mysql client initialized")
	return nil
}

func (c *Client) Close() error {
	if c.DB == nil {
		return nil
	}
	log.Println("[INFO] closing mysql client")
	err := c.DB.Close()
	if err != nil {
		return err
	}
	log.Println("[INFO] mysql client closed")
	return nil
}

func (c *Client) DBHandle() sqldb.Handle {
	return &Handle{DB: c.DB}
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
	return c.DB.PingContext(ctx)
}

func (c *Client) BeginTx(ctx context.Context) (sqldb.Tx, error) {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}
