package sqldb

import (
	"context"
	"errors"
)

type Client interface {
	Init() error
	Close() error
	DBHandle() Handle
	Handle // Methods required for Handle are also required, so, promote it
	Conf() *Conf
	DSN() string
	Ping(ctx context.Context) error
	BeginTx(ctx context.Context) (Tx, error)

	// Placeholder returns the i-th (1-basis) bind placeholder of the dialect
	Placeholder(i int) string
	// Placeholders returns n comma-joined placeholders starting at start (default 1)
	Placeholders(n int, start ...int) string
	// RawStmt returns a statement loaded from the registered `sql` dirs, already in the dialect
	RawStmt(group string, name string) (string, bool)
}

// ErrNoRows is returned by Row.Scan when the query selected nothing
var ErrNoRows = errors.New("sqldb: no rows in result set")
