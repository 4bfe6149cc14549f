package mysql

import (
	"context"
	"database/sql"

	"github.com/zeptools/gw-certs/db/sqldb"
)

type Tx struct {
	tx *sql.Tx
}

// Ensure mysql.Tx implements sqldb.Tx interface
var _ sqldb.Tx = (*Tx)(nil)

func (t *Tx) Commit(_ context.Context) error {
	return t.tx.Commit()
}

func (t *Tx) Rollback(_ context.Context) error {
	return t.tx.Rollback()
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sqldb.Result, error) {
	return execOn(ctx, t.tx, query, args...)
}

func (t *Tx) QueryRows(ctx context.Context, query string, args ...any) (sqldb.Rows, error) {
	return queryRowsOn(ctx, t.tx, query, args...)
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) sqldb.Row {
	return Row{row: t.tx.QueryRowContext(ctx, query, args...)}
}

func (t *Tx) InsertStmt(ctx context.Context, query string, args ...any) (sqldb.Result, error) {
	return insertOn(ctx, t.tx, query, args...)
}
