package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/zeptools/gw-certs/db/sqldb"
)

// querier is what *sql.DB and *sql.Tx have in common
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Handle struct {
	*sql.DB // [Embedded]
}

// Ensure mysql.Handle implements sqldb.Handle interface
var _ sqldb.Handle = (*Handle)(nil)

func (h *Handle) Exec(ctx context.Context, query string, args ...any) (sqldb.Result, error) {
	return execOn(ctx, h.DB, query, args...)
}

func (h *Handle) QueryRows(ctx context.Context, query string, args ...any) (sqldb.Rows, error) {
	return queryRowsOn(ctx, h.DB, query, args...)
}

func (h *Handle) QueryRow(ctx context.Context, query string, args ...any) sqldb.Row {
	return Row{row: h.DB.QueryRowContext(ctx, query, args...)}
}

func (h *Handle) InsertStmt(ctx context.Context, query string, args ...any) (sqldb.Result, error) {
	return insertOn(ctx, h.DB, query, args...)
}

func execOn(ctx context.Context, q querier, query string, args ...any) (sqldb.Result, error) {
	result, err := q.ExecContext(ctx, query, args...)
	// NOTE: We can process a DBMS-specific error to produce a better abstracted error
	if err != nil {
		return nil, err
	}
	return Result{result}, nil
}

func queryRowsOn(ctx context.Context, q querier, query string, args ...any) (sqldb.Rows, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return Rows{rows}, nil
}

func insertOn(ctx context.Context, q querier, query string, args ...any) (sqldb.Result, error) {
	trimmed := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "INSERT") {
		return nil, fmt.Errorf("InsertStmt must start with INSERT")
	}
	return execOn(ctx, q, query, args...)
}
