package pgsql

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zeptools/gw-certs/db/sqldb"
)

// querier is what pgxpool.Pool and pgx.Tx have in common
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Handle struct {
	*pgxpool.Pool // [Embedded]
}

var _ sqldb.Handle = (*Handle)(nil)

func (h *Handle) Exec(ctx context.Context, query string, args ...any) (sqldb.Result, error) {
	return execOn(ctx, h.Pool, query, args...)
}

func (h *Handle) QueryRows(ctx context.Context, query string, args ...any) (sqldb.Rows, error) {
	return queryRowsOn(ctx, h.Pool, query, args...)
}

func (h *Handle) QueryRow(ctx context.Context, query string, args ...any) sqldb.Row {
	return Row{row: h.Pool.QueryRow(ctx, query, args...)}
}

func (h *Handle) InsertStmt(ctx context.Context, query string, args ...any) (sqldb.Result, error) {
	return insertOn(ctx, h.Pool, query, args...)
}

func execOn(ctx context.Context, q querier, query string, args ...any) (sqldb.Result, error) {
	tag, err := q.Exec(ctx, query, args...)
	// NOTE: We can process a DBMS-specific error to produce a better abstracted error
	if err != nil {
		return nil, err
	}
	return Result{tag: tag}, nil
}

func queryRowsOn(ctx context.Context, q querier, query string, args ...any) (sqldb.Rows, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return Rows{rows: rows}, nil
}

func insertOn(ctx context.Context, q querier, query string, args ...any) (sqldb.Result, error) {
	trimmed := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "INSERT") {
		return nil, fmt.Errorf("InsertStmt must start with INSERT")
	}
	// append RETURNING id if missing
	if !strings.Contains(strings.ToUpper(query), "RETURNING") {
		query = strings.TrimSuffix(trimmed, ";") + " RETURNING id"
		var id int64
		err := q.QueryRow(ctx, query, args...).Scan(&id)
		if err != nil {
			return nil, err
		}
		return Result{lastInsertID: id, tag: pgconn.NewCommandTag("INSERT 0 1")}, nil
	}
	return execOn(ctx, q, query, args...)
}
