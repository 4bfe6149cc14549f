package sqldb

import (
	"context"
	"fmt"
	"log"
)

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

type Row interface {
	Scan(dest ...any) error
}

type Result interface {
	RowsAffected() (int64, error)
	LastInsertId() (int64, error)
}

// Scannable is a *Model whose TargetFields are the scan destinations in select order
type Scannable[M any] interface {
	~*M
	TargetFields() []any
}

// QueryItem scans the single row of rawSQLStmt into a new M. No row yields ErrNoRows.
func QueryItem[M any, MP Scannable[M]](ctx context.Context, h Handle, rawSQLStmt string, args ...any) (*M, error) {
	return RowToItem[M, MP](h.QueryRow(ctx, rawSQLStmt, args...))
}

func RowToItem[M any, MP Scannable[M]](row Row) (*M, error) {
	var item M
	if err := row.Scan(MP(&item).TargetFields()...); err != nil {
		return nil, err
	}
	return &item, nil
}

// QueryItems scans every row of rawSQLStmt; an empty result is a nil slice
func QueryItems[M any, MP Scannable[M]](ctx context.Context, h Handle, rawSQLStmt string, args ...any) ([]*M, error) {
	rows, err := h.QueryRows(ctx, rawSQLStmt, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("[WARN][DB] rows.Close() failed: %v", err)
		}
	}()
	return RowsToItems[M, MP](rows)
}

func RowsToItems[M any, MP Scannable[M]](rows Rows) ([]*M, error) {
	var items []*M
	for rows.Next() {
		var item M
		if err := rows.Scan(MP(&item).TargetFields()...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return items, nil
}
