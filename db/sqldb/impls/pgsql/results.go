package pgsql

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/zeptools/gw-certs/db/sqldb"
)

type Rows struct {
	rows pgx.Rows
}

type Row struct {
	row pgx.Row
}

// Result has no LastInsertId of its own: InsertStmt fills it from RETURNING id
type Result struct {
	tag          pgconn.CommandTag
	lastInsertID int64
}

var (
	_ sqldb.Rows   = Rows{}
	_ sqldb.Row    = Row{}
	_ sqldb.Result = Result{}
)

func (r Rows) Next() bool { return r.rows.Next() }
func (r Rows) Err() error { return r.rows.Err() }

func (r Rows) Scan(dest ...any) error {
	return scanFlags(r.rows.Scan, dest)
}

// Close never fails; pgx reports errors through Err
func (r Rows) Close() error {
	if r.rows != nil {
		r.rows.Close()
	}
	return nil
}

func (r Row) Scan(dest ...any) error {
	err := scanFlags(r.row.Scan, dest)
	if errors.Is(err, pgx.ErrNoRows) {
		return sqldb.ErrNoRows
	}
	return err
}

func (r Result) RowsAffected() (int64, error) {
	return r.tag.RowsAffected(), nil
}

func (r Result) LastInsertId() (int64, error) {
	if r.lastInsertID == 0 {
		return 0, fmt.Errorf("LastInsertId not supported; use `RETURNING id` instead")
	}
	return r.lastInsertID, nil
}

// scanFlags scans smallint flag columns into *bool destinations, which pgx refuses directly
func scanFlags(scan func(...any) error, dest []any) error {
	raw := make([]any, len(dest))
	for i, d := range dest {
		if _, ok := d.(*bool); ok {
			raw[i] = new(int16)
		} else {
			raw[i] = d
		}
	}
	if err := scan(raw...); err != nil {
		return err
	}
	for i, d := range dest {
		if b, ok := d.(*bool); ok {
			*b = *raw[i].(*int16) != 0
		}
	}
	return nil
}
