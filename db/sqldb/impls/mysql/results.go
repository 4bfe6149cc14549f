package mysql

import (
	"database/sql"
	"errors"

	"github.com/zeptools/gw-certs/db/sqldb"
)

// database/sql already has the sqldb method sets; only ErrNoRows needs mapping.
type (
	Rows   struct{ *sql.Rows }
	Row    struct{ row *sql.Row }
	Result struct{ sql.Result }
)

var (
	_ sqldb.Rows   = Rows{}
	_ sqldb.Row    = Row{}
	_ sqldb.Result = Result{}
)

func (r Row) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return sqldb.ErrNoRows
	}
	return err
}
