package records

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zeptools/gw-certs/db/sqldb"
	"github.com/zeptools/gw-certs/nullable"
)

//go:embed sql
var sqlFS embed.FS

const sqlGroup = "records"

func init() {
	sqldb.RegisterGroup(sqlFS, sqlGroup)
}

// SQLStore reads the posts/postmeta schema through a sqldb.Client.
// Statements come from the embedded `sql` dir; load them with the dialect's LoadRawStmtsToStore.
type SQLStore struct {
	client sqldb.Client
	prefix string // table prefix
	ph     byte   // placeholder prefix of the dialect
}

// Ensure SQLStore implements Store interface
var _ Store = (*SQLStore)(nil)

func NewSQLStore(client sqldb.Client) *SQLStore {
	conf := client.Conf()
	return &SQLStore{
		client: client,
		prefix: conf.TablePrefix,
		ph:     sqldb.PlaceholderPrefixForDBType[conf.Type],
	}
}

func (s *SQLStore) stmt(name string) (string, error) {
	raw, ok := s.client.RawStmt(sqlGroup, name)
	if !ok {
		return "", fmt.Errorf("records: sql statement %q not loaded", name)
	}
	return strings.ReplaceAll(raw, "{prefix}", s.prefix), nil
}

type postRow struct {
	ID       int64
	PostType string
	Title    nullable.String
	Date     nullable.Time
}

func (p *postRow) TargetFields() []any {
	return []any{&p.ID, &p.PostType, &p.Title, &p.Date}
}

type metaRow struct {
	Key   string
	Value nullable.String
}

func (m *metaRow) TargetFields() []any {
	return []any{&m.Key, &m.Value}
}

type idRow struct {
	ID int64
}

func (r *idRow) TargetFields() []any {
	return []any{&r.ID}
}

func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

var sortColumns = map[string]sqldb.Column{
	"":      sqldb.MustColumn("p.ID"),
	"id":    sqldb.MustColumn("p.ID"),
	"title": sqldb.MustColumn("p.post_title"),
	"date":  sqldb.MustColumn("p.post_date"),
}

// Find builds one join per filter; meta sort keys join postmeta once more
func (s *SQLStore) Find(ctx context.Context, postType string, filters []Filter, srt Sort) ([]string, error) {
	var (
		b    strings.Builder
		args []any
	)
	fmt.Fprintf(&b, "SELECT p.ID FROM %sposts p", s.prefix)
	for i, f := range filters {
		if err := f.validate(); err != nil {
			return nil, err
		}
		alias := "f" + strconv.Itoa(i)
		fmt.Fprintf(&b, " JOIN %spostmeta %s ON %s.post_id = p.ID AND %s.meta_key = ?", s.prefix, alias, alias, alias)
		args = append(args, f.Key)
		if f.Compare == CompareLike {
			fmt.Fprintf(&b, " AND LOWER(%s.meta_value) LIKE ?", alias)
			args = append(args, "%"+strings.ToLower(f.Value)+"%")
		} else {
			fmt.Fprintf(&b, " AND %s.meta_value = ?", alias)
			args = append(args, f.Value)
		}
	}

	orders := []sqldb.OrderBy{}
	col, builtin := sortColumns[srt.Key]
	if !builtin {
		fmt.Fprintf(&b, " LEFT JOIN %spostmeta sm ON sm.post_id = p.ID AND sm.meta_key = ?", s.prefix)
		args = append(args, srt.Key)
		orders = append(orders, sqldb.OrderBy{Column: sqldb.MustColumn("sm.meta_value"), Desc: srt.Desc})
		col = sortColumns["id"]
	}
	orders = append(orders, sqldb.OrderBy{Column: col, Desc: builtin && srt.Desc})

	b.WriteString(" WHERE p.post_type = ? AND p.post_status <> 'trash'")
	args = append(args, postType)
	b.WriteString(sqldb.OrderByClause(orders))

	query := sqldb.ReplaceStaticPlaceholders(b.String(), s.ph)
	rows, err := sqldb.QueryItems[idRow, *idRow](ctx, s.client, query, args...)
	if err != nil {
		return nil, fmt.Errorf("records: find %s: %w", postType, err)
	}
	ids := make([]string, 0, len(rows))
	seen := make(map[int64]struct{}, len(rows))
	for _, r := range rows {
		if _, dup := seen[r.ID]; dup {
			continue // duplicated meta keys multiply join rows
		}
		seen[r.ID] = struct{}{}
		ids = append(ids, strconv.FormatInt(r.ID, 10))
	}
	return ids, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Record, error) {
	n, err := parseID(id)
	if err != nil {
		return nil, err
	}
	q, err := s.stmt("get_post")
	if err != nil {
		return nil, err
	}
	post, err := sqldb.QueryItem[postRow, *postRow](ctx, s.client, q, n)
	if errors.Is(err, sqldb.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("records: get %s: %w", id, err)
	}
	if q, err = s.stmt("list_meta"); err != nil {
		return nil, err
	}
	metas, err := sqldb.QueryItems[metaRow, *metaRow](ctx, s.client, q, n)
	if err != nil {
		return nil, fmt.Errorf("records: meta of %s: %w", id, err)
	}
	rec := &Record{
		ID:       strconv.FormatInt(post.ID, 10),
		PostType: post.PostType,
		Title:    post.Title.ForceValue(),
		Date:     post.Date.ForceValue(),
		Meta:     make(map[string]string, len(metas)),
	}
	for _, m := range metas {
		rec.Meta[m.Key] = m.Value.ForceValue()
	}
	return rec, nil
}

// SetMeta updates the key in place or inserts it, inside one transaction
func (s *SQLStore) SetMeta(ctx context.Context, id string, key string, value string) error {
	n, err := parseID(id)
	if err != nil {
		return err
	}
	countQ, err := s.stmt("count_meta")
	if err != nil {
		return err
	}
	updateQ, err := s.stmt("update_meta")
	if err != nil {
		return err
	}
	insertQ, err := s.stmt("insert_meta")
	if err != nil {
		return err
	}
	return sqldb.WithTx(ctx, s.client, func(tx sqldb.Tx) error {
		var cnt int64
		if err := tx.QueryRow(ctx, countQ, n, key).Scan(&cnt); err != nil {
			return fmt.Errorf("records: count meta: %w", err)
		}
		if cnt > 0 {
			_, err := tx.Exec(ctx, updateQ, value, n, key)
			return err
		}
		_, err := tx.InsertStmt(ctx, insertQ, n, key, value)
		return err
	})
}
