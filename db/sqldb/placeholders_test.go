package sqldb

import "testing"

func TestReplaceStaticPlaceholders(t *testing.T) {
	tests := []struct {
		sql    string
		prefix byte
		want   string
	}{
		{"SELECT 1 FROM p WHERE a = ? AND b = ?", '$', "SELECT 1 FROM p WHERE a = $1 AND b = $2"},
		{"SELECT 1 FROM p WHERE a = ?", '?', "SELECT 1 FROM p WHERE a = ?"},
		{"a = ? AND b IN (??)", '$', "a = $1 AND b IN (??)"},
	}
	for _, tt := range tests {
		if got := ReplaceStaticPlaceholders(tt.sql, tt.prefix); got != tt.want {
			t.Errorf("ReplaceStaticPlaceholders(%q, %q) = %q, want %q", tt.sql, tt.prefix, got, tt.want)
		}
	}
}

func TestJoinPlaceholders(t *testing.T) {
	if got := JoinPlaceholders('$', 3, 4); got != "$4, $5, $6" {
		t.Errorf("pgsql = %q", got)
	}
	if got := JoinPlaceholders('?', 2); got != "?, ?" {
		t.Errorf("mysql = %q", got)
	}
	if got := Placeholder('$', 2); got != "$2" {
		t.Errorf("Placeholder = %q", got)
	}
}

func TestOrderByClause(t *testing.T) {
	if got := OrderByClause(nil); got != "" {
		t.Errorf("empty = %q", got)
	}
	orders := []OrderBy{{Column: MustColumn("sm.meta_value"), Desc: true}, {Column: MustColumn("p.ID")}}
	if got := OrderByClause(orders); got != " ORDER BY sm.meta_value DESC, p.ID ASC" {
		t.Errorf("clause = %q", got)
	}
	for _, bad := range []string{"", "p.ID; DROP TABLE", "1col", "a..b"} {
		if _, err := NewColumn(bad); err == nil {
			t.Errorf("NewColumn(%q) accepted", bad)
		}
	}
}
