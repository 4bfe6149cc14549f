package sqldb

import "strings"

type OrderBy struct {
	Column Column
	Desc   bool
}

// String is the clause item, e.g. "p.post_date DESC"
func (o OrderBy) String() string {
	if o.Desc {
		return o.Column.Name() + " DESC"
	}
	return o.Column.Name() + " ASC"
}

// OrderByClause renders " ORDER BY a ASC, b DESC", or "" for no orders
func OrderByClause(orders []OrderBy) string {
	if len(orders) == 0 {
		return ""
	}
	items := make([]string, len(orders))
	for i, o := range orders {
		items[i] = o.String()
	}
	return " ORDER BY " + strings.Join(items, ", ")
}
