package sqldb

import (
	"strconv"
	"strings"
)

// PlaceholderPrefixForDBType maps Conf.Type to its bind placeholder prefix.
// '?' is anonymous: it is never numbered.
var PlaceholderPrefixForDBType = map[string]byte{
	"mysql": '?',
	"pgsql": '$',
}

func anonymous(prefix byte) bool {
	return prefix == '?' || prefix == 0
}

// Placeholder is the i-th (1-basis) placeholder for prefix
func Placeholder(prefix byte, i int) string {
	if anonymous(prefix) {
		return "?"
	}
	return string(prefix) + strconv.Itoa(i)
}

// JoinPlaceholders returns n comma-joined placeholders for the prefix, numbered from start
func JoinPlaceholders(prefix byte, n int, start ...int) string {
	first := 1
	if len(start) > 0 {
		first = start[0]
	}
	items := make([]string, n)
	for i := range items {
		items[i] = Placeholder(prefix, first+i)
	}
	return strings.Join(items, ", ")
}

// ReplaceStaticPlaceholders numbers every '?' of a raw statement for the prefix.
// A doubled "??" marks a list expanded at query time and is left alone.
func ReplaceStaticPlaceholders(sql string, prefix byte) string {
	if anonymous(prefix) {
		return sql
	}
	var b strings.Builder
	b.Grow(len(sql) + 8)
	n := 0
	for i := 0; i < len(sql); i++ {
		switch {
		case sql[i] != '?':
			b.WriteByte(sql[i])
		case i+1 < len(sql) && sql[i+1] == '?':
			b.WriteString("??")
			i++
		default:
			n++
			b.WriteString(Placeholder(prefix, n))
		}
	}
	return b.String()
}
