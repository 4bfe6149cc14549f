package layout

import (
	"strings"
	"unicode/utf8"
)

// Wrap greedily packs whole words into lines of at most charsPerLine characters,
// joined by single spaces. A word longer than charsPerLine gets a line of its own
// and is never split.
func Wrap(text string, charsPerLine int) []string {
	if charsPerLine < 1 {
		charsPerLine = 1
	}
	var (
		lines []string
		cur   strings.Builder
		n     int // chars in cur
	)
	for _, word := range strings.Fields(text) {
		wn := utf8.RuneCountInString(word)
		switch {
		case n == 0:
			cur.WriteString(word)
			n = wn
		case n+1+wn <= charsPerLine:
			cur.WriteByte(' ')
			cur.WriteString(word)
			n += 1 + wn
		default:
			lines = append(lines, cur.String())
			cur.Reset()
			cur.WriteString(word)
			n = wn
		}
	}
	if n > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
