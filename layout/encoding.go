package layout

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Normalize restricts text to runes representable in Windows-1252.
// Unrepresentable runes become '?', control characters become spaces and the
// result is trimmed. Every remaining rune encodes to exactly one byte.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == utf8.RuneError:
			b.WriteByte('?')
		case unicode.IsControl(r):
			b.WriteByte(' ')
		default:
			if _, ok := charmap.Windows1252.EncodeRune(r); ok {
				b.WriteRune(r)
			} else {
				b.WriteByte('?')
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// CharCount of normalized text; equals its single-byte encoded length
func CharCount(text string) int {
	return utf8.RuneCountInString(text)
}

// Encode converts normalized text to Windows-1252 bytes for a core-font canvas
func Encode(text string) string {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if c, ok := charmap.Windows1252.EncodeRune(r); ok {
			out = append(out, c)
		} else {
			out = append(out, '?')
		}
	}
	return string(out)
}
