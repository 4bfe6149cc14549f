package render

import (
	"strings"

	"github.com/zeptools/gw-certs/certs"
	"github.com/zeptools/gw-certs/pdfs"
)

// families offered by the template editor, mapped onto core PDF fonts
var fontAliases = map[string]string{
	"times new roman": "Times",
	"times":           "Times",
	"courier new":     "Courier",
	"courier":         "Courier",
	"verdana":         "Helvetica",
	"arial":           "Arial",
	"helvetica":       "Helvetica",
	"palatino":        "Times",
	"garamond":        "Times",
}

// ResolveFont picks the family the writer will actually draw with.
// Families registered on the writer win over aliases; anything unknown is Helvetica.
func ResolveFont(w pdfs.Writer, family string) string {
	family = strings.TrimSpace(family)
	if family != "" && w.HasFont(family) {
		return family
	}
	if alias, ok := fontAliases[strings.ToLower(family)]; ok && w.HasFont(alias) {
		return alias
	}
	return certs.DefaultFontFamily
}

// fontStyle keeps only the B/I/U flags fpdf understands
func fontStyle(style string) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(style) {
		switch c {
		case 'B', 'I', 'U':
			if !strings.ContainsRune(b.String(), c) {
				b.WriteRune(c)
			}
		}
	}
	return b.String()
}
