package pdfs

import "io"

// Writer is a minimal, stream-style, append-only single-page document writer.
// Coordinates and sizes are in mm, origin top-left.
type Writer interface {
	NewPage(orientation Orientation, size PaperSize)

	SetFont(family string, style string, size float64)
	// HasFont reports whether the family can be selected without fallback
	HasFont(family string) bool
	SetTextColor(r, g, b uint8)

	// PlaceImage registers data under name once and draws it at (x,y) scaled to w×h.
	// imageType is "jpg", "png" or "gif".
	PlaceImage(name string, imageType string, data []byte, x, y, w, h float64)

	// Text draws a single line with its baseline at (x,y)
	Text(x float64, y float64, text string)

	// Err returns the first error recorded by any previous call
	Err() error

	WriteTo(w io.Writer) (int64, error)
	WriteToFile(filepath string) error
	ProduceBytes() ([]byte, error)
}

type Orientation string

const (
	Portrait  Orientation = "P"
	Landscape Orientation = "L"
)
