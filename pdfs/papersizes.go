package pdfs

const mmPerPt = 25.4 / 72

type PaperSize struct {
	Name   string
	Width  float64 // in `mm`, portrait
	Height float64 // in `mm`, portrait
}

var (
	LetterSize = PaperSize{Name: "Letter", Width: 215.9, Height: 279.4} // 8.5" x 11"
	A4Size     = PaperSize{Name: "A4", Width: 210, Height: 297}
)

// Dimensions returns width and height for the orientation
func (p PaperSize) Dimensions(o Orientation) (float64, float64) {
	if o == Landscape {
		return p.Height, p.Width
	}
	return p.Width, p.Height
}

// InPt returns the portrait size in pt (1" = 72pt)
func (p PaperSize) InPt() (float64, float64) {
	return p.Width / mmPerPt, p.Height / mmPerPt
}
