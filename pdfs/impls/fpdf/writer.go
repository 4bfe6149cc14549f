package fpdf

import (
	"bytes"
	"io"
	"log"
	"strings"

	lowimpl "github.com/go-pdf/fpdf"
	"github.com/zeptools/gw-certs/pdfs"
	"github.com/zeptools/gw-certs/rw"
)

// core font families built into every PDF reader
var coreFamilies = map[string]struct{}{
	"arial":     {},
	"helvetica": {},
	"times":     {},
	"courier":   {},
}

type Writer struct {
	internal  *lowimpl.Fpdf
	translate func(string) string // utf-8 -> cp1252
	extra     map[string]struct{} // families added with AddFontFromBytes
}

// Ensure fpdf.Writer implements pdfs.Writer interface
var _ pdfs.Writer = (*Writer)(nil)

// New returns a writer with mm units and no automatic page breaks
func New() *Writer {
	f := lowimpl.New(string(pdfs.Portrait), "mm", pdfs.A4Size.Name, "")
	f.SetAutoPageBreak(false, 0)
	f.SetMargins(0, 0, 0)
	return &Writer{
		internal:  f,
		translate: f.UnicodeTranslatorFromDescriptor(""), // cp1252
		extra:     make(map[string]struct{}),
	}
}

// AddFont registers a non-core family from fpdf's json/z font definition files
func (w *Writer) AddFont(family, style string, jsonBytes, zBytes []byte) {
	w.internal.AddFontFromBytes(family, style, jsonBytes, zBytes)
	w.extra[strings.ToLower(family)] = struct{}{}
}

func (w *Writer) NewPage(orientation pdfs.Orientation, size pdfs.PaperSize) {
	w.internal.AddPageFormat(string(orientation), lowimpl.SizeType{Wd: size.Width, Ht: size.Height})
}

func (w *Writer) HasFont(family string) bool {
	key := strings.ToLower(strings.TrimSpace(family))
	if _, ok := coreFamilies[key]; ok {
		return true
	}
	_, ok := w.extra[key]
	return ok
}

func (w *Writer) SetFont(family string, style string, size float64) {
	w.internal.SetFont(family, style, size)
}

func (w *Writer) SetTextColor(r, g, b uint8) {
	w.internal.SetTextColor(int(r), int(g), int(b))
}

func (w *Writer) PlaceImage(name string, imageType string, data []byte, x, y, width, height float64) {
	opts := lowimpl.ImageOptions{ImageType: strings.ToUpper(imageType)}
	if w.internal.GetImageInfo(name) == nil {
		w.internal.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	}
	w.internal.ImageOptions(name, x, y, width, height, false, opts, 0, "")
}

func (w *Writer) Text(x float64, y float64, text string) {
	w.internal.Text(x, y, w.translate(text))
}

func (w *Writer) Err() error {
	return w.internal.Error()
}

func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	cw := rw.NewCountWriter(dst)
	err := w.internal.Output(cw)
	return cw.BytesWritten(), err
}

func (w *Writer) WriteToFile(filepath string) error {
	if err := w.internal.OutputFileAndClose(filepath); err != nil {
		log.Printf("[ERROR][PDF] writing %q: %v", filepath, err)
		return err
	}
	return nil
}

func (w *Writer) ProduceBytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
