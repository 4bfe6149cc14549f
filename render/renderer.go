package render

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/zeptools/gw-certs/certs"
	"github.com/zeptools/gw-certs/layout"
	"github.com/zeptools/gw-certs/pdfs"
)

const backgroundImageName = "background"

// Renderer draws a layout plan onto a fresh page.
// The background covers the whole page; text is drawn on top in plan order.
type Renderer struct {
	NewWriter   func() pdfs.Writer
	Backgrounds *Backgrounds
	Paper       pdfs.PaperSize
}

func NewRenderer(newWriter func() pdfs.Writer, backgrounds *Backgrounds) *Renderer {
	return &Renderer{NewWriter: newWriter, Backgrounds: backgrounds, Paper: pdfs.A4Size}
}

// Render returns the document bytes.
// A background that fails its check aborts before anything is drawn.
func (r *Renderer) Render(ctx context.Context, t certs.Template, plan layout.Plan, background string) ([]byte, error) {
	w, err := r.draw(ctx, t, plan, background)
	if err != nil {
		return nil, err
	}
	b, err := w.ProduceBytes()
	if err != nil {
		return nil, certs.NewError(certs.KindRenderIOFailure, "", fmt.Errorf("output: %w", err))
	}
	return b, nil
}

// RenderToFile writes the document to path through a temp file in the same directory,
// readers never see a partial document
func (r *Renderer) RenderToFile(ctx context.Context, t certs.Template, plan layout.Plan, background string, path string) error {
	w, err := r.draw(ctx, t, plan, background)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return certs.NewError(certs.KindRenderIOFailure, "", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return certs.NewError(certs.KindRenderIOFailure, "", err)
	}
	tmpName := tmp.Name()
	_, err = w.WriteTo(tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		_ = os.Remove(tmpName)
		log.Printf("[ERROR][RENDER] writing %q: %v", path, err)
		return certs.NewError(certs.KindRenderIOFailure, "", fmt.Errorf("write %s: %w", path, err))
	}
	return nil
}

func (r *Renderer) draw(ctx context.Context, t certs.Template, plan layout.Plan, background string) (pdfs.Writer, error) {
	if r.Backgrounds == nil {
		return nil, errors.New("renderer has no background fetcher")
	}
	img, err := r.Backgrounds.Fetch(ctx, background)
	if err != nil {
		return nil, err
	}

	orientation := pdfs.Portrait
	if t.Orientation == certs.Landscape {
		orientation = pdfs.Landscape
	}
	pageW, pageH := r.Paper.Dimensions(orientation)

	w := r.NewWriter()
	w.NewPage(orientation, r.Paper)
	w.PlaceImage(backgroundImageName, img.Type, img.Data, 0, 0, pageW, pageH)
	if err = w.Err(); err != nil {
		// bytes passed the content-type check but do not decode
		return nil, certs.NewError(certs.KindInvalidBackgroundImage, "", fmt.Errorf("background %q: %w", background, err))
	}

	family := ResolveFont(w, t.FontFamily)
	if family != t.FontFamily {
		log.Printf("[WARN][RENDER] font %q unavailable, drawing with %q", t.FontFamily, family)
	}
	w.SetFont(family, fontStyle(t.FontStyle), t.FontSize)
	w.SetTextColor(t.FontColor.R, t.FontColor.G, t.FontColor.B)
	for _, in := range plan.Instructions {
		w.Text(in.X, in.Y, in.Text)
	}
	if err = w.Err(); err != nil {
		return nil, certs.NewError(certs.KindRenderIOFailure, "", fmt.Errorf("draw: %w", err))
	}
	return w, nil
}
