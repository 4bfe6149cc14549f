package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/zeptools/gw-certs/certs"
	"github.com/zeptools/gw-certs/layout"
	"github.com/zeptools/gw-certs/pdfs"
	"github.com/zeptools/gw-certs/pdfs/impls/fpdf"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 240, G: 230, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png: %v", err)
	}
	return buf.Bytes()
}

func imageServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	data := pngBytes(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/bg.png", func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.Header().Set("Content-Type", "image/png")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/moved.png", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/bg.png", http.StatusFound)
	})
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testTemplate() certs.Template {
	t := certs.Template{
		CertificateType: "participation",
		Orientation:     certs.Landscape,
		FontFamily:      "Times New Roman",
		FontSize:        18,
		FontColor:       certs.RGB{R: 20, G: 20, B: 80},
		Fields: []certs.FieldSlot{
			{Name: "student_name", X: 148, Y: 100, Width: 120, Visible: true},
			{Name: "school_name", X: 148, Y: 130, Width: 60, Visible: true},
		},
	}
	t.Normalize()
	return t
}

func newTestRenderer() *Renderer {
	return NewRenderer(func() pdfs.Writer { return fpdf.New() }, NewBackgrounds(nil, BackgroundConf{}))
}

func TestBackgroundCheck(t *testing.T) {
	srv := imageServer(t, nil)
	bg := NewBackgrounds(srv.Client(), BackgroundConf{})
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"image", "/bg.png", false},
		{"redirect", "/moved.png", false},
		{"not an image", "/page.html", true},
		{"not found", "/missing.png", true},
		{"server error", "/broken", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bg.Check(context.Background(), srv.URL+tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, certs.ErrInvalidBackgroundImage) {
				t.Errorf("err = %v, want InvalidBackgroundImage", err)
			}
		})
	}
	if _, err := bg.Check(context.Background(), " "); !errors.Is(err, certs.ErrInvalidBackgroundImage) {
		t.Errorf("empty url: err = %v", err)
	}
}

func TestBackgroundFetchCaches(t *testing.T) {
	var hits int32
	srv := imageServer(t, &hits)
	bg := NewBackgrounds(srv.Client(), BackgroundConf{})
	for i := 0; i < 3; i++ {
		img, err := bg.Fetch(context.Background(), srv.URL+"/bg.png")
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if img.Type != "png" || len(img.Data) == 0 {
			t.Fatalf("img = %s/%d bytes", img.Type, len(img.Data))
		}
	}
	if got := atomic.LoadInt32(&hits); got != 2 { // one HEAD, one GET
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestBackgroundRejectedGetKeepsBreakerClosed(t *testing.T) {
	data := pngBytes(t)
	mux := http.NewServeMux()
	// HEAD passes, GET answers with a page
	mux.HandleFunc("/swapped.png", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "image/png")
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/gone.png", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "image/png")
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/bg.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	bg := NewBackgrounds(srv.Client(), BackgroundConf{BreakerFailures: 2})
	for i := 0; i < 3; i++ {
		for _, p := range []string{"/swapped.png", "/gone.png"} {
			if _, err := bg.Fetch(context.Background(), srv.URL+p); !errors.Is(err, certs.ErrInvalidBackgroundImage) {
				t.Fatalf("Fetch(%s) err = %v", p, err)
			}
		}
	}
	if st := bg.breaker.State(); st != gobreaker.StateClosed {
		t.Fatalf("breaker = %s after rejected images", st)
	}
	if _, err := bg.Fetch(context.Background(), srv.URL+"/bg.png"); err != nil {
		t.Errorf("Fetch after rejects: %v", err)
	}
}

func TestImageType(t *testing.T) {
	tests := []struct {
		ct   string
		want string
		ok   bool
	}{
		{"image/png", "png", true},
		{"image/jpeg; charset=binary", "jpg", true},
		{"image/gif", "gif", true},
		{"image/webp", "", false},
		{"text/html", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := imageType(tt.ct)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("imageType(%q) = %q, %v", tt.ct, got, err)
		}
	}
}

func TestResolveFont(t *testing.T) {
	w := fpdf.New()
	tests := []struct {
		family string
		want   string
	}{
		{"Helvetica", "Helvetica"},
		{"Times New Roman", "Times"},
		{"Courier New", "Courier"},
		{"Verdana", "Helvetica"},
		{"Garamond", "Times"},
		{"Comic Sans", "Helvetica"},
		{"", "Helvetica"},
	}
	for _, tt := range tests {
		if got := ResolveFont(w, tt.family); got != tt.want {
			t.Errorf("ResolveFont(%q) = %q, want %q", tt.family, got, tt.want)
		}
	}
	if got := fontStyle("bib"); got != "BI" {
		t.Errorf("fontStyle = %q", got)
	}
}

func TestRender(t *testing.T) {
	srv := imageServer(t, nil)
	tpl := testTemplate()
	plan, err := layout.Layout(tpl, map[string]string{"student_name": "Ana Lee", "school_name": "Lincoln High School of Sciences"})
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	r := newTestRenderer()
	out, err := r.Render(context.Background(), tpl, plan, srv.URL+"/bg.png")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Errorf("output does not look like a PDF: %q", out[:16])
	}
}

func TestRenderToFile(t *testing.T) {
	srv := imageServer(t, nil)
	tpl := testTemplate()
	plan, err := layout.Layout(tpl, map[string]string{"student_name": "Ana Lee"})
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out", "certificate_7.pdf")
	if err = newTestRenderer().RenderToFile(context.Background(), tpl, plan, srv.URL+"/bg.png", path); err != nil {
		t.Fatalf("RenderToFile: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil || st.Size() == 0 {
		t.Fatalf("stat: %v", err)
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestRenderRejectsBadBackground(t *testing.T) {
	srv := imageServer(t, nil)
	tpl := testTemplate()
	path := filepath.Join(t.TempDir(), "certificate_9.pdf")
	err := newTestRenderer().RenderToFile(context.Background(), tpl, layout.Plan{}, srv.URL+"/page.html", path)
	if !errors.Is(err, certs.ErrInvalidBackgroundImage) {
		t.Fatalf("err = %v, want InvalidBackgroundImage", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Errorf("nothing should be written on a bad background")
	}
}
