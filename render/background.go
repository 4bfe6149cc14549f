package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/zeptools/gw-certs/certs"
	"github.com/zeptools/gw-certs/pdfs"
)

const maxBackgroundBytes = 20 << 20

// Image is a fetched background ready for the canvas
type Image struct {
	Type string // jpg, png, gif
	Data []byte
}

type BackgroundConf struct {
	TimeoutStr         string        `json:"timeout"`
	Timeout            time.Duration `json:"-"` // per request
	CacheTTLStr        string        `json:"cache_ttl"`
	CacheTTL           time.Duration `json:"-"`
	BreakerFailures    uint32        `json:"breaker_failures"` // consecutive transport failures before the breaker opens
	BreakerCooldownStr string        `json:"breaker_cooldown"`
	BreakerCooldown    time.Duration `json:"-"` // open -> half-open
}

// Normalize parses the duration strings; zero values fall back to defaults later
func (c *BackgroundConf) Normalize() error {
	for _, d := range []struct {
		name string
		str  string
		dst  *time.Duration
	}{
		{"timeout", c.TimeoutStr, &c.Timeout},
		{"cache_ttl", c.CacheTTLStr, &c.CacheTTL},
		{"breaker_cooldown", c.BreakerCooldownStr, &c.BreakerCooldown},
	} {
		if d.str == "" {
			continue
		}
		v, err := time.ParseDuration(d.str)
		if err != nil {
			return fmt.Errorf("backgrounds %s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func (c *BackgroundConf) withDefaults() BackgroundConf {
	out := *c
	if out.Timeout <= 0 {
		out.Timeout = 10 * time.Second
	}
	if out.CacheTTL <= 0 {
		out.CacheTTL = 10 * time.Minute
	}
	if out.BreakerFailures == 0 {
		out.BreakerFailures = 5
	}
	if out.BreakerCooldown <= 0 {
		out.BreakerCooldown = 30 * time.Second
	}
	return out
}

// Backgrounds validates and fetches background images.
// Checks are HEAD requests following redirects; a 2xx with an image/* content type passes.
type Backgrounds struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group
	checked *pdfs.ImageStore[string] // url -> content type of passed checks
	images  *pdfs.ImageStore[Image]
}

func NewBackgrounds(client *http.Client, conf BackgroundConf) *Backgrounds {
	c := conf.withDefaults()
	if client == nil {
		client = &http.Client{}
	}
	if client.Timeout == 0 {
		cl := *client
		cl.Timeout = c.Timeout
		client = &cl
	}
	return &Backgrounds{
		client: client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "background-images",
			Timeout: c.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= c.BreakerFailures
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Printf("[WARN][RENDER] breaker %s: %s -> %s", name, from, to)
			},
		}),
		checked: pdfs.NewImageStore[string](c.CacheTTL),
		images:  pdfs.NewImageStore[Image](c.CacheTTL),
	}
}

// verdict separates "the host answered, but not with an image" from transport faults,
// only the latter count against the breaker
type verdict struct {
	contentType string
	image       Image
	reject      error
}

// Check validates url as a reachable image. Failures are InvalidBackgroundImage.
func (b *Backgrounds) Check(ctx context.Context, url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", certs.NewError(certs.KindInvalidBackgroundImage, "", errors.New("no background image configured"))
	}
	if ct, ok := b.checked.Get(url); ok {
		return ct, nil
	}
	v, err, _ := b.group.Do("head:"+url, func() (any, error) {
		return b.breaker.Execute(func() (any, error) {
			return b.head(ctx, url)
		})
	})
	if err != nil {
		return "", certs.NewError(certs.KindInvalidBackgroundImage, "", fmt.Errorf("background %q: %w", url, err))
	}
	vd := v.(verdict)
	if vd.reject != nil {
		return "", certs.NewError(certs.KindInvalidBackgroundImage, "", fmt.Errorf("background %q: %w", url, vd.reject))
	}
	b.checked.Store(url, vd.contentType)
	return vd.contentType, nil
}

func (b *Backgrounds) head(ctx context.Context, url string) (verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return verdict{reject: err}, nil
	}
	resp, err := b.client.Do(req) // follows redirects
	if err != nil {
		return verdict{}, err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return verdict{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return verdict{reject: fmt.Errorf("status %d", resp.StatusCode)}, nil
	}
	ct := resp.Header.Get("Content-Type")
	if _, err = imageType(ct); err != nil {
		return verdict{reject: err}, nil
	}
	return verdict{contentType: ct}, nil
}

// Fetch checks then downloads the image, caching it for CacheTTL
func (b *Backgrounds) Fetch(ctx context.Context, url string) (Image, error) {
	if img, ok := b.images.Get(url); ok {
		return img, nil
	}
	if _, err := b.Check(ctx, url); err != nil {
		return Image{}, err
	}
	v, err, _ := b.group.Do("get:"+url, func() (any, error) {
		return b.breaker.Execute(func() (any, error) {
			return b.get(ctx, url)
		})
	})
	if err != nil {
		return Image{}, certs.NewError(certs.KindInvalidBackgroundImage, "", fmt.Errorf("background %q: %w", url, err))
	}
	vd := v.(verdict)
	if vd.reject != nil {
		return Image{}, certs.NewError(certs.KindInvalidBackgroundImage, "", fmt.Errorf("background %q: %w", url, vd.reject))
	}
	b.images.Store(url, vd.image)
	return vd.image, nil
}

func (b *Backgrounds) get(ctx context.Context, url string) (verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return verdict{reject: err}, nil
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return verdict{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 500 {
		return verdict{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return verdict{reject: fmt.Errorf("status %d", resp.StatusCode)}, nil
	}
	typ, err := imageType(resp.Header.Get("Content-Type"))
	if err != nil {
		return verdict{reject: err}, nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBackgroundBytes+1))
	if err != nil {
		return verdict{}, err
	}
	if len(data) > maxBackgroundBytes {
		return verdict{reject: fmt.Errorf("image larger than %d bytes", maxBackgroundBytes)}, nil
	}
	return verdict{image: Image{Type: typ, Data: data}}, nil
}

// imageType maps an image/* content type to the canvas image type
func imageType(contentType string) (string, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mt, "image/") {
		return "", fmt.Errorf("content type %q is not an image", contentType)
	}
	switch mt {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return "jpg", nil
	case "image/png":
		return "png", nil
	case "image/gif":
		return "gif", nil
	default:
		return "", fmt.Errorf("unsupported image type %q", mt)
	}
}
