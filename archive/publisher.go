package archive

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/zeptools/gw-certs/sec"
)

// Publisher makes a finished archive downloadable
type Publisher interface {
	// Publish returns the download URL of the archive at path
	Publish(ctx context.Context, path string, name string) (string, error)
	Unpublish(ctx context.Context, name string) error
}

// LocalPublisher serves archives from the output directory through signed download links
type LocalPublisher struct {
	Signer  *sec.DownloadSigner
	BaseURL string // e.g. https://certs.example.org
	TTL     time.Duration
}

var _ Publisher = (*LocalPublisher)(nil)

// DownloadPath is the route the download handler is mounted on
const DownloadPath = "/downloads/"

func (p *LocalPublisher) Publish(ctx context.Context, path string, name string) (string, error) {
	token, err := p.Signer.Sign(name, "", p.TTL)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(p.BaseURL, "/") + DownloadPath + url.PathEscape(token), nil
}

// Unpublish - links expire on their own
func (p *LocalPublisher) Unpublish(ctx context.Context, name string) error {
	return nil
}
