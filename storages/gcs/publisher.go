package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/zeptools/gw-certs/storages"
)

// Publisher uploads archives to a bucket and hands out V4 signed URLs
type Publisher struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
	ttl    time.Duration
}

func NewPublisher(ctx context.Context, conf storages.Conf) (*Publisher, error) {
	var (
		client *storage.Client
		err    error
	)
	if conf.CredentialsFile != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(conf.CredentialsFile))
	} else {
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &Publisher{client: client, bucket: client.Bucket(conf.Bucket), prefix: conf.Prefix, ttl: conf.SignedURLTTL}, nil
}

func (p *Publisher) objectName(name string) string {
	return path.Join(p.prefix, name)
}

// Publish uploads the file at localPath once; an existing object of the same name is kept
func (p *Publisher) Publish(ctx context.Context, localPath string, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	object := p.objectName(name)
	w := p.bucket.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/zip"
	if _, err = io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	if err = w.Close(); err != nil {
		var gerr *googleapi.Error
		if !errors.As(err, &gerr) || gerr.Code != http.StatusPreconditionFailed {
			return "", fmt.Errorf("finalize %s: %w", object, err)
		}
		log.Printf("[INFO][ARCHIVE] gs object %s already exists", object)
	}
	url, err := p.bucket.SignedURL(object, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(p.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return url, nil
}

func (p *Publisher) Unpublish(ctx context.Context, name string) error {
	err := p.bucket.Object(p.objectName(name)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
