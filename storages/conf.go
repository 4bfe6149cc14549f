package storages

import (
	"fmt"
	"time"
)

// Conf selects where finished archives are published
type Conf struct {
	Type            string        `json:"type"` // local | gcs
	Bucket          string        `json:"bucket"`
	Prefix          string        `json:"prefix"` // object name prefix
	CredentialsFile string        `json:"credentials_file"`
	SignedURLTTLStr string        `json:"signed_url_ttl"`
	SignedURLTTL    time.Duration `json:"-"`
}

const DefaultSignedURLTTL = time.Hour

func (c *Conf) Normalize() error {
	if c.Type == "" {
		c.Type = "local"
	}
	if c.SignedURLTTLStr != "" {
		d, err := time.ParseDuration(c.SignedURLTTLStr)
		if err != nil {
			return fmt.Errorf("signed_url_ttl: %w", err)
		}
		c.SignedURLTTL = d
	}
	if c.SignedURLTTL <= 0 {
		c.SignedURLTTL = DefaultSignedURLTTL
	}
	if c.Type == "gcs" && c.Bucket == "" {
		return fmt.Errorf("gcs storage needs a bucket")
	}
	return nil
}
