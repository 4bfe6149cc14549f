package db

import (
	"fmt"
	"log"
)

// Client is a backend connection owned by conf.Core and closed on shutdown
type Client[T any] interface {
	Init() error
	Close() error
	DBHandle() T // generic handle
}

// CloseClient closes c, logging under name. A nil client is not an error.
func CloseClient[T any](name string, c Client[T]) error {
	if c == nil {
		log.Printf("[INFO][DB] `%s` Nothing to Close", name)
		return nil
	}
	if err := c.Close(); err != nil {
		log.Printf("[WARN][DB] Failed to Close `%s`: %v", name, err)
		return fmt.Errorf("close %s: %w", name, err)
	}
	log.Printf("[INFO][DB] `%s` Closed", name)
	return nil
}
