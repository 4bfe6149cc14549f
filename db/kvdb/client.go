package kvdb

import (
	"context"
	"errors"
	"strings"
	"time"
)

type Client interface {
	Init() error
	Close() error
	DBHandle() any // backend handle, use with runtime type assertion
	GetConf() *Conf

	//---- Key Ops ----

	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) (int64, error)
	// Expire sets/updates expiration for a key
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) // found & updated, err

	// ScanKeys iterates over keys matching pattern (glob style, "*" = all) in batches.
	// Returns keys []string, nextCursor any, err error
	// The cursor type and meaning are backend-specific and opaque to callers.
	// When nextCursor is nil, the scan is complete.
	ScanKeys(ctx context.Context, pattern string, cursor any, scanBatchSize int) ([]string, any, error)

	//---- Single-value Ops ----

	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error) // val, found, err
	// CompareAndSwap stores value only if the current value equals expected.
	// expected == "" means the key must not exist yet.
	// Returns false, nil when another writer got there first.
	CompareAndSwap(ctx context.Context, key string, expected string, value string, expiration time.Duration) (bool, error)

	//---- List Ops ----

	Push(ctx context.Context, key string, value string) error
	Pop(ctx context.Context, key string) (string, bool, error) // val, found, err
	Len(ctx context.Context, key string) (int64, error)
	Range(ctx context.Context, key string, start int64, stop int64) ([]string, error) // 0-basis, stop inclusive. -1 = last
	Remove(ctx context.Context, key string, cnt int64, value string) (int64, error)   // cnt = removed dups. 0 = all
	Trim(ctx context.Context, key string, start int64, stop int64) error              // 0-basis, stop inclusive
}

// ErrUnsupportedType is returned for an unknown Conf.Type
var ErrUnsupportedType = errors.New("kvdb: unsupported key-value database type")

// Key joins parts with ':' under the client's KeyPrefix
func Key(c Client, parts ...string) string {
	key := strings.Join(parts, ":")
	if conf := c.GetConf(); conf != nil && conf.KeyPrefix != "" {
		return conf.KeyPrefix + ":" + key
	}
	return key
}
