package memory

import (
	"context"
	"log"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/zeptools/gw-certs/db/kvdb"
)

// Client keeps everything in process memory.
// For single-process deployments and tests; nothing survives a restart.
type Client struct {
	Conf *kvdb.Conf

	mu      sync.Mutex
	values  map[string]string
	lists   map[string][]string
	expires map[string]time.Time
	now     func() time.Time
}

// Ensure memory.Client implements kvdb.Client interface
var _ kvdb.Client = (*Client)(nil)

func New() *Client {
	c := &Client{Conf: &kvdb.Conf{Type: "memory"}}
	_ = c.Init()
	return c
}

func (c *Client) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[string]string)
	c.lists = make(map[string][]string)
	c.expires = make(map[string]time.Time)
	if c.now == nil {
		c.now = time.Now
	}
	log.Println("[INFO] memory kvdb initialized")
	return nil
}

func (c *Client) Close() error {
	return nil
}

func (c *Client) DBHandle() any {
	return nil
}

func (c *Client) GetConf() *kvdb.Conf {
	return c.Conf
}

// expireLocked drops key if its TTL passed. Caller holds mu.
func (c *Client) expireLocked(key string) {
	if exp, ok := c.expires[key]; ok && !c.now().Before(exp) {
		delete(c.values, key)
		delete(c.lists, key)
		delete(c.expires, key)
	}
}

func (c *Client) existsLocked(key string) bool {
	c.expireLocked(key)
	if _, ok := c.values[key]; ok {
		return true
	}
	_, ok := c.lists[key]
	return ok
}

func (c *Client) setExpiryLocked(key string, expiration time.Duration) {
	if expiration > 0 {
		c.expires[key] = c.now().Add(expiration)
	} else {
		delete(c.expires, key)
	}
}

//--- Key Ops ----

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.existsLocked(key), nil
}

func (c *Client) Delete(ctx context.Context, keys ...string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, key := range keys {
		if c.existsLocked(key) {
			n++
		}
		delete(c.values, key)
		delete(c.lists, key)
		delete(c.expires, key)
	}
	return n, nil
}

func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.existsLocked(key) {
		return false, nil
	}
	c.setExpiryLocked(key, expiration)
	return true, nil
}

// ScanKeys - cursor is an int offset into the sorted key set
func (c *Client) ScanKeys(ctx context.Context, pattern string, cursor any, scanBatchSize int) ([]string, any, error) {
	if pattern == "" {
		pattern = "*"
	}
	if scanBatchSize <= 0 {
		scanBatchSize = 10
	}
	c.mu.Lock()
	var all []string
	for k := range c.keySetLocked() {
		if ok, _ := path.Match(pattern, k); ok {
			all = append(all, k)
		}
	}
	c.mu.Unlock()
	sort.Strings(all)

	start := 0
	if cursor != nil {
		start = cursor.(int)
	}
	if start >= len(all) {
		return nil, nil, nil
	}
	end := start + scanBatchSize
	if end >= len(all) {
		return all[start:], nil, nil
	}
	return all[start:end], end, nil
}

func (c *Client) keySetLocked() map[string]struct{} {
	set := make(map[string]struct{}, len(c.values)+len(c.lists))
	for k := range c.values {
		if c.existsLocked(k) {
			set[k] = struct{}{}
		}
	}
	for k := range c.lists {
		if c.existsLocked(k) {
			set[k] = struct{}{}
		}
	}
	return set
}

//---- Single-value Ops ----

func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(key)
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *Client) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lists, key)
	c.values[key] = value
	c.setExpiryLocked(key, expiration)
	return nil
}

func (c *Client) CompareAndSwap(ctx context.Context, key string, expected string, value string, expiration time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(key)
	cur, ok := c.values[key]
	if expected == "" {
		if ok {
			return false, nil
		}
	} else if !ok || cur != expected {
		return false, nil
	}
	c.values[key] = value
	c.setExpiryLocked(key, expiration)
	return true, nil
}

//---- List Ops ----

func (c *Client) Push(ctx context.Context, key string, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(key)
	c.lists[key] = append(c.lists[key], value)
	return nil
}

func (c *Client) Pop(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(key)
	l := c.lists[key]
	if len(l) == 0 {
		return "", false, nil
	}
	v := l[0]
	c.storeListLocked(key, l[1:])
	return v, true, nil
}

func (c *Client) Len(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(key)
	return int64(len(c.lists[key])), nil
}

func (c *Client) Range(ctx context.Context, key string, start int64, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(key)
	l := c.lists[key]
	from, to, ok := listBounds(int64(len(l)), start, stop)
	if !ok {
		return []string{}, nil
	}
	out := make([]string, to-from+1)
	copy(out, l[from:to+1])
	return out, nil
}

func (c *Client) Remove(ctx context.Context, key string, cnt int64, value string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(key)
	l := c.lists[key]
	kept := make([]string, 0, len(l))
	var removed int64
	// cnt < 0 removes from the tail like LREM; walk the list in that direction
	if cnt < 0 {
		for i := len(l) - 1; i >= 0; i-- {
			if l[i] == value && removed < -cnt {
				removed++
				continue
			}
			kept = append([]string{l[i]}, kept...)
		}
	} else {
		for _, v := range l {
			if v == value && (cnt == 0 || removed < cnt) {
				removed++
				continue
			}
			kept = append(kept, v)
		}
	}
	c.storeListLocked(key, kept)
	return removed, nil
}

func (c *Client) Trim(ctx context.Context, key string, start int64, stop int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(key)
	l := c.lists[key]
	from, to, ok := listBounds(int64(len(l)), start, stop)
	if !ok {
		c.storeListLocked(key, nil)
		return nil
	}
	c.storeListLocked(key, append([]string(nil), l[from:to+1]...))
	return nil
}

// storeListLocked removes the key when the list becomes empty, as redis does
func (c *Client) storeListLocked(key string, l []string) {
	if len(l) == 0 {
		delete(c.lists, key)
		delete(c.expires, key)
		return
	}
	c.lists[key] = l
}

// listBounds resolves redis-style inclusive indexes, negatives counting from the tail
func listBounds(n, start, stop int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
