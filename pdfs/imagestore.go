package pdfs

import (
	"sync"
	"time"
)

// ImageStore caches decoded-once resources (background images) by key with a TTL
type ImageStore[T any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]imageEntry[T]
}

type imageEntry[T any] struct {
	value   T
	expires time.Time
}

// NewImageStore - ttl <= 0 keeps entries until removed
func NewImageStore[T any](ttl time.Duration) *ImageStore[T] {
	return &ImageStore[T]{ttl: ttl, entries: make(map[string]imageEntry[T])}
}

func (s *ImageStore[T]) Store(key string, value T) {
	var exp time.Time
	if s.ttl > 0 {
		exp = time.Now().Add(s.ttl)
	}
	s.mu.Lock()
	s.entries[key] = imageEntry[T]{value: value, expires: exp}
	s.mu.Unlock()
}

func (s *ImageStore[T]) Get(key string) (T, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || (!e.expires.IsZero() && time.Now().After(e.expires)) {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (s *ImageStore[T]) Remove(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

func (s *ImageStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
