package records

import (
	"context"
	"maps"
	"sort"
	"strconv"
	"sync"
)

// MemoryStore keeps records in process memory, for development and tests
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(records ...*Record) *MemoryStore {
	s := &MemoryStore{records: make(map[string]*Record, len(records))}
	for _, r := range records {
		s.Put(r)
	}
	return s
}

// Put stores a copy of r
func (s *MemoryStore) Put(r *Record) {
	cp := *r
	cp.Meta = maps.Clone(r.Meta)
	if cp.Meta == nil {
		cp.Meta = map[string]string{}
	}
	s.mu.Lock()
	s.records[r.ID] = &cp
	s.mu.Unlock()
}

func (s *MemoryStore) Find(ctx context.Context, postType string, filters []Filter, srt Sort) ([]string, error) {
	for _, f := range filters {
		if err := f.validate(); err != nil {
			return nil, err
		}
	}
	s.mu.RLock()
	var found []*Record
	for _, r := range s.records {
		if r.PostType != postType {
			continue
		}
		ok := true
		for _, f := range filters {
			if !f.match(r) {
				ok = false
				break
			}
		}
		if ok {
			found = append(found, r)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if srt.Desc {
			a, b = b, a
		}
		switch srt.Key {
		case "", "id":
			return lessID(a.ID, b.ID)
		case "title":
			return a.Title < b.Title
		case "date":
			return a.Date.Before(b.Date)
		default:
			if a.Meta[srt.Key] == b.Meta[srt.Key] {
				return lessID(a.ID, b.ID)
			}
			return a.Meta[srt.Key] < b.Meta[srt.Key]
		}
	})
	ids := make([]string, len(found))
	for i, r := range found {
		ids[i] = r.ID
	}
	return ids, nil
}

// lessID orders numeric IDs numerically, anything else lexically
func lessID(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	cp.Meta = maps.Clone(r.Meta)
	return &cp, nil
}

func (s *MemoryStore) SetMeta(ctx context.Context, id string, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	r.Meta[key] = value
	return nil
}
