package throttle

import (
	"sync"
	"time"
)

type BucketGroup[K comparable] struct {
	conf    *BucketConf
	buckets *sync.Map // K -> *Bucket[K]
}

func (g *BucketGroup[K]) GetBucket(id K) (*Bucket[K], bool) {
	bAny, ok := g.buckets.Load(id)
	if !ok {
		return nil, false
	}
	return bAny.(*Bucket[K]), true
}

// SetBucket stores a fresh bucket unless one already exists for id.
// Reports whether the fresh bucket was stored.
func (g *BucketGroup[K]) SetBucket(id K, tokens int, now time.Time) bool {
	_, loaded := g.buckets.LoadOrStore(id, &Bucket[K]{
		tokens:      tokens,
		lastCheck:   now,
		parentGroup: g,
	})
	return !loaded
}
