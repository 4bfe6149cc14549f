//go:build !debug

package throttle

import (
	"time"
)

func (s *BucketStore[K]) Cleanup(now time.Time) {
	for _, g := range s.snapshot() {
		g.buckets.Range(func(id, value any) bool {
			b := value.(*Bucket[K])
			if now.Sub(b.idleSince()) > s.cleanupOlderThan {
				g.buckets.Delete(id)
			}
			return true
		})
	}
}
