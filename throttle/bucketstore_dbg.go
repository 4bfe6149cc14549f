//go:build debug

package throttle

import (
	"log"
	"time"
)

func (s *BucketStore[K]) Cleanup(now time.Time) {
	log.Printf("[DEBUG][Throttle] cleaning buckets older than %v at %v", s.cleanupOlderThan, now)
	cleanCnt := 0
	for gid, g := range s.snapshot() {
		g.buckets.Range(func(id, value any) bool {
			b := value.(*Bucket[K])
			if now.Sub(b.idleSince()) > s.cleanupOlderThan {
				g.buckets.Delete(id)
				cleanCnt++
				log.Printf("[DEBUG][Throttle] expired bucket %v removed from %q", id, gid)
			}
			return true
		})
	}
	log.Printf("[DEBUG][Throttle] %d buckets cleaned up", cleanCnt)
}
