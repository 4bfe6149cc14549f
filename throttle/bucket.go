package throttle

import (
	"sync"
	"time"
)

// Bucket holds the tokens of one key (a requester hash or a client IP)
type Bucket[K comparable] struct {
	mu          sync.Mutex
	tokens      int
	lastCheck   time.Time
	parentGroup *BucketGroup[K]
}

// refill adds whole periods elapsed since lastCheck, capped at Burst. Caller holds mu.
func (b *Bucket[K]) refill(now time.Time) {
	conf := b.parentGroup.conf
	elapsed := now.Sub(b.lastCheck)
	if elapsed < conf.Period {
		return
	}
	periods := int(elapsed / conf.Period)
	b.tokens = min(b.tokens+periods*conf.Increment, conf.Burst)
	// partial periods carry over
	b.lastCheck = b.lastCheck.Add(time.Duration(periods) * conf.Period)
}

func (b *Bucket[K]) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// idleSince is the last refill point, used by Cleanup
func (b *Bucket[K]) idleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastCheck
}
