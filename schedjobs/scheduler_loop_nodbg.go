//go:build !debug

package schedjobs

import (
	"context"
	"time"
)

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.conf.Tick)
	defer ticker.Stop()
	for {
		s.tick(ctx, time.Now())
		select {
		case <-ticker.C:
			// continue for-loop
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if ctx.Err() != nil {
		return
	}
	for _, job := range s.takeDue(now) {
		s.runOneTimeJob(ctx, job)
	}
	if s.cronSlot(now) < 0 {
		return
	}
	for _, job := range s.GetCronJobs() {
		if job.Matches(now) {
			s.runCronJob(ctx, job)
		}
	}
}
