//go:build debug

package schedjobs

import (
	"context"
	"log"
	"time"
)

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.conf.Tick)
	defer ticker.Stop()
	log.Printf("[DEBUG][SCHED] loop started, tick %s", s.conf.Tick)
	for {
		s.tick(ctx, time.Now())
		select {
		case <-ticker.C:
			// continue for-loop
		case <-ctx.Done():
			log.Println("[DEBUG][SCHED] loop done")
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if ctx.Err() != nil {
		return
	}
	due := s.takeDue(now)
	if len(due) > 0 {
		log.Printf("[DEBUG][SCHED] %d one-time jobs due at %s", len(due), now.Format(time.TimeOnly))
	}
	for _, job := range due {
		log.Printf("[DEBUG][SCHED] running %s (attempt %d)", job.ID, job.Attempts)
		s.runOneTimeJob(ctx, job)
	}
	slot := s.cronSlot(now)
	if slot < 0 {
		return
	}
	jobs := s.GetCronJobs()
	log.Printf("[DEBUG][SCHED] cron slot %d, %d cron jobs", slot, len(jobs))
	for _, job := range jobs {
		if job.Matches(now) {
			log.Println("[DEBUG][SCHED] cron job spec MATCHED for", job.ID)
			s.runCronJob(ctx, job)
		}
	}
}
