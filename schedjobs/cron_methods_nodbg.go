//go:build !debug

package schedjobs

import (
	"time"
)

// Matches reports whether now falls on the job's schedule; seconds are ignored
func (job *CronJob) Matches(now time.Time) bool {
	return job.Minutes&(1<<now.Minute()) != 0 &&
		job.Hours&(1<<now.Hour()) != 0 &&
		job.DaysOfMonth&(1<<(now.Day()-1)) != 0 && // bit 0 = day 1
		job.Weekdays&(1<<now.Weekday()) != 0
}
