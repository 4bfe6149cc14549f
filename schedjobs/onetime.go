package schedjobs

import (
	"context"
	"time"
)

// OneTimeJob runs once at ExecTime. A failed Task is redelivered until
// Scheduler.MaxAttempts is reached, then dead-lettered.
type OneTimeJob struct {
	ID       string
	ExecTime time.Time
	Task     func(ctx context.Context) error
	Attempts int // deliveries so far
	// Job-specific callbacks
	OnAdded      func()
	OnFinished   func(error) // final outcome: nil on success, last error when dead-lettered
	OnDeadLetter func(error)
}
