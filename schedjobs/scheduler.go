package schedjobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/zeptools/gw-certs/svc"
)

var (
	ErrDuplicateJob = errors.New("schedjobs: job id already scheduled")
	ErrInvalidJob   = errors.New("schedjobs: job needs an id and a task")

	// ErrDeferred returned (or wrapped) by a Task puts the job back for the next tick
	// without using up an attempt
	ErrDeferred = errors.New("schedjobs: delivery deferred")
)

type Conf struct {
	Tick        time.Duration `json:"-"` // resolution of one-time jobs
	TickStr     string        `json:"tick"`
	MaxAttempts int           `json:"max_attempts"`
	RetryDelay  time.Duration `json:"-"`
	RetryStr    string        `json:"retry_delay"`
	Workers     int           `json:"workers"` // concurrent one-time jobs
}

const (
	DefaultTick        = time.Second
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 30 * time.Second
	DefaultWorkers     = 4
)

// Normalize parses the duration strings and fills defaults
func (c *Conf) Normalize() error {
	var err error
	if c.TickStr != "" {
		if c.Tick, err = time.ParseDuration(c.TickStr); err != nil {
			return fmt.Errorf("tick: %w", err)
		}
	}
	if c.RetryStr != "" {
		if c.RetryDelay, err = time.ParseDuration(c.RetryStr); err != nil {
			return fmt.Errorf("retry_delay: %w", err)
		}
	}
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	return nil
}

// Scheduler is an in-process work queue with acknowledgement.
// A one-time job is acknowledged when its Task returns nil; an error (or panic)
// schedules a redelivery after RetryDelay, ErrDeferred one on the next tick.
// Cron jobs run once per matching minute.
type Scheduler struct {
	Ctx    context.Context
	cancel context.CancelFunc
	state  int
	done   chan error
	conf   Conf

	pending      map[string]*OneTimeJob
	inflight     map[string]*OneTimeJob
	cronJobs     []*CronJob
	lastCronSlot int64
	sem          chan struct{}
	mu           sync.Mutex
	wg           sync.WaitGroup
	// Default Callbacks
	OnOneTimeJobAdded    func(job *OneTimeJob)
	OnCronJobAdded       func(job *CronJob)
	OnOneTimeJobFinished func(job *OneTimeJob, err error)
	OnCronJobFinished    func(job *CronJob, err error)
	OnOneTimeJobDeleted  func(job *OneTimeJob)
	OnCronJobDeleted     func(job *CronJob)
	OnDeadLetter         func(job *OneTimeJob, err error)
}

var _ svc.Service = (*Scheduler)(nil)

func NewScheduler(parentCtx context.Context, conf Conf) *Scheduler {
	_ = conf.Normalize() // string durations are validated by the config loader
	ctx, cancel := context.WithCancel(parentCtx)
	return &Scheduler{
		Ctx:          ctx,
		cancel:       cancel,
		state:        svc.StateREADY,
		done:         make(chan error, 1),
		conf:         conf,
		pending:      make(map[string]*OneTimeJob),
		inflight:     make(map[string]*OneTimeJob),
		lastCronSlot: -1,
		sem:          make(chan struct{}, conf.Workers),
	}
}

func (s *Scheduler) Name() string {
	return "JobScheduler"
}

func (s *Scheduler) Conf() Conf {
	return s.conf
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != svc.StateREADY {
		return fmt.Errorf("scheduler cannot start from state %d", s.state)
	}
	s.state = svc.StateRUNNING
	go s.loop(s.Ctx)
	log.Println("[INFO][SCHED] job scheduler started")
	return nil
}

// Stop cancels running tasks and waits for them to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == svc.StateSTOPPED {
		s.mu.Unlock()
		return
	}
	s.state = svc.StateSTOPPED
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
	s.done <- nil
	log.Println("[INFO][SCHED] job scheduler stopped")
}

func (s *Scheduler) Done() <-chan error {
	return s.done
}

// AddOneTimeJob queues job for ExecTime; a zero or past ExecTime runs on the next tick.
// An id that is pending or in flight is rejected with ErrDuplicateJob.
func (s *Scheduler) AddOneTimeJob(job *OneTimeJob) error {
	if job == nil || job.ID == "" || job.Task == nil {
		return ErrInvalidJob
	}
	s.mu.Lock()
	if _, ok := s.pending[job.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}
	if _, ok := s.inflight[job.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}
	if job.ExecTime.IsZero() {
		job.ExecTime = time.Now()
	}
	s.pending[job.ID] = job
	s.mu.Unlock()
	if job.OnAdded != nil { // Job-specific callback
		protect("job.OnAdded", job.OnAdded)
	}
	if s.OnOneTimeJobAdded != nil { // Scheduler-level default callback
		s.OnOneTimeJobAdded(job)
	}
	return nil
}

// HasJob reports whether a one-time job with id is pending or running
func (s *Scheduler) HasJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, p := s.pending[id]
	_, r := s.inflight[id]
	return p || r
}

func (s *Scheduler) AddCronJob(job *CronJob) {
	s.mu.Lock()
	s.cronJobs = append(s.cronJobs, job)
	s.mu.Unlock()
	if job.OnAdded != nil {
		protect("job.OnAdded", job.OnAdded)
	}
	if s.OnCronJobAdded != nil {
		s.OnCronJobAdded(job)
	}
}

// GetOneTimeJobs returns the pending one-time jobs ordered by ExecTime
func (s *Scheduler) GetOneTimeJobs() []*OneTimeJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]*OneTimeJob, 0, len(s.pending))
	for _, job := range s.pending {
		jobs = append(jobs, job)
	}
	sortByExecTime(jobs)
	return jobs
}

// GetCronJobs returns a copy of all registered cron jobs
func (s *Scheduler) GetCronJobs() []*CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*CronJob(nil), s.cronJobs...)
}

// DeleteOneTimeJob removes a pending job. A running one is not interrupted.
func (s *Scheduler) DeleteOneTimeJob(jobID string) {
	s.mu.Lock()
	job, ok := s.pending[jobID]
	delete(s.pending, jobID)
	s.mu.Unlock()
	if ok && s.OnOneTimeJobDeleted != nil {
		s.OnOneTimeJobDeleted(job)
	}
}

// DeleteCronJob removes a cron job by its ID
func (s *Scheduler) DeleteCronJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	newJobs := s.cronJobs[:0] // reuse underlying array
	for _, job := range s.cronJobs {
		if job.ID != jobID {
			newJobs = append(newJobs, job)
		} else if s.OnCronJobDeleted != nil {
			s.OnCronJobDeleted(job)
		}
	}
	s.cronJobs = newJobs
}

// takeDue moves the jobs due at now from pending to inflight and counts the delivery
func (s *Scheduler) takeDue(now time.Time) []*OneTimeJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*OneTimeJob
	for id, job := range s.pending {
		if !job.ExecTime.After(now) {
			due = append(due, job)
			delete(s.pending, id)
			s.inflight[id] = job
			job.Attempts++
		}
	}
	sortByExecTime(due)
	return due
}

// cronSlot returns the minute to run cron jobs for, or -1 when this minute already ran
func (s *Scheduler) cronSlot(now time.Time) int64 {
	slot := now.Unix() / 60
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot == s.lastCronSlot {
		return -1
	}
	s.lastCronSlot = slot
	return slot
}

func (s *Scheduler) runOneTimeJob(ctx context.Context, job *OneTimeJob) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			s.settle(ctx, job, ctx.Err())
			return
		}
		err := runTask(ctx, job.Task)
		<-s.sem
		s.settle(ctx, job, err)
	}()
}

// settle acknowledges job, requeues it, or dead-letters it
func (s *Scheduler) settle(ctx context.Context, job *OneTimeJob, err error) {
	s.mu.Lock()
	delete(s.inflight, job.ID)
	if err != nil && ctx.Err() == nil && errors.Is(err, ErrDeferred) {
		job.Attempts--
		job.ExecTime = time.Now().Add(s.conf.Tick)
		s.pending[job.ID] = job
		s.mu.Unlock()
		return
	}
	attempts := job.Attempts
	if err != nil && ctx.Err() == nil && attempts < s.conf.MaxAttempts {
		retryAt := time.Now().Add(s.conf.RetryDelay)
		job.ExecTime = retryAt
		s.pending[job.ID] = job
		s.mu.Unlock()
		log.Printf("[WARN][SCHED] job %s attempt %d/%d failed, retrying at %s: %v",
			job.ID, attempts, s.conf.MaxAttempts, retryAt.Format(time.TimeOnly), err)
		return
	}
	s.mu.Unlock()
	if ctx.Err() != nil && err != nil {
		log.Printf("[WARN][SCHED] job %s abandoned at shutdown: %v", job.ID, err)
		return
	}
	if err != nil {
		log.Printf("[ERROR][SCHED] job %s dead-lettered after %d attempts: %v", job.ID, attempts, err)
		if job.OnDeadLetter != nil {
			protect("job.OnDeadLetter", func() { job.OnDeadLetter(err) })
		}
		if s.OnDeadLetter != nil {
			s.OnDeadLetter(job, err)
		}
	}
	if job.OnFinished != nil {
		protect("job.OnFinished", func() { job.OnFinished(err) })
	}
	if s.OnOneTimeJobFinished != nil {
		s.OnOneTimeJobFinished(job, err)
	}
}

func (s *Scheduler) runCronJob(ctx context.Context, job *CronJob) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := runTask(ctx, job.Task)
		if err != nil {
			log.Printf("[WARN][SCHED] cron job %s: %v", job.ID, err)
		}
		if job.OnFinished != nil {
			protect("job.OnFinished", func() { job.OnFinished(err) })
		}
		if s.OnCronJobFinished != nil {
			s.OnCronJobFinished(job, err)
		}
	}()
}

// runTask turns a panic into an error so a bad task cannot kill the scheduler
func runTask(ctx context.Context, task func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Println("[PANIC][SCHED] Recovered in task:", r)
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

func protect(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[PANIC][SCHED] Recovered in %s: %v", name, r)
		}
	}()
	fn()
}

func sortByExecTime(jobs []*OneTimeJob) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].ExecTime.Equal(jobs[j].ExecTime) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].ExecTime.Before(jobs[j].ExecTime)
	})
}
