package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zeptools/gw-certs/archive"
	"github.com/zeptools/gw-certs/certs"
	"github.com/zeptools/gw-certs/jobs"
	"github.com/zeptools/gw-certs/locks/keyonlylocks"
	"github.com/zeptools/gw-certs/schedjobs"
)

var (
	ErrNoRecords = errors.New("orchestrator: no records to render")

	// ErrJobBusy defers a delivery while another one holds the job
	ErrJobBusy = fmt.Errorf("orchestrator: job is busy: %w", schedjobs.ErrDeferred)
)

// Producer renders one record, see documents.Producer
type Producer interface {
	Produce(ctx context.Context, recordID string) (certs.RenderResult, error)
}

// Assembler packs a finished job, see archive.Assembler
type Assembler interface {
	Assemble(ctx context.Context, job *jobs.Job) (archive.Outcome, error)
}

// Queue is the acknowledged work queue batches run on, see schedjobs.Scheduler
type Queue interface {
	AddOneTimeJob(job *schedjobs.OneTimeJob) error
	HasJob(id string) bool
}

type Conf struct {
	BatchDelayStr string        `json:"batch_delay"`
	BatchDelay    time.Duration `json:"-"`
	StallAfterStr string        `json:"stall_after"`
	StallAfter    time.Duration `json:"-"`
}

const (
	DefaultBatchDelay = 60 * time.Second
	DefaultStallAfter = 5 * time.Minute
)

func (c *Conf) Normalize() error {
	var err error
	if c.BatchDelayStr != "" {
		if c.BatchDelay, err = time.ParseDuration(c.BatchDelayStr); err != nil {
			return fmt.Errorf("batch_delay: %w", err)
		}
	}
	if c.StallAfterStr != "" {
		if c.StallAfter, err = time.ParseDuration(c.StallAfterStr); err != nil {
			return fmt.Errorf("stall_after: %w", err)
		}
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.BatchDelay == 0 && c.BatchDelayStr == "" {
		c.BatchDelay = DefaultBatchDelay
	}
	if c.StallAfter <= 0 {
		c.StallAfter = DefaultStallAfter
	}
	return nil
}

// Orchestrator splits a request into batches, runs them through the queue and
// finalizes the job once every batch is counted. It is the only writer of job state.
type Orchestrator struct {
	Conf      Conf
	Repo      jobs.Repository
	Producer  Producer
	Assembler Assembler
	Queue     Queue

	locks sync.Map // job id -> struct{}
	now   func() time.Time
}

func New(conf Conf, repo jobs.Repository, producer Producer, assembler Assembler, queue Queue) *Orchestrator {
	return &Orchestrator{Conf: conf, Repo: repo, Producer: producer, Assembler: assembler, Queue: queue, now: time.Now}
}

func BatchTaskID(jobID string, batch int) string {
	return jobID + ":batch:" + strconv.Itoa(batch)
}

func FinalizeTaskID(jobID string) string {
	return jobID + ":finalize"
}

// Submit persists a pending job over recordIDs and enqueues its batches BatchDelay apart
func (o *Orchestrator) Submit(ctx context.Context, recordIDs []string, requesterKey string) (string, error) {
	ids := dedupe(recordIDs)
	if len(ids) == 0 {
		return "", ErrNoRecords
	}
	now := o.now()
	hash := jobs.RequesterHash(requesterKey)
	job := jobs.New(jobs.NewID(hash, now), hash, ids, now)
	if err := o.Repo.Create(ctx, job); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	for i := range job.Batches {
		if err := o.enqueueBatch(job.ID, i, now.Add(time.Duration(i)*o.Conf.BatchDelay)); err != nil {
			// the reconcile sweep picks up what could not be queued
			log.Printf("[WARN][ORCH] job %s batch %d: %v", job.ID, i, err)
		}
	}
	log.Printf("[INFO][ORCH] job %s: %d records in %d batches", job.ID, job.TotalRecords, job.TotalBatches)
	return job.ID, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (o *Orchestrator) enqueueBatch(jobID string, batch int, at time.Time) error {
	err := o.Queue.AddOneTimeJob(&schedjobs.OneTimeJob{
		ID:       BatchTaskID(jobID, batch),
		ExecTime: at,
		Task: func(ctx context.Context) error {
			return o.ExecuteBatch(ctx, jobID, batch)
		},
		OnDeadLetter: func(err error) {
			o.deadLetter(jobID, fmt.Sprintf("batch %d: %v", batch, err))
		},
	})
	if errors.Is(err, schedjobs.ErrDuplicateJob) {
		return nil
	}
	return err
}

func (o *Orchestrator) enqueueFinalize(jobID string, at time.Time) error {
	err := o.Queue.AddOneTimeJob(&schedjobs.OneTimeJob{
		ID:       FinalizeTaskID(jobID),
		ExecTime: at,
		Task: func(ctx context.Context) error {
			return o.Finalize(ctx, jobID)
		},
		OnDeadLetter: func(err error) {
			o.deadLetter(jobID, fmt.Sprintf("finalize: %v", err))
		},
	})
	if errors.Is(err, schedjobs.ErrDuplicateJob) {
		return nil
	}
	return err
}

func (o *Orchestrator) deadLetter(jobID string, cause string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.MarkFailed(ctx, jobID, cause); err != nil {
		log.Printf("[ERROR][ORCH] job %s: cannot mark failed (%s): %v", jobID, cause, err)
	}
}

func (o *Orchestrator) lock(jobID string) ([]string, bool) {
	return keyonlylocks.AcquireLocks(&o.locks, []string{jobID})
}

func (o *Orchestrator) unlock(keys []string) {
	keyonlylocks.ReleaseLocks(&o.locks, keys)
}

// ExecuteBatch renders batch of jobID. Redelivery is safe: records with a result and
// counted batches are skipped. An error asks the queue to redeliver.
func (o *Orchestrator) ExecuteBatch(ctx context.Context, jobID string, batch int) error {
	acquired, ok := o.lock(jobID)
	if !ok {
		return ErrJobBusy
	}
	defer o.unlock(acquired)

	job, err := o.Repo.Get(ctx, jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		log.Printf("[WARN][ORCH] job %s is gone, dropping batch %d", jobID, batch)
		return nil
	}
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	if batch < 0 || batch >= len(job.Batches) {
		log.Printf("[ERROR][ORCH] job %s has no batch %d", jobID, batch)
		return nil
	}
	if job.BatchDone(batch) {
		if job.FullyProcessed() {
			return o.complete(ctx, job, -1)
		}
		return nil
	}

	if job.Status == jobs.StatusPending {
		job, err = jobs.Update(ctx, o.Repo, jobID, func(j *jobs.Job) error {
			if j.Status != jobs.StatusPending {
				return jobs.ErrNoChange
			}
			j.Status = jobs.StatusProcessing
			return nil
		})
		if err != nil {
			return err
		}
	}

	for _, recordID := range job.Batches[batch] {
		if job.HasResult(recordID) {
			continue
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		res, err := o.Producer.Produce(ctx, recordID)
		if err != nil {
			return fmt.Errorf("job %s batch %d record %s: %w", jobID, batch, recordID, err)
		}
		if line := res.ErrorLine(); line != "" {
			log.Printf("[WARN][ORCH] job %s: %s", jobID, line)
		}
		job, err = jobs.Update(ctx, o.Repo, jobID, func(j *jobs.Job) error {
			if j.HasResult(recordID) {
				return jobs.ErrNoChange
			}
			j.AddResult(res)
			return nil
		})
		if err != nil {
			return err
		}
	}

	if job.ProcessedBatches == job.TotalBatches-1 {
		return o.complete(ctx, job, batch)
	}
	job, err = jobs.Update(ctx, o.Repo, jobID, func(j *jobs.Job) error {
		if !j.MarkBatchDone(batch) {
			return jobs.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("[INFO][ORCH] job %s batch %d done, %d/%d records", jobID, batch, job.ProcessedRecords, job.TotalRecords)
	return nil
}

// Finalize assembles the archive of a fully processed job and completes it
func (o *Orchestrator) Finalize(ctx context.Context, jobID string) error {
	acquired, ok := o.lock(jobID)
	if !ok {
		return ErrJobBusy
	}
	defer o.unlock(acquired)
	return o.finalize(ctx, jobID)
}

func (o *Orchestrator) finalize(ctx context.Context, jobID string) error {
	job, err := o.Repo.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return nil
		}
		return err
	}
	if job.Status.Terminal() {
		return o.Repo.Deactivate(ctx, jobID)
	}
	if !job.FullyProcessed() {
		log.Printf("[WARN][ORCH] job %s: finalize before all batches ran (%d/%d)", jobID, job.ProcessedBatches, job.TotalBatches)
		return nil
	}
	return o.complete(ctx, job, -1)
}

// complete assembles the archive of job and then, in one write, counts its last
// batch (if batch >= 0) and marks it completed. A job whose every batch is counted
// is therefore always completed.
func (o *Orchestrator) complete(ctx context.Context, job *jobs.Job, batch int) error {
	jobID := job.ID
	if batch >= 0 {
		job.MarkBatchDone(batch)
	}
	out, err := o.Assembler.Assemble(ctx, job)
	if err != nil {
		return fmt.Errorf("job %s archive: %w", jobID, err)
	}
	job, err = jobs.Update(ctx, o.Repo, jobID, func(j *jobs.Job) error {
		if j.Status.Terminal() {
			return jobs.ErrNoChange
		}
		if batch >= 0 {
			j.MarkBatchDone(batch)
		}
		if !j.FullyProcessed() {
			return nil
		}
		j.ArchivePath, j.ArchiveName, j.ArchiveURL, j.ArchiveItemCount = out.Path, out.Name, out.URL, out.ItemCount
		j.Errors = append(j.Errors, out.Errors...)
		j.Status = jobs.StatusCompleted
		j.CompletedAt = o.now()
		return nil
	})
	if err != nil {
		return err
	}
	if job.Status != jobs.StatusCompleted {
		if !job.Status.Terminal() {
			log.Printf("[WARN][ORCH] job %s: archived before all batches ran (%d/%d)", jobID, job.ProcessedBatches, job.TotalBatches)
		}
		return nil
	}
	if err = o.Repo.Deactivate(ctx, jobID); err != nil {
		log.Printf("[WARN][ORCH] %v", err)
	}
	log.Printf("[INFO][ORCH] job %s %s: %d documents archived, %d errors", jobID, job.Status, job.ArchiveItemCount, len(job.Errors))
	return nil
}

func (o *Orchestrator) Progress(ctx context.Context, jobID string) (jobs.Progress, error) {
	job, err := o.Repo.Get(ctx, jobID)
	if err != nil {
		return jobs.Progress{}, err
	}
	return job.Progress(), nil
}

// MarkFailed is the dead-letter hook: an infrastructure fault exhausted a task's attempts
func (o *Orchestrator) MarkFailed(ctx context.Context, jobID string, cause string) error {
	changed := false
	_, err := jobs.Update(ctx, o.Repo, jobID, func(j *jobs.Job) error {
		if j.Status.Terminal() {
			changed = false
			return jobs.ErrNoChange
		}
		changed = true
		j.Status = jobs.StatusFailed
		j.Errors = append(j.Errors, cause)
		j.CompletedAt = o.now()
		return nil
	})
	if err != nil || !changed {
		return err
	}
	log.Printf("[ERROR][ORCH] job %s failed: %s", jobID, cause)
	return o.Repo.Deactivate(ctx, jobID)
}

// Reconcile re-enqueues the work of stalled active jobs the queue no longer holds.
// Returns the number of tasks enqueued.
func (o *Orchestrator) Reconcile(ctx context.Context) (int, error) {
	ids, err := o.Repo.Active(ctx)
	if err != nil {
		return 0, err
	}
	now := o.now()
	n := 0
	for _, id := range ids {
		job, err := o.Repo.Get(ctx, id)
		if errors.Is(err, jobs.ErrNotFound) {
			_ = o.Repo.Deactivate(ctx, id)
			continue
		}
		if err != nil {
			return n, err
		}
		if job.Status.Terminal() {
			_ = o.Repo.Deactivate(ctx, id)
			continue
		}
		if now.Sub(job.UpdatedAt) < o.Conf.StallAfter {
			continue
		}
		m, err := o.requeue(job, now)
		n += m
		if err != nil {
			return n, err
		}
		if m > 0 {
			log.Printf("[WARN][ORCH] job %s stalled since %s, re-enqueued %d tasks", id, job.UpdatedAt.Format(time.RFC3339), m)
		}
	}
	return n, nil
}

// Requeue enqueues whatever task of a non-terminal job is missing from the queue,
// without waiting for the stall window. Returns the number of tasks enqueued.
func (o *Orchestrator) Requeue(ctx context.Context, jobID string) (int, error) {
	job, err := o.Repo.Get(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if job.Status.Terminal() {
		return 0, nil
	}
	return o.requeue(job, o.now())
}

func (o *Orchestrator) requeue(job *jobs.Job, now time.Time) (int, error) {
	if job.FullyProcessed() {
		if o.Queue.HasJob(FinalizeTaskID(job.ID)) {
			return 0, nil
		}
		if err := o.enqueueFinalize(job.ID, now); err != nil {
			return 0, err
		}
		return 1, nil
	}
	n := 0
	for _, batch := range job.UndoneBatches() {
		if o.Queue.HasJob(BatchTaskID(job.ID, batch)) {
			continue
		}
		if err := o.enqueueBatch(job.ID, batch, now); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Resume re-enqueues the missing tasks of every active job, for a process that
// starts with an empty queue. Returns the number of tasks enqueued.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	ids, err := o.Repo.Active(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		m, err := o.Requeue(ctx, id)
		n += m
		if errors.Is(err, jobs.ErrNotFound) {
			_ = o.Repo.Deactivate(ctx, id)
			continue
		}
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// ReconcileCronJob runs Reconcile every minute
func (o *Orchestrator) ReconcileCronJob() *schedjobs.CronJob {
	return schedjobs.EveryMinute("certs-reconcile", func(ctx context.Context) error {
		n, err := o.Reconcile(ctx)
		if n > 0 {
			log.Printf("[INFO][ORCH] reconcile enqueued %d tasks", n)
		}
		return err
	})
}
