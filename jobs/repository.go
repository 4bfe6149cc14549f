package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/zeptools/gw-certs/db/kvdb"
)

var (
	ErrNotFound = errors.New("jobs: job not found")
	ErrExists   = errors.New("jobs: job already exists")
	ErrConflict = errors.New("jobs: concurrent update")
)

// Repository persists jobs. Writers go through CompareAndSwap, see Update.
type Repository interface {
	Get(ctx context.Context, id string) (*Job, error)
	// Create stores a new job at version 1 and adds it to the active index
	Create(ctx context.Context, job *Job) error
	// CompareAndSwap stores job if the stored version still equals expected.
	// On success job.Version is expected+1.
	CompareAndSwap(ctx context.Context, expected int64, job *Job) error
	// Active lists ids of jobs that are not finished yet
	Active(ctx context.Context) ([]string, error)
	Deactivate(ctx context.Context, id string) error
}

const DefaultTTL = 24 * time.Hour

// KVRepository keeps each job as one JSON value in a kvdb.Client
type KVRepository struct {
	client kvdb.Client
	ttl    time.Duration
}

var _ Repository = (*KVRepository)(nil)

func NewKVRepository(client kvdb.Client, ttl time.Duration) *KVRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &KVRepository{client: client, ttl: ttl}
}

func (r *KVRepository) jobKey(id string) string {
	return kvdb.Key(r.client, "certjobs", "job", id)
}

func (r *KVRepository) activeKey() string {
	return kvdb.Key(r.client, "certjobs", "active")
}

func (r *KVRepository) load(ctx context.Context, id string) (*Job, string, error) {
	raw, found, err := r.client.Get(ctx, r.jobKey(id))
	if err != nil {
		return nil, "", fmt.Errorf("load job %s: %w", id, err)
	}
	if !found {
		return nil, "", ErrNotFound
	}
	var job Job
	if err = json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, "", fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, raw, nil
}

func (r *KVRepository) Get(ctx context.Context, id string) (*Job, error) {
	job, _, err := r.load(ctx, id)
	return job, err
}

func (r *KVRepository) Create(ctx context.Context, job *Job) error {
	job.Version = 1
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	ok, err := r.client.CompareAndSwap(ctx, r.jobKey(job.ID), "", string(b), r.ttl)
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	if !ok {
		return ErrExists
	}
	if err = r.client.Push(ctx, r.activeKey(), job.ID); err != nil {
		return fmt.Errorf("index job %s: %w", job.ID, err)
	}
	return nil
}

func (r *KVRepository) CompareAndSwap(ctx context.Context, expected int64, job *Job) error {
	current, raw, err := r.load(ctx, job.ID)
	if err != nil {
		return err
	}
	if current.Version != expected {
		return ErrConflict
	}
	job.Version = expected + 1
	b, err := json.Marshal(job)
	if err != nil {
		job.Version = expected
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	// the raw compare covers writers racing between load and swap
	ok, err := r.client.CompareAndSwap(ctx, r.jobKey(job.ID), raw, string(b), r.ttl)
	if err != nil || !ok {
		job.Version = expected
		if err != nil {
			return fmt.Errorf("save job %s: %w", job.ID, err)
		}
		return ErrConflict
	}
	return nil
}

func (r *KVRepository) Active(ctx context.Context) ([]string, error) {
	ids, err := r.client.Range(ctx, r.activeKey(), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	return ids, nil
}

func (r *KVRepository) Deactivate(ctx context.Context, id string) error {
	if _, err := r.client.Remove(ctx, r.activeKey(), 0, id); err != nil {
		return fmt.Errorf("deactivate job %s: %w", id, err)
	}
	return nil
}

// MaxUpdateAttempts bounds the CAS loop of Update
const MaxUpdateAttempts = 16

// ErrNoChange returned by an Update mutator leaves the stored job untouched
var ErrNoChange = errors.New("jobs: no change")

// Update applies fn to the latest stored job and saves it, retrying on conflicts.
// fn may run several times and must only mutate the job it is given.
// Returns the job as stored.
func Update(ctx context.Context, repo Repository, id string, fn func(*Job) error) (*Job, error) {
	for attempt := 1; attempt <= MaxUpdateAttempts; attempt++ {
		job, err := repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		expected := job.Version
		if err = fn(job); err != nil {
			if errors.Is(err, ErrNoChange) {
				return job, nil
			}
			return nil, err
		}
		job.UpdatedAt = time.Now()
		err = repo.CompareAndSwap(ctx, expected, job)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		if attempt > MaxUpdateAttempts/2 {
			log.Printf("[WARN][JOBS] job %s: update conflict, attempt %d", id, attempt)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("job %s: %w after %d attempts", id, ErrConflict, MaxUpdateAttempts)
}
