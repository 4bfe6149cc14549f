package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/zeptools/gw-certs/archive"
	"github.com/zeptools/gw-certs/certs"
	"github.com/zeptools/gw-certs/db/kvdb/impls/memory"
	"github.com/zeptools/gw-certs/jobs"
	"github.com/zeptools/gw-certs/schedjobs"
)

type fakeProducer struct {
	mu       sync.Mutex
	calls    map[string]int
	missing  map[string]bool // MissingTemplate
	outageAt string          // store outage once on this record
}

func (p *fakeProducer) Produce(ctx context.Context, id string) (certs.RenderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[id]++
	if id == p.outageAt {
		p.outageAt = ""
		return certs.RenderResult{}, errors.New("record store unavailable")
	}
	if p.missing[id] {
		return certs.Failed(id, certs.NewError(certs.KindMissingTemplate, id, errors.New("no template"))), nil
	}
	return certs.RenderResult{RecordID: id, DocumentPath: "/docs/" + id + ".pdf", DisplayName: "name " + id}, nil
}

type fakeAssembler struct {
	mu    sync.Mutex
	fails int
	seen  []*jobs.Job
}

func (a *fakeAssembler) Assemble(ctx context.Context, job *jobs.Job) (archive.Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fails > 0 {
		a.fails--
		return archive.Outcome{}, errors.New("disk full")
	}
	a.seen = append(a.seen, job)
	n := len(job.SuccessfulResults())
	return archive.Outcome{Path: "/out/a.zip", Name: "a.zip", URL: "https://dl/a.zip", ItemCount: n}, nil
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks map[string]*schedjobs.OneTimeJob
}

func (q *fakeQueue) AddOneTimeJob(job *schedjobs.OneTimeJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.tasks == nil {
		q.tasks = map[string]*schedjobs.OneTimeJob{}
	}
	if _, ok := q.tasks[job.ID]; ok {
		return schedjobs.ErrDuplicateJob
	}
	q.tasks[job.ID] = job
	return nil
}

func (q *fakeQueue) HasJob(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.tasks[id]
	return ok
}

// pending tasks ordered by ExecTime
func (q *fakeQueue) pending() []*schedjobs.OneTimeJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*schedjobs.OneTimeJob, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecTime.Before(out[j].ExecTime) })
	return out
}

// run delivers task id once; the task stays queued when it fails
func (q *fakeQueue) run(t *testing.T, id string) error {
	t.Helper()
	q.mu.Lock()
	task, ok := q.tasks[id]
	q.mu.Unlock()
	if !ok {
		t.Fatalf("no task %s", id)
	}
	err := task.Task(context.Background())
	if err == nil {
		q.mu.Lock()
		delete(q.tasks, id)
		q.mu.Unlock()
	}
	return err
}

type harness struct {
	o    *Orchestrator
	prod *fakeProducer
	asm  *fakeAssembler
	q    *fakeQueue
	now  time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{prod: &fakeProducer{}, asm: &fakeAssembler{}, q: &fakeQueue{}, now: time.Now()}
	conf := Conf{BatchDelay: time.Minute, StallAfter: 5 * time.Minute}
	h.o = New(conf, jobs.NewKVRepository(memory.New(), time.Hour), h.prod, h.asm, h.q)
	h.o.now = func() time.Time { return h.now }
	return h
}

func recordIDs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i + 1)
	}
	return out
}

func (h *harness) job(t *testing.T, id string) *jobs.Job {
	t.Helper()
	j, err := h.o.Repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return j
}

func TestSubmitRejectsEmpty(t *testing.T) {
	h := newHarness(t)
	if _, err := h.o.Submit(context.Background(), []string{"", "  "}, "a@b.c"); !errors.Is(err, ErrNoRecords) {
		t.Errorf("err = %v", err)
	}
}

func TestSubmitSchedulesStaggeredBatches(t *testing.T) {
	h := newHarness(t)
	id, err := h.o.Submit(context.Background(), append(recordIDs(25), "3", " 4 ", ""), "a@b.c")
	if err != nil {
		t.Fatal(err)
	}
	j := h.job(t, id)
	if j.TotalRecords != 25 || j.TotalBatches != 3 || j.Status != jobs.StatusPending {
		t.Fatalf("job = %+v", j.Progress())
	}
	tasks := h.q.pending()
	if len(tasks) != 3 {
		t.Fatalf("%d tasks queued", len(tasks))
	}
	for i, task := range tasks {
		if task.ID != BatchTaskID(id, i) || !task.ExecTime.Equal(h.now.Add(time.Duration(i)*time.Minute)) {
			t.Errorf("task %d = %s at %s", i, task.ID, task.ExecTime)
		}
	}
	if active, _ := h.o.Repo.Active(context.Background()); len(active) != 1 {
		t.Errorf("active = %v", active)
	}
}

func TestScenarioTwentyFiveRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, _ := h.o.Submit(ctx, recordIDs(25), "a@b.c")
	last := -1
	for i := 0; i < 3; i++ {
		if err := h.q.run(t, BatchTaskID(id, i)); err != nil {
			t.Fatalf("batch %d: %v", i, err)
		}
		p, _ := h.o.Progress(ctx, id)
		if p.Percent < last {
			t.Fatalf("progress went back from %d to %d", last, p.Percent)
		}
		last = p.Percent
		if i < 2 && p.Status != jobs.StatusProcessing {
			t.Errorf("after batch %d status = %s", i, p.Status)
		}
	}
	p, _ := h.o.Progress(ctx, id)
	if p.Status != jobs.StatusCompleted || p.Processed != 25 || p.Percent != 100 {
		t.Errorf("progress = %+v", p)
	}
	if p.ArchiveURL == "" || p.ArchiveItemCount != 25 {
		t.Errorf("archive = %+v", p)
	}
	if active, _ := h.o.Repo.Active(ctx); len(active) != 0 {
		t.Errorf("completed job still active: %v", active)
	}
}

func TestScenarioOneMissingTemplate(t *testing.T) {
	h := newHarness(t)
	h.prod.missing = map[string]bool{"5": true}
	ctx := context.Background()
	id, _ := h.o.Submit(ctx, recordIDs(10), "a@b.c")
	if err := h.q.run(t, BatchTaskID(id, 0)); err != nil {
		t.Fatal(err)
	}
	j := h.job(t, id)
	if j.Status != jobs.StatusCompleted || j.ProcessedRecords != 10 {
		t.Fatalf("job = %+v", j.Progress())
	}
	if len(j.Errors) != 1 {
		t.Errorf("errors = %v", j.Errors)
	}
	if len(h.asm.seen) != 1 || j.ArchiveItemCount != 9 {
		t.Errorf("archive got %d documents", j.ArchiveItemCount)
	}
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, _ := h.o.Submit(ctx, recordIDs(15), "a@b.c")
	if err := h.o.ExecuteBatch(ctx, id, 0); err != nil {
		t.Fatal(err)
	}
	if err := h.o.ExecuteBatch(ctx, id, 0); err != nil {
		t.Fatal(err)
	}
	j := h.job(t, id)
	if j.ProcessedRecords != 10 || j.ProcessedBatches != 1 {
		t.Errorf("redelivery counted twice: %+v", j.Progress())
	}
	for _, rid := range recordIDs(10) {
		if h.prod.calls[rid] != 1 {
			t.Errorf("record %s produced %d times", rid, h.prod.calls[rid])
		}
	}
}

func TestPartialBatchResumes(t *testing.T) {
	h := newHarness(t)
	h.prod.outageAt = "4"
	ctx := context.Background()
	id, _ := h.o.Submit(ctx, recordIDs(10), "a@b.c")
	if err := h.q.run(t, BatchTaskID(id, 0)); err == nil {
		t.Fatal("store outage should fail the delivery")
	}
	j := h.job(t, id)
	if len(j.Results) != 3 || j.ProcessedBatches != 0 || j.Status != jobs.StatusProcessing {
		t.Fatalf("after outage: %d results, %+v", len(j.Results), j.Progress())
	}
	if err := h.q.run(t, BatchTaskID(id, 0)); err != nil {
		t.Fatal(err)
	}
	if h.prod.calls["1"] != 1 || h.prod.calls["4"] != 2 {
		t.Errorf("calls = %v", h.prod.calls)
	}
	if j = h.job(t, id); j.Status != jobs.StatusCompleted || j.ProcessedRecords != 10 {
		t.Errorf("job = %+v", j.Progress())
	}
}

func TestExecuteBatchBusy(t *testing.T) {
	h := newHarness(t)
	id, _ := h.o.Submit(context.Background(), recordIDs(3), "a@b.c")
	h.o.locks.Store(id, struct{}{})
	err := h.o.ExecuteBatch(context.Background(), id, 0)
	if !errors.Is(err, ErrJobBusy) || !errors.Is(err, schedjobs.ErrDeferred) {
		t.Errorf("err = %v", err)
	}
}

func TestReconcileRequeuesStalledBatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, _ := h.o.Submit(ctx, recordIDs(30), "a@b.c")
	if err := h.q.run(t, BatchTaskID(id, 0)); err != nil {
		t.Fatal(err)
	}
	// batch 1 was lost, batch 2 is still queued
	h.q.mu.Lock()
	delete(h.q.tasks, BatchTaskID(id, 1))
	h.q.mu.Unlock()

	if n, _ := h.o.Reconcile(ctx); n != 0 {
		t.Fatalf("fresh job re-enqueued %d tasks", n)
	}
	h.now = h.now.Add(10 * time.Minute)
	n, err := h.o.Reconcile(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Reconcile = %d, %v", n, err)
	}
	if !h.q.HasJob(BatchTaskID(id, 1)) {
		t.Fatal("lost batch not re-enqueued")
	}
	for _, b := range []int{1, 2} {
		if err = h.q.run(t, BatchTaskID(id, b)); err != nil {
			t.Fatal(err)
		}
	}
	if j := h.job(t, id); j.Status != jobs.StatusCompleted || j.ProcessedRecords != 30 {
		t.Errorf("job = %+v", j.Progress())
	}
}

func TestRequeueIgnoresStallWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, _ := h.o.Submit(ctx, recordIDs(20), "a@b.c")
	h.q.mu.Lock()
	delete(h.q.tasks, BatchTaskID(id, 0))
	h.q.mu.Unlock()

	n, err := h.o.Requeue(ctx, id)
	if err != nil || n != 1 {
		t.Fatalf("Requeue = %d, %v", n, err)
	}
	if n, _ = h.o.Requeue(ctx, id); n != 0 {
		t.Errorf("second Requeue enqueued %d", n)
	}
	if _, err = h.o.Requeue(ctx, "cert_job_missing"); !errors.Is(err, jobs.ErrNotFound) {
		t.Errorf("missing job err = %v", err)
	}
}

func TestResumeAfterRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, _ := h.o.Submit(ctx, recordIDs(15), "a@b.c")
	b, _ := h.o.Submit(ctx, recordIDs(5), "x@y.z")
	if err := h.q.run(t, BatchTaskID(b, 0)); err != nil {
		t.Fatal(err)
	}
	// a new process starts with an empty queue
	h.q.mu.Lock()
	h.q.tasks = nil
	h.q.mu.Unlock()

	n, err := h.o.Resume(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Resume = %d, %v", n, err)
	}
	for _, id := range []string{BatchTaskID(a, 0), BatchTaskID(a, 1)} {
		if !h.q.HasJob(id) {
			t.Errorf("%s not resumed", id)
		}
	}
}

func TestArchiveFailureLeavesLastBatchOpen(t *testing.T) {
	h := newHarness(t)
	h.asm.fails = 1
	ctx := context.Background()
	id, _ := h.o.Submit(ctx, recordIDs(5), "a@b.c")
	if err := h.q.run(t, BatchTaskID(id, 0)); err == nil {
		t.Fatal("archive failure should fail the delivery")
	}
	// the queue gave up on this delivery
	h.q.mu.Lock()
	delete(h.q.tasks, BatchTaskID(id, 0))
	h.q.mu.Unlock()
	j := h.job(t, id)
	if j.ProcessedBatches != 0 || len(j.Results) != 5 || j.Status != jobs.StatusProcessing {
		t.Fatalf("job = %+v", j.Progress())
	}
	h.now = h.now.Add(time.Hour)
	if n, _ := h.o.Reconcile(ctx); n != 1 || !h.q.HasJob(BatchTaskID(id, 0)) {
		t.Fatalf("batch not re-enqueued (%d)", n)
	}
	if err := h.q.run(t, BatchTaskID(id, 0)); err != nil {
		t.Fatal(err)
	}
	if j = h.job(t, id); j.Status != jobs.StatusCompleted || j.CompletedAt.IsZero() || j.ProcessedRecords != 5 {
		t.Errorf("job = %+v", j.Progress())
	}
	if h.prod.calls["3"] != 1 {
		t.Errorf("record 3 produced %d times", h.prod.calls["3"])
	}
}

func TestReconcileFinalizesCountedJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, _ := h.o.Submit(ctx, recordIDs(5), "a@b.c")
	h.q.mu.Lock()
	h.q.tasks = nil
	h.q.mu.Unlock()
	// counted by another process that died before archiving
	_, err := jobs.Update(ctx, h.o.Repo, id, func(j *jobs.Job) error {
		for _, rid := range j.Batches[0] {
			j.AddResult(certs.RenderResult{RecordID: rid, DocumentPath: "/docs/" + rid + ".pdf"})
		}
		j.Status = jobs.StatusProcessing
		j.MarkBatchDone(0)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	h.now = h.now.Add(time.Hour)
	if n, _ := h.o.Reconcile(ctx); n != 1 || !h.q.HasJob(FinalizeTaskID(id)) {
		t.Fatalf("finalize not enqueued (%d)", n)
	}
	if err = h.q.run(t, FinalizeTaskID(id)); err != nil {
		t.Fatal(err)
	}
	if j := h.job(t, id); j.Status != jobs.StatusCompleted || j.ArchiveItemCount != 5 {
		t.Errorf("job = %+v", j.Progress())
	}
}

// checkedRepo fails the test when a stored job has every batch counted but is not completed
type checkedRepo struct {
	jobs.Repository
	t      *testing.T
	writes int
}

func (r *checkedRepo) CompareAndSwap(ctx context.Context, expected int64, job *jobs.Job) error {
	r.writes++
	if job.ProcessedBatches == job.TotalBatches && job.Status != jobs.StatusCompleted {
		r.t.Errorf("stored %d/%d batches with status %s", job.ProcessedBatches, job.TotalBatches, job.Status)
	}
	return r.Repository.CompareAndSwap(ctx, expected, job)
}

func TestCountedJobIsAlwaysCompleted(t *testing.T) {
	for _, n := range []int{1, 10, 25} {
		t.Run(strconv.Itoa(n), func(t *testing.T) {
			h := newHarness(t)
			repo := &checkedRepo{Repository: h.o.Repo, t: t}
			h.o.Repo = repo
			ctx := context.Background()
			id, _ := h.o.Submit(ctx, recordIDs(n), "a@b.c")
			j := h.job(t, id)
			for i := range j.Batches {
				if err := h.q.run(t, BatchTaskID(id, i)); err != nil {
					t.Fatalf("batch %d: %v", i, err)
				}
			}
			if j = h.job(t, id); j.Status != jobs.StatusCompleted || j.ProcessedBatches != j.TotalBatches {
				t.Errorf("job = %+v", j.Progress())
			}
			if repo.writes == 0 {
				t.Error("no writes seen")
			}
		})
	}
}

func TestDeadLetterMarksFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, _ := h.o.Submit(ctx, recordIDs(12), "a@b.c")
	task := h.q.pending()[0]
	task.OnDeadLetter(errors.New("store down"))

	j := h.job(t, id)
	if j.Status != jobs.StatusFailed || len(j.Errors) != 1 {
		t.Fatalf("job = %+v", j.Progress())
	}
	if active, _ := h.o.Repo.Active(ctx); len(active) != 0 {
		t.Errorf("failed job still active")
	}
	if err := h.o.ExecuteBatch(ctx, id, 1); err != nil {
		t.Fatal(err)
	}
	if j = h.job(t, id); j.ProcessedBatches != 0 || j.Status != jobs.StatusFailed {
		t.Errorf("terminal job changed: %+v", j.Progress())
	}
	if err := h.o.MarkFailed(ctx, id, "again"); err != nil || len(h.job(t, id).Errors) != 1 {
		t.Errorf("MarkFailed on a failed job: %v", err)
	}
}

func TestWithScheduler(t *testing.T) {
	sched := schedjobs.NewScheduler(context.Background(), schedjobs.Conf{
		Tick: 5 * time.Millisecond, MaxAttempts: 5, RetryDelay: 10 * time.Millisecond, Workers: 1,
	})
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	prod := &fakeProducer{outageAt: "7"}
	o := New(Conf{BatchDelay: 0, StallAfter: time.Minute}, jobs.NewKVRepository(memory.New(), time.Hour), prod, &fakeAssembler{}, sched)
	id, err := o.Submit(context.Background(), recordIDs(23), "a@b.c")
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		p, err := o.Progress(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if p.Status == jobs.StatusCompleted {
			if p.Processed != 23 || p.ArchiveItemCount != 23 {
				t.Errorf("progress = %+v", p)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not complete: %+v", p)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// slowProducer takes longer per batch than the delay between batches
type slowProducer struct {
	fakeProducer
	delay time.Duration
}

func (p *slowProducer) Produce(ctx context.Context, id string) (certs.RenderResult, error) {
	time.Sleep(p.delay)
	return p.fakeProducer.Produce(ctx, id)
}

func TestOverlappingBatchesWait(t *testing.T) {
	sched := schedjobs.NewScheduler(context.Background(), schedjobs.Conf{
		Tick: 2 * time.Millisecond, MaxAttempts: 2, RetryDelay: 5 * time.Millisecond, Workers: 4,
	})
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	prod := &slowProducer{delay: 3 * time.Millisecond}
	o := New(Conf{BatchDelay: time.Millisecond, StallAfter: time.Minute}, jobs.NewKVRepository(memory.New(), time.Hour), prod, &fakeAssembler{}, sched)
	id, err := o.Submit(context.Background(), recordIDs(20), "a@b.c")
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		p, err := o.Progress(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if p.Status.Terminal() {
			if p.Status != jobs.StatusCompleted || p.Processed != 20 || len(p.Errors) != 0 {
				t.Errorf("progress = %+v", p)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish: %+v", p)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBatchTaskIDs(t *testing.T) {
	if got := BatchTaskID("j", 3); got != "j:batch:3" {
		t.Error(got)
	}
	if got := fmt.Sprint(FinalizeTaskID("j")); got != "j:finalize" {
		t.Error(got)
	}
}
