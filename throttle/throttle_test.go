package throttle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newStore(t *testing.T, conf BucketConf) *BucketStore[string] {
	t.Helper()
	s := NewBucketStore[string](context.Background(), time.Minute, 10*time.Minute)
	s.SetBucketGroup(GroupSubmit, &conf)
	return s
}

func TestAllowBurstThenRefill(t *testing.T) {
	s := newStore(t, BucketConf{Burst: 3, Increment: 1, Period: time.Minute})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if !s.Allow(GroupSubmit, "req-a", now) {
			t.Fatalf("request %d blocked inside burst", i)
		}
	}
	if s.Allow(GroupSubmit, "req-a", now) {
		t.Fatal("request past burst allowed")
	}
	if !s.Allow(GroupSubmit, "req-b", now) {
		t.Fatal("other requester must have its own bucket")
	}
	if !s.Allow(GroupSubmit, "req-a", now.Add(61*time.Second)) {
		t.Fatal("refill after one period should allow one more")
	}
	if s.Allow(GroupSubmit, "req-a", now.Add(62*time.Second)) {
		t.Fatal("only one token per period")
	}
}

func TestAllowUnknownGroupBlocks(t *testing.T) {
	s := newStore(t, BucketConf{Burst: 3, Increment: 1, Period: time.Minute})
	if s.Allow("nope", "req-a", time.Now()) {
		t.Fatal("unknown group must block")
	}
}

func TestAllowConcurrentFirstRequests(t *testing.T) {
	s := newStore(t, BucketConf{Burst: 5, Increment: 1, Period: time.Hour})
	now := time.Now()
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Allow(GroupSubmit, "same", now) {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := allowed.Load(); got != 5 {
		t.Fatalf("allowed = %d, want 5", got)
	}
}

func TestCleanupRemovesIdleBuckets(t *testing.T) {
	s := newStore(t, BucketConf{Burst: 2, Increment: 1, Period: time.Minute})
	now := time.Now()
	s.Allow(GroupSubmit, "old", now.Add(-time.Hour))
	s.Allow(GroupSubmit, "fresh", now)
	s.Cleanup(now)
	if _, ok := s.GetBucket(GroupSubmit, "old"); ok {
		t.Error("idle bucket survived cleanup")
	}
	if _, ok := s.GetBucket(GroupSubmit, "fresh"); !ok {
		t.Error("fresh bucket removed")
	}
}

func TestBucketConfNormalize(t *testing.T) {
	c := BucketConf{Burst: 4, PeriodStr: "30s"}
	if err := c.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if c.Period != 30*time.Second || c.Increment != 1 {
		t.Errorf("conf = %+v", c)
	}
	bad := BucketConf{Burst: 0, PeriodStr: "1m"}
	if err := bad.Normalize(); err == nil {
		t.Error("zero burst accepted")
	}
	bad = BucketConf{Burst: 1, PeriodStr: "soon"}
	if err := bad.Normalize(); err == nil {
		t.Error("bad period accepted")
	}
}

func TestServiceStopSignalsDone(t *testing.T) {
	s := newStore(t, BucketConf{Burst: 1, Increment: 1, Period: time.Minute})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start should fail")
	}
	s.Stop()
	select {
	case err := <-s.Done():
		if err != nil {
			t.Errorf("done err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no done signal")
	}
}
