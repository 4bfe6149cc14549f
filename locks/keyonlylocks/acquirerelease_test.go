package keyonlylocks

import (
	"sync"
	"testing"
)

func TestAcquireRollsBackOnConflict(t *testing.T) {
	var store sync.Map
	held, ok := AcquireLocks(&store, []string{"job-b"})
	if !ok {
		t.Fatal("first acquire failed")
	}
	if _, ok = AcquireLocks(&store, []string{"job-a", "job-b"}); ok {
		t.Fatal("acquired a held key")
	}
	if _, loaded := store.Load("job-a"); loaded {
		t.Error("job-a not rolled back")
	}
	ReleaseLocks(&store, held)
	acquired, ok := AcquireLocks(&store, []string{"job-a", "job-b"})
	if !ok || len(acquired) != 2 {
		t.Fatalf("acquire after release = %v, %v", acquired, ok)
	}
}

func TestAcquireExclusive(t *testing.T) {
	var store sync.Map
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := AcquireLocks(&store, []string{"requester"}); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("wins = %d", wins)
	}
}
