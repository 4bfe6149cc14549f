package memory

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	c := New()

	ok, err := c.CompareAndSwap(ctx, "job:1", "", "v1", 0)
	if err != nil || !ok {
		t.Fatalf("create: ok=%v err=%v", ok, err)
	}
	if ok, _ = c.CompareAndSwap(ctx, "job:1", "", "v1-again", 0); ok {
		t.Fatalf("create over an existing key must fail")
	}
	if ok, _ = c.CompareAndSwap(ctx, "job:1", "stale", "v2", 0); ok {
		t.Fatalf("swap with a stale expected value must fail")
	}
	if ok, _ = c.CompareAndSwap(ctx, "job:1", "v1", "v2", 0); !ok {
		t.Fatalf("swap with the current value must succeed")
	}
	if v, found, _ := c.Get(ctx, "job:1"); !found || v != "v2" {
		t.Errorf("Get = %q, %v", v, found)
	}
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	c := New()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "k", "v", time.Minute)
	if _, found, _ := c.Get(ctx, "k"); !found {
		t.Fatalf("key should exist before its ttl")
	}
	now = now.Add(time.Minute)
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Errorf("key should be gone after its ttl")
	}
}

func TestLists(t *testing.T) {
	ctx := context.Background()
	c := New()
	for _, v := range []string{"a", "b", "a", "c", "a"} {
		_ = c.Push(ctx, "l", v)
	}
	if got, _ := c.Range(ctx, "l", 0, -1); !reflect.DeepEqual(got, []string{"a", "b", "a", "c", "a"}) {
		t.Fatalf("Range = %v", got)
	}
	if n, _ := c.Remove(ctx, "l", 1, "a"); n != 1 {
		t.Errorf("Remove(1) = %d", n)
	}
	if got, _ := c.Range(ctx, "l", 0, -1); !reflect.DeepEqual(got, []string{"b", "a", "c", "a"}) {
		t.Errorf("after Remove(1): %v", got)
	}
	if n, _ := c.Remove(ctx, "l", -1, "a"); n != 1 {
		t.Errorf("Remove(-1) = %d", n)
	}
	if got, _ := c.Range(ctx, "l", 0, -1); !reflect.DeepEqual(got, []string{"b", "a", "c"}) {
		t.Errorf("after Remove(-1): %v", got)
	}
	if v, ok, _ := c.Pop(ctx, "l"); !ok || v != "b" {
		t.Errorf("Pop = %q, %v", v, ok)
	}
	_ = c.Trim(ctx, "l", 1, 1)
	if got, _ := c.Range(ctx, "l", 0, -1); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("after Trim: %v", got)
	}
	if n, _ := c.Len(ctx, "l"); n != 1 {
		t.Errorf("Len = %d", n)
	}
}

func TestScanKeys(t *testing.T) {
	ctx := context.Background()
	c := New()
	for _, k := range []string{"job:1", "job:2", "job:3", "registry:x"} {
		_ = c.Set(ctx, k, "v", 0)
	}
	var (
		cursor any
		keys   []string
	)
	for {
		batch, next, err := c.ScanKeys(ctx, "job:*", cursor, 2)
		if err != nil {
			t.Fatalf("ScanKeys: %v", err)
		}
		keys = append(keys, batch...)
		if next == nil {
			break
		}
		cursor = next
	}
	if !reflect.DeepEqual(keys, []string{"job:1", "job:2", "job:3"}) {
		t.Errorf("keys = %v", keys)
	}
}
