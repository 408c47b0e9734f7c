package reqctx

import (
	"context"
	"sync"
	"testing"
)

func TestNextID_StartsAtOneAndIsMonotonic(t *testing.T) {
	c := New()
	for want := uint64(1); want <= 5; want++ {
		if got := c.NextID(); got != want {
			t.Fatalf("NextID()=%d, want %d", got, want)
		}
	}
}

func TestNextID_ConcurrentUnique(t *testing.T) {
	c := New()
	const workers, per = 16, 200
	var mu sync.Mutex
	seen := make(map[uint64]bool, workers*per)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				id := c.NextID()
				mu.Lock()
				if seen[id] {
					t.Errorf("duplicate id %d", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != workers*per {
		t.Fatalf("got %d ids", len(seen))
	}
	if c.NextID() != workers*per+1 {
		t.Fatal("ids skipped values")
	}
}

func TestStreams_AcquireReleaseBalance(t *testing.T) {
	c := New()
	a := c.Acquire()
	b := c.Acquire()
	c.Attach(a, 101)
	if n := c.ActiveStreams(); n != 2 {
		t.Fatalf("active=%d", n)
	}
	c.Release(a)
	c.Release(a) // double release must not underflow
	c.Release(b)
	if n := c.ActiveStreams(); n != 0 {
		t.Fatalf("active=%d", n)
	}
}

func TestReset_ReturnsGroupsAndZeroes(t *testing.T) {
	c := New()
	a := c.Acquire()
	c.Attach(a, 42)
	_ = c.Acquire() // not attached yet
	groups := c.Reset()
	if len(groups) != 1 || groups[0] != 42 {
		t.Fatalf("groups=%v", groups)
	}
	if c.ActiveStreams() != 0 {
		t.Fatal("reset did not zero the counter")
	}
	// late cleanup of a reset stream stays harmless
	c.Attach(a, 43)
	c.Release(a)
	if c.ActiveStreams() != 0 {
		t.Fatal("released slot resurrected")
	}
	if groups := c.Reset(); len(groups) != 0 {
		t.Fatalf("late attach resurrected group: %v", groups)
	}
}

func TestRequestContextRoundTrip(t *testing.T) {
	c := New()
	rc := c.Begin()
	ctx := WithRequest(context.Background(), rc)
	got, ok := FromContext(ctx)
	if !ok || got.ID != rc.ID || got.ID != 1 {
		t.Fatalf("got %+v ok=%v", got, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context must not carry a request")
	}
}
