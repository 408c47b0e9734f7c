package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestCache(ttl time.Duration) (*TTL[string], *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	return New[string](ttl).WithClock(clk.Now), clk
}

func TestGet_WarmReadSkipsCompute(t *testing.T) {
	c, clk := newTestCache(5 * time.Second)
	calls := 0
	compute := func() (string, error) { calls++; return "v", nil }

	if v, err := c.Get(compute); err != nil || v != "v" {
		t.Fatalf("first get: %q %v", v, err)
	}
	clk.Advance(4 * time.Second)
	if v, err := c.Get(compute); err != nil || v != "v" {
		t.Fatalf("second get: %q %v", v, err)
	}
	if calls != 1 {
		t.Fatalf("compute calls=%d, want 1", calls)
	}
}

func TestGet_ExpiredRefreshes(t *testing.T) {
	c, clk := newTestCache(time.Second)
	n := 0
	compute := func() (string, error) { n++; return string(rune('a' + n - 1)), nil }
	_, _ = c.Get(compute)
	clk.Advance(time.Second)
	v, err := c.Get(compute)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != "b" || n != 2 {
		t.Fatalf("got %q after %d calls", v, n)
	}
}

func TestInvalidate_ForcesRefresh(t *testing.T) {
	c, _ := newTestCache(time.Hour)
	calls := 0
	compute := func() (string, error) { calls++; return "v", nil }
	_, _ = c.Get(compute)
	c.Invalidate()
	_, _ = c.Get(compute)
	if calls != 2 {
		t.Fatalf("compute calls=%d, want 2", calls)
	}
}

func TestInvalidate_DuringRefreshIsNotLost(t *testing.T) {
	c, _ := newTestCache(time.Hour)
	var mu sync.Mutex
	state := "old"
	read := func() string {
		mu.Lock()
		defer mu.Unlock()
		return state
	}
	var first atomic.Bool
	entered := make(chan struct{})
	release := make(chan struct{})
	compute := func() (string, error) {
		v := read()
		if first.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
		return v, nil
	}

	early := make(chan string, 1)
	go func() {
		v, _ := c.Get(compute)
		early <- v
	}()
	<-entered

	mu.Lock()
	state = "new"
	mu.Unlock()
	c.Invalidate()

	late := make(chan string, 1)
	go func() {
		v, _ := c.Get(compute)
		late <- v
	}()
	select {
	case v := <-late:
		if v != "new" {
			t.Fatalf("read after invalidate = %q, want new", v)
		}
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("read after invalidate waited on the earlier refresh")
	}

	close(release)
	if v := <-early; v != "old" {
		t.Fatalf("earlier read = %q, want old", v)
	}
	if v, err := c.Get(compute); err != nil || v != "new" {
		t.Fatalf("next read = %q %v, want new", v, err)
	}
}

func TestGet_FailurePreservesStale(t *testing.T) {
	c, clk := newTestCache(time.Second)
	if _, err := c.Get(func() (string, error) { return "old", nil }); err != nil {
		t.Fatalf("seed: %v", err)
	}
	clk.Advance(2 * time.Second)
	boom := errors.New("boom")
	v, err := c.Get(func() (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want boom", err)
	}
	if v != "old" {
		t.Fatalf("stale value lost: %q", v)
	}
	// still stale: the next read must try again
	calls := 0
	v, err = c.Get(func() (string, error) { calls++; return "new", nil })
	if err != nil || v != "new" || calls != 1 {
		t.Fatalf("retry: v=%q err=%v calls=%d", v, err, calls)
	}
}

func TestGet_FailureWithoutValueReturnsZero(t *testing.T) {
	c, _ := newTestCache(time.Second)
	v, err := c.Get(func() (string, error) { return "ignored", errors.New("x") })
	if err == nil || v != "" {
		t.Fatalf("v=%q err=%v", v, err)
	}
	calls := 0
	if v, err := c.Get(func() (string, error) { calls++; return "v", nil }); err != nil || v != "v" || calls != 1 {
		t.Fatalf("failed compute populated the cache: v=%q err=%v calls=%d", v, err, calls)
	}
}

func TestGet_ConcurrentColdReads(t *testing.T) {
	c := New[int](time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := c.Get(compute); err != nil || v != 42 {
				t.Errorf("get: %d %v", v, err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	if n := calls.Load(); n < 1 || n > 8 {
		t.Fatalf("compute calls=%d", n)
	}
}
