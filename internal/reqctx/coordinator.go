// Package reqctx allocates request identifiers and tracks the streaming
// executions that are currently in flight.
package reqctx

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "pocketd",
	Subsystem: "stream",
	Name:      "active",
	Help:      "Streaming executions between start and cleanup",
})

func init() {
	prometheus.MustRegister(streamsActive)
}

// RequestContext identifies one inbound HTTP request for log correlation.
type RequestContext struct {
	ID    uint64
	Start time.Time
}

// Coordinator owns the process-wide counters. Construct one per server.
type Coordinator struct {
	mu       sync.Mutex
	lastID   uint64
	lastSlot uint64
	// streams maps a stream slot to the process group it attached (0 until
	// the child is spawned).
	streams map[uint64]int
	started time.Time
}

// New returns a Coordinator whose first request ID will be 1.
func New() *Coordinator {
	return &Coordinator{streams: make(map[uint64]int), started: time.Now()}
}

// NextID returns the next request ID. IDs start at 1 and never repeat for the
// lifetime of the Coordinator.
func (c *Coordinator) NextID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastID++
	return c.lastID
}

// Begin allocates a RequestContext stamped with the current time.
func (c *Coordinator) Begin() RequestContext {
	return RequestContext{ID: c.NextID(), Start: time.Now()}
}

// Uptime is the time since the Coordinator was created.
func (c *Coordinator) Uptime() time.Duration { return time.Since(c.started) }

// Acquire registers a new streaming execution and returns its slot. Every
// Acquire must be paired with exactly one Release.
func (c *Coordinator) Acquire() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSlot++
	c.streams[c.lastSlot] = 0
	streamsActive.Set(float64(len(c.streams)))
	return c.lastSlot
}

// Attach records the process group owned by slot. It is a no-op for slots
// that were already released or dropped by Reset.
func (c *Coordinator) Attach(slot uint64, pgid int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.streams[slot]; ok {
		c.streams[slot] = pgid
	}
}

// Release ends the streaming execution in slot. Releasing an unknown slot is
// harmless, so the count can never go negative.
func (c *Coordinator) Release(slot uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.streams, slot)
	streamsActive.Set(float64(len(c.streams)))
}

// ActiveStreams is the number of streaming executions between start and cleanup.
func (c *Coordinator) ActiveStreams() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

// Reset forgets every active stream and returns the process groups they had
// attached so the caller can kill them.
func (c *Coordinator) Reset() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	groups := make([]int, 0, len(c.streams))
	for _, g := range c.streams {
		if g > 0 {
			groups = append(groups, g)
		}
	}
	c.streams = make(map[uint64]int)
	streamsActive.Set(0)
	return groups
}

type ctxKey struct{}

// WithRequest returns a copy of ctx carrying rc.
func WithRequest(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the RequestContext stored by WithRequest.
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(ctxKey{}).(RequestContext)
	return rc, ok
}
