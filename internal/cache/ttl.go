// Package cache provides a single-value cache that expires after a fixed TTL.
package cache

import (
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TTL holds one value of type T that is recomputed once it is older than ttl.
// The zero value is not usable; construct with New.
type TTL[T any] struct {
	mu          sync.Mutex
	value       T
	hasValue    bool
	lastRefresh time.Time
	ttl         time.Duration
	now         func() time.Time
	// gen is bumped by Invalidate; a refresh only stores its result when
	// the generation it started under is still current.
	gen uint64

	group singleflight.Group
}

// New returns an empty cache whose entries stay fresh for ttl.
func New[T any](ttl time.Duration) *TTL[T] {
	return &TTL[T]{ttl: ttl, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (c *TTL[T]) WithClock(now func() time.Time) *TTL[T] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// Get returns the cached value while it is fresh, otherwise it calls compute
// and stores the result. compute runs without the lock held; concurrent cold
// callers of the same generation share one compute call. A Get that starts
// after Invalidate never joins a refresh that started before it.
//
// When compute fails the previous value (or the zero value) is returned
// together with the error and the entry stays stale.
func (c *TTL[T]) Get(compute func() (T, error)) (T, error) {
	c.mu.Lock()
	if c.hasValue && c.now().Sub(c.lastRefresh) < c.ttl {
		v := c.value
		c.mu.Unlock()
		return v, nil
	}
	gen := c.gen
	c.mu.Unlock()

	v, err, _ := c.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		fresh, err := compute()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.value = fresh
			c.hasValue = true
			c.lastRefresh = c.now()
		}
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		c.mu.Lock()
		stale := c.value
		c.mu.Unlock()
		return stale, err
	}
	return v.(T), nil
}

// Invalidate forces the next Get to recompute regardless of age.
// The stored value is kept so a failing refresh can still fall back to it.
func (c *TTL[T]) Invalidate() {
	c.mu.Lock()
	c.gen++
	c.lastRefresh = time.Time{}
	c.mu.Unlock()
}
