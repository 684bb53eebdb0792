package cache

import (
	"sync"
	"time"
)

// Cell is a single cached value with its own TTL.
type Cell[V any] struct {
	mu        sync.RWMutex
	ttl       time.Duration
	now       func() time.Time
	value     V
	expiresAt time.Time
}

// NewCell creates a cell that starts out expired, so the first read misses.
func NewCell[V any](ttl time.Duration, opts ...Option) *Cell[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cell[V]{ttl: ttl, now: o.now}
}

// Set stores value and pushes the expiration to now + ttl.
func (c *Cell[V]) Set(value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	c.expiresAt = c.now().Add(c.ttl)
}

// Get returns the value if it has not expired.
func (c *Cell[V]) Get() (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.now().After(c.expiresAt) {
		var zero V
		return zero, false
	}
	return c.value, true
}

// Expired reports whether the cell is stale.
func (c *Cell[V]) Expired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now().After(c.expiresAt)
}

// Expire forces the cell stale without dropping the last value.
func (c *Cell[V]) Expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expiresAt = time.Time{}
}
