// Package cache provides a generic expiring key-value store.
//
// Entries carry a per-entry expiration stamped at insertion time from a single
// TTL configured on the cache. Expiration is evaluated lazily at read time; a
// key that is present may still be logically expired. Callers that want the
// map pruned call Sweep explicitly.
package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
)

// Entry is a cached value with its expiration time.
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// ExpiresAtMillis returns the expiration as milliseconds since the Unix epoch.
func (e Entry[V]) ExpiresAtMillis() int64 {
	return e.ExpiresAt.UnixMilli()
}

// expiredAt reports whether the entry is stale at now.
func (e Entry[V]) expiredAt(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Cache maps keys to expiring entries. It is safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	store store[K, V]
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now      func() time.Time
	capacity int
}

// WithClock overrides the time source. Used by tests to step time manually.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithCapacity bounds the number of keys held. When full, inserting a new key
// evicts the least recently used one. Zero or negative means unbounded.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// New creates a cache whose entries live for ttl after each Set.
func New[K comparable, V any](ttl time.Duration, opts ...Option) *Cache[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	var s store[K, V]
	if o.capacity > 0 {
		s = newLRUStore[K, V](o.capacity)
	} else {
		s = newMapStore[K, V]()
	}

	return &Cache[K, V]{
		ttl:   ttl,
		now:   o.now,
		store: s,
	}
}

// TTL returns the configured time-to-live.
func (c *Cache[K, V]) TTL() time.Duration {
	return c.ttl
}

// Set inserts or overwrites the entry for key, stamping ExpiresAt = now + ttl.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.put(key, Entry[V]{Value: value, ExpiresAt: c.now().Add(c.ttl)})
}

// Get returns the stored entry for key regardless of its expiration state.
// Callers must check expiry themselves, or use Fresh.
func (c *Cache[K, V]) Get(key K) (Entry[V], bool) {
	// The LRU store records recency on reads, so a read is a write for it.
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.get(key)
}

// IsExpired reports whether key is absent or past its expiration.
func (c *Cache[K, V]) IsExpired(key K) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store.peek(key)
	if !ok {
		return true
	}
	return e.expiredAt(c.now())
}

// Fresh returns the value for key only when it is present and not expired.
func (c *Cache[K, V]) Fresh(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.store.get(key)
	if !ok || e.expiredAt(c.now()) {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Len returns the number of stored entries, including expired ones.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.len()
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, key := range c.store.keys() {
		if e, ok := c.store.peek(key); ok && e.expiredAt(now) {
			c.store.remove(key)
			removed++
		}
	}
	return removed
}

// Purge removes every entry.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.purge()
}

// store is the backing container. Implementations are not goroutine-safe;
// Cache holds its own lock.
type store[K comparable, V any] interface {
	put(key K, e Entry[V])
	get(key K) (Entry[V], bool)
	peek(key K) (Entry[V], bool)
	remove(key K)
	keys() []K
	len() int
	purge()
}

type mapStore[K comparable, V any] struct {
	m map[K]Entry[V]
}

func newMapStore[K comparable, V any]() *mapStore[K, V] {
	return &mapStore[K, V]{m: make(map[K]Entry[V])}
}

func (s *mapStore[K, V]) put(key K, e Entry[V]) { s.m[key] = e }

func (s *mapStore[K, V]) get(key K) (Entry[V], bool) {
	e, ok := s.m[key]
	return e, ok
}

func (s *mapStore[K, V]) peek(key K) (Entry[V], bool) { return s.get(key) }

func (s *mapStore[K, V]) remove(key K) { delete(s.m, key) }

func (s *mapStore[K, V]) keys() []K {
	keys := make([]K, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	return keys
}

func (s *mapStore[K, V]) len() int { return len(s.m) }

func (s *mapStore[K, V]) purge() { s.m = make(map[K]Entry[V]) }

// lruStore bounds the key count with least-recently-used eviction.
type lruStore[K comparable, V any] struct {
	lru *simplelru.LRU
}

func newLRUStore[K comparable, V any](capacity int) *lruStore[K, V] {
	// NewLRU only fails for a non-positive size, which New rules out.
	l, _ := simplelru.NewLRU(capacity, nil)
	return &lruStore[K, V]{lru: l}
}

func (s *lruStore[K, V]) put(key K, e Entry[V]) { s.lru.Add(key, e) }

func (s *lruStore[K, V]) get(key K) (Entry[V], bool) {
	v, ok := s.lru.Get(key)
	if !ok {
		return Entry[V]{}, false
	}
	return v.(Entry[V]), true
}

func (s *lruStore[K, V]) peek(key K) (Entry[V], bool) {
	v, ok := s.lru.Peek(key)
	if !ok {
		return Entry[V]{}, false
	}
	return v.(Entry[V]), true
}

func (s *lruStore[K, V]) remove(key K) { s.lru.Remove(key) }

func (s *lruStore[K, V]) keys() []K {
	raw := s.lru.Keys()
	keys := make([]K, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k.(K))
	}
	return keys
}

func (s *lruStore[K, V]) len() int { return s.lru.Len() }

func (s *lruStore[K, V]) purge() { s.lru.Purge() }
