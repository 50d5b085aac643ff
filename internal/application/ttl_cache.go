package application

import (
	"context"
	"sync"
	"time"
)

// ttlEntry is one cached value plus the moment it was stored.
type ttlEntry[V any] struct {
	value    V
	storedAt time.Time
}

// TTLCache is a get-or-compute map cache with per-entry expiry. A TTL of zero
// means entries never expire until explicitly cleared, which is the default
// for this service; explicit invalidation is the primary correctness
// mechanism. The mutex only protects the map itself: two callers computing
// the same key concurrently both run their compute functions and the last
// writer wins. That redundant recompute is an accepted, low-cost race since
// every compute here is an idempotent remote read. The scope cache needs the
// stronger refresh-collapsing guarantee and implements it separately.
type TTLCache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]ttlEntry[V]
	ttl     time.Duration
	now     func() time.Time
}

// NewTTLCache creates a TTLCache with the given time-to-live. ttl <= 0 means
// entries are permanent.
func NewTTLCache[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		entries: make(map[K]ttlEntry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value for key if present and fresh.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.expired(e) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, resetting its age.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry[V]{value: value, storedAt: c.now()}
}

// GetOrCompute returns the cached value if fresh, otherwise calls compute,
// stores its result, and returns it. compute errors are returned without
// caching anything.
func (c *TTLCache[K, V]) GetOrCompute(ctx context.Context, key K, compute func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compute(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}

// Clear drops every entry.
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]ttlEntry[V])
}

// Len reports the number of entries, including any not yet expired-checked.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TTLCache[K, V]) expired(e ttlEntry[V]) bool {
	if c.ttl <= 0 {
		return false
	}
	return c.now().Sub(e.storedAt) >= c.ttl
}
