package main

import (
	"sync"
	"time"
)

type cacheEntry[T any] struct {
	value   T
	expires time.Time
}

// responseCache holds read results keyed by filter until they expire or a
// write invalidates them. A zero ttl disables caching.
//
// Each invalidate starts a new generation. A fill must carry the generation
// observed before its read, so a read that raced a write is never stored.
type responseCache[T any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	gen     uint64
	entries map[string]cacheEntry[T]
}

func newResponseCache[T any](ttl time.Duration) *responseCache[T] {
	return &responseCache[T]{ttl: ttl, now: time.Now, entries: make(map[string]cacheEntry[T])}
}

func (c *responseCache[T]) get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// generation returns the token to pass to set for a read starting now.
func (c *responseCache[T]) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// set stores v unless the cache was invalidated since gen was taken.
func (c *responseCache[T]) set(key string, v T, gen uint64) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.entries[key] = cacheEntry[T]{value: v, expires: c.now().Add(c.ttl)}
}

// invalidate drops every entry and rejects fills from reads already in flight.
func (c *responseCache[T]) invalidate() {
	c.mu.Lock()
	c.gen++
	clear(c.entries)
	c.mu.Unlock()
}
