// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package cache provides TTL caches backing discovery deduplication. The
// pipeline marks every pool it has handled under a `pool:<address>` key so
// duplicate events from overlapping monitors collapse into one.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lpsprint/sprint/internal/metrics"
)

// Cache is a TTL key/value store. Implementations are safe for concurrent
// use. Lookups never block on backend failures; a failed backend reads as a
// miss so dedup degrades to at-least-once instead of stalling discovery.
type Cache interface {
	// Get retrieves a value. The second return is false when the key is
	// absent or expired.
	Get(key string) (any, bool)
	// Set stores a value for ttl.
	Set(key string, value any, ttl time.Duration)
	// Delete removes one key.
	Delete(key string)
	// Clear removes every key.
	Clear()
	// Stats reports counters since process start.
	Stats() Stats
	// Close releases backend resources.
	Close() error
}

// Stats holds cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

const memoryCacheName = "memory"

type entry struct {
	value     any
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64

	stopJanitor chan struct{}
	janitorDone chan struct{}
	closeOnce   sync.Once
}

// NewMemoryCache returns an in-process cache. When cleanupInterval is
// positive a janitor goroutine sweeps expired entries on that cadence;
// otherwise expired entries linger until read or overwritten.
func NewMemoryCache(cleanupInterval time.Duration) Cache {
	c := &memoryCache{
		entries: make(map[string]entry),
	}
	if cleanupInterval > 0 {
		c.stopJanitor = make(chan struct{})
		c.janitorDone = make(chan struct{})
		go c.janitor(cleanupInterval)
	}
	return c
}

func (c *memoryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()

	if !found || e.expired(time.Now()) {
		c.misses.Add(1)
		metrics.IncCacheMiss(memoryCacheName)
		return nil, false
	}
	c.hits.Add(1)
	metrics.IncCacheHit(memoryCacheName)
	return e.value, true
}

func (c *memoryCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	c.sets.Add(1)
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *memoryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Evictions: c.evictions.Load(),
		Entries:   size,
	}
}

// Close stops the janitor. Idempotent.
func (c *memoryCache) Close() error {
	c.closeOnce.Do(func() {
		if c.stopJanitor != nil {
			close(c.stopJanitor)
			<-c.janitorDone
		}
	})
	return nil
}

func (c *memoryCache) janitor(interval time.Duration) {
	defer close(c.janitorDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopJanitor:
			return
		}
	}
}

// sweep drops expired entries and refreshes the entries gauge.
func (c *memoryCache) sweep() {
	now := time.Now()
	evicted := 0

	c.mu.Lock()
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			evicted++
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	c.evictions.Add(int64(evicted))
	metrics.SetCacheEntries(memoryCacheName, size)
}

type noOpCache struct{}

// NewNoOpCache returns a cache that stores nothing. Used when dedup is
// disabled so the pipeline can treat every event as unseen.
func NewNoOpCache() Cache {
	return noOpCache{}
}

func (noOpCache) Get(string) (any, bool)         { return nil, false }
func (noOpCache) Set(string, any, time.Duration) {}
func (noOpCache) Delete(string)                  {}
func (noOpCache) Clear()                         {}
func (noOpCache) Stats() Stats                   { return Stats{} }
func (noOpCache) Close() error                   { return nil }
