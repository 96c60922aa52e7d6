// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newRedisTestCache(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := NewRedisCache(RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("connect to miniredis: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
	})
	return mr, c
}

func TestRedisCacheSetGet(t *testing.T) {
	_, c := newRedisTestCache(t)

	c.Set("pool:abc", true, 5*time.Minute)

	val, ok := c.Get("pool:abc")
	if !ok {
		t.Fatal("expected key to be found")
	}
	// JSON round-trip keeps booleans.
	if val != true {
		t.Errorf("value = %v (%T), want true", val, val)
	}

	stats := c.Stats()
	if stats.Sets != 1 || stats.Hits != 1 {
		t.Errorf("stats = %+v, want 1 set and 1 hit", stats)
	}
}

func TestRedisCacheMissing(t *testing.T) {
	_, c := newRedisTestCache(t)

	if _, ok := c.Get("absent"); ok {
		t.Fatal("expected miss for absent key")
	}
	if misses := c.Stats().Misses; misses != 1 {
		t.Errorf("misses = %d, want 1", misses)
	}
}

func TestRedisCacheTTL(t *testing.T) {
	mr, c := newRedisTestCache(t)

	c.Set("short", "v", 100*time.Millisecond)
	if _, ok := c.Get("short"); !ok {
		t.Fatal("expected key before expiry")
	}

	mr.FastForward(200 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Fatal("expected key to expire")
	}
}

func TestRedisCacheDelete(t *testing.T) {
	_, c := newRedisTestCache(t)

	c.Set("k", "v", 5*time.Minute)
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestRedisCacheClear(t *testing.T) {
	_, c := newRedisTestCache(t)

	c.Set("k1", "v1", 5*time.Minute)
	c.Set("k2", "v2", 5*time.Minute)
	if entries := c.Stats().Entries; entries != 2 {
		t.Fatalf("entries = %d, want 2", entries)
	}

	c.Clear()
	if entries := c.Stats().Entries; entries != 0 {
		t.Errorf("entries after clear = %d, want 0", entries)
	}
}

func TestRedisCacheStructuredValue(t *testing.T) {
	_, c := newRedisTestCache(t)

	c.Set("obj", map[string]any{"slot": float64(42), "sig": "abc"}, 5*time.Minute)

	val, ok := c.Get("obj")
	if !ok {
		t.Fatal("expected structured value to be found")
	}
	m, ok := val.(map[string]any)
	if !ok {
		t.Fatalf("value type = %T, want map", val)
	}
	if m["slot"] != float64(42) || m["sig"] != "abc" {
		t.Errorf("value = %v, want slot=42 sig=abc", m)
	}
}

func TestRedisCachePing(t *testing.T) {
	mr, c := newRedisTestCache(t)
	ctx := context.Background()

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping healthy redis: %v", err)
	}

	mr.Close()
	if err := c.Ping(ctx); err == nil {
		t.Fatal("expected ping to fail after redis shutdown")
	}
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	// Port 1 is never a redis server; dial fails fast with refused.
	_, err := NewRedisCache(RedisConfig{Addr: "127.0.0.1:1"})
	if err == nil {
		t.Fatal("expected connection error for unreachable redis")
	}
}
