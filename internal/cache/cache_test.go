package cache

import (
	"fmt"
	"testing"
	"time"
)

func newTestCache(ttl time.Duration, capacity int) *Cache[string] {
	return New[string](Config{
		TTL:           ttl,
		Capacity:      capacity,
		SweepInterval: time.Minute, // Sweeper stays out of the way; expiry is lazy.
	})
}

func TestGetPut(t *testing.T) {
	c := newTestCache(time.Minute, 10)
	defer c.Stop()

	if _, ok := c.Get("missing"); ok {
		t.Error("Get on empty cache should miss")
	}

	c.Put("a", "value-a")
	got, ok := c.Get("a")
	if !ok || got != "value-a" {
		t.Errorf("Get(a) = %q, %v; want value-a, true", got, ok)
	}
}

func TestExpiry(t *testing.T) {
	c := newTestCache(50*time.Millisecond, 10)
	defer c.Stop()

	c.Put("a", "value-a")

	// Fresh just before expiry.
	if _, ok := c.Get("a"); !ok {
		t.Error("entry should be fresh immediately after Put")
	}

	time.Sleep(70 * time.Millisecond)

	// Stale entries are never served, even before the sweeper runs.
	if _, ok := c.Get("a"); ok {
		t.Error("entry should have expired")
	}
}

func TestPutTTLOverridesDefault(t *testing.T) {
	c := newTestCache(time.Minute, 10)
	defer c.Stop()

	c.PutTTL("short", "v", 30*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Error("entry with short TTL should have expired")
	}
}

func TestInvalidate(t *testing.T) {
	c := newTestCache(time.Minute, 10)
	defer c.Stop()

	c.Put("a", "value-a")
	c.Invalidate("a")

	if _, ok := c.Get("a"); ok {
		t.Error("invalidated entry should miss")
	}
}

func TestCapacityEvictsNearestExpiry(t *testing.T) {
	c := newTestCache(time.Minute, 3)
	defer c.Stop()

	// "soon" expires well before the others.
	c.PutTTL("soon", "v", 10*time.Second)
	c.PutTTL("later", "v", time.Minute)
	c.PutTTL("latest", "v", 2*time.Minute)

	// Overflow: the entry nearest to expiry goes first.
	c.Put("new", "v")

	if _, ok := c.Get("soon"); ok {
		t.Error("nearest-expiry entry should have been evicted")
	}
	for _, key := range []string{"later", "latest", "new"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("entry %q should have survived eviction", key)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestOverwriteDoesNotEvict(t *testing.T) {
	c := newTestCache(time.Minute, 2)
	defer c.Stop()

	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("a", "3") // Same key: no overflow, no eviction.

	if got, _ := c.Get("a"); got != "3" {
		t.Errorf("Get(a) = %q, want 3", got)
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("overwrite of existing key must not evict others")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	c := New[string](Config{
		TTL:           20 * time.Millisecond,
		Capacity:      10,
		SweepInterval: 30 * time.Millisecond,
	})
	defer c.Stop()

	for i := 0; i < 5; i++ {
		c.Put(fmt.Sprintf("k%d", i), "v")
	}

	time.Sleep(80 * time.Millisecond)

	if n := c.Len(); n != 0 {
		t.Errorf("Len() = %d after sweep, want 0", n)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := newTestCache(time.Minute, 100)
	defer c.Stop()

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%20)
				c.Put(key, "v")
				c.Get(key)
				if i%50 == 0 {
					c.Invalidate(key)
				}
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}
