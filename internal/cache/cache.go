// Package cache provides a TTL-bounded in-memory cache used to memoize
// score results per wallet.
package cache

import (
	"sync"
	"time"
)

// Config configures a Cache.
type Config struct {
	// TTL is the default entry lifetime.
	TTL time.Duration
	// Capacity is the maximum entry count. On overflow the entry nearest
	// to expiry is evicted first.
	Capacity int
	// SweepInterval is how often expired entries are removed in the
	// background. Expired entries are never served regardless.
	SweepInterval time.Duration
}

// DefaultConfig returns the standard cache settings.
func DefaultConfig() Config {
	return Config{
		TTL:           5 * time.Minute,
		Capacity:      1000,
		SweepInterval: time.Minute,
	}
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a concurrency-safe TTL cache. Entries past their expiry are never
// returned, even before the background sweep removes them.
type Cache[V any] struct {
	cfg   Config
	mu    sync.RWMutex
	store map[string]entry[V]
	stop  chan struct{}
	once  sync.Once
}

// New creates a cache and starts its background sweeper. Call Stop when done.
func New[V any](cfg Config) *Cache[V] {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	c := &Cache[V]{
		cfg:   cfg,
		store: make(map[string]entry[V]),
		stop:  make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Get returns the fresh value for key, if any.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check: the entry may have been replaced since the read lock.
		if cur, ok := c.store[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.store, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key with the default TTL.
func (c *Cache[V]) Put(key string, value V) {
	c.PutTTL(key, value, c.cfg.TTL)
}

// PutTTL stores value under key with an explicit TTL.
func (c *Cache[V]) PutTTL(key string, value V, ttl time.Duration) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.cfg.Capacity {
		c.evictNearestExpiry()
	}
	c.store[key] = entry[V]{value: value, expiresAt: now.Add(ttl)}
}

// Invalidate removes key from the cache.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
}

// Len returns the current entry count, expired entries included until swept.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stop terminates the background sweeper.
func (c *Cache[V]) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// evictNearestExpiry drops the entry closest to expiring. Caller holds c.mu.
func (c *Cache[V]) evictNearestExpiry() {
	var (
		victim string
		oldest time.Time
		found  bool
	)
	for key, e := range c.store {
		if !found || e.expiresAt.Before(oldest) {
			victim, oldest, found = key, e.expiresAt, true
		}
	}
	if found {
		delete(c.store, victim)
	}
}

func (c *Cache[V]) sweep() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, e := range c.store {
				if now.After(e.expiresAt) {
					delete(c.store, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}
