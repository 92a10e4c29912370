// Package ratelimit provides per-client admission control for the scoring API.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Config configures rate limiting.
type Config struct {
	// Requests is the max requests per client key per window.
	Requests int
	// Window is the fixed window length.
	Window time.Duration
	// IdleTimeout is how long an untouched bucket survives before the
	// cleanup pass reclaims it.
	IdleTimeout time.Duration
	// CleanupInterval is how often idle buckets are reclaimed.
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Requests:        10,
		Window:          time.Minute,
		IdleTimeout:     5 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// bucket tracks one client's current window.
type bucket struct {
	windowStart time.Time
	count       int
	lastSeen    time.Time
}

// Limiter is a fixed-window rate limiter keyed by client identifier.
// Buckets are created lazily and reclaimed after IdleTimeout so memory stays
// bounded regardless of how many distinct clients are seen.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	once    sync.Once
}

// New creates a rate limiter and starts its cleanup goroutine.
func New(cfg Config) *Limiter {
	if cfg.Requests <= 0 {
		cfg.Requests = DefaultConfig().Requests
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Stop stops the cleanup goroutine.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// Admit reports whether a request from key may proceed. When rejected,
// retryAfter is the time until the current window rolls over.
func (l *Limiter) Admit(key string) (ok bool, retryAfter time.Duration) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{windowStart: now}
		l.buckets[key] = b
	}
	b.lastSeen = now

	if now.Sub(b.windowStart) >= l.cfg.Window {
		b.windowStart = now
		b.count = 0
	}

	if b.count >= l.cfg.Requests {
		return false, b.windowStart.Add(l.cfg.Window).Sub(now)
	}
	b.count++
	return true, 0
}

// cleanup reclaims idle buckets periodically.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-l.cfg.IdleTimeout)
			l.mu.Lock()
			for key, b := range l.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Middleware returns a gin middleware that rate limits by client IP.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retryAfter := l.Admit(c.ClientIP())
		if !ok {
			secs := int(math.Ceil(retryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limited",
				"message":     "Too many requests. Please slow down.",
				"retry_after": secs,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
