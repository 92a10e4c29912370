package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestAdmitWithinWindow(t *testing.T) {
	limiter := New(Config{
		Requests:        10,
		Window:          time.Minute,
		CleanupInterval: time.Minute,
	})
	defer limiter.Stop()

	key := "client-a"

	for i := 0; i < 10; i++ {
		ok, _ := limiter.Admit(key)
		if !ok {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}

	// The 11th request in the window is rejected with a retry hint.
	ok, retryAfter := limiter.Admit(key)
	if ok {
		t.Fatal("11th request in window should be rejected")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Errorf("retryAfter = %v, want in (0, window]", retryAfter)
	}
}

func TestAdmitNextWindow(t *testing.T) {
	limiter := New(Config{
		Requests:        2,
		Window:          80 * time.Millisecond,
		CleanupInterval: time.Minute,
	})
	defer limiter.Stop()

	key := "client-a"

	limiter.Admit(key)
	limiter.Admit(key)
	if ok, _ := limiter.Admit(key); ok {
		t.Fatal("third request in window should be rejected")
	}

	time.Sleep(100 * time.Millisecond)

	// First request of the fresh window is admitted.
	if ok, _ := limiter.Admit(key); !ok {
		t.Error("request in next window should be admitted")
	}
}

func TestClientsAreIndependent(t *testing.T) {
	limiter := New(Config{
		Requests:        1,
		Window:          time.Minute,
		CleanupInterval: time.Minute,
	})
	defer limiter.Stop()

	limiter.Admit("client-a")
	if ok, _ := limiter.Admit("client-a"); ok {
		t.Error("client-a should be limited")
	}
	if ok, _ := limiter.Admit("client-b"); !ok {
		t.Error("client-b should not be affected by client-a")
	}
}

func TestIdleBucketsReclaimed(t *testing.T) {
	limiter := New(Config{
		Requests:        5,
		Window:          time.Minute,
		IdleTimeout:     20 * time.Millisecond,
		CleanupInterval: 30 * time.Millisecond,
	})
	defer limiter.Stop()

	limiter.Admit("client-a")
	limiter.Admit("client-b")

	time.Sleep(80 * time.Millisecond)

	limiter.mu.Lock()
	n := len(limiter.buckets)
	limiter.mu.Unlock()

	if n != 0 {
		t.Errorf("idle buckets remaining = %d, want 0", n)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Requests != 10 {
		t.Errorf("Requests = %d, want 10", cfg.Requests)
	}
	if cfg.Window != time.Minute {
		t.Errorf("Window = %v, want 1m", cfg.Window)
	}
	if cfg.IdleTimeout <= 0 || cfg.CleanupInterval <= 0 {
		t.Error("idle timeout and cleanup interval must be positive")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter := New(Config{
		Requests:        2,
		Window:          time.Minute,
		CleanupInterval: time.Minute,
	})
	defer limiter.Stop()

	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over-budget request: status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set")
	}
}
