package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chainscore-io/chainscore/internal/circuitbreaker"
)

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("registry with no probes should be healthy")
	}
	if len(statuses) != 0 {
		t.Fatalf("expected 0 statuses, got %d", len(statuses))
	}
}

func TestRegistryAllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("upstream", BreakerChecker("upstream", circuitbreaker.New("upstream", 3, time.Minute)))
	r.Register("cache", CacheChecker("cache", func() int { return 7 }))

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("all-healthy registry should report healthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Name != "upstream" || statuses[1].Name != "cache" {
		t.Errorf("probes should report in registration order, got %v", statuses)
	}
}

func TestRegistryOpenBreakerDegradesService(t *testing.T) {
	b := circuitbreaker.New("upstream", 1, time.Minute)
	r := NewRegistry()
	r.Register("upstream", BreakerChecker("upstream", b))
	r.Register("cache", CacheChecker("cache", func() int { return 0 }))

	b.RecordFailure()

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Fatal("open upstream breaker should report the service degraded")
	}
	if statuses[0].Detail != "open" {
		t.Fatalf("expected breaker detail 'open', got %q", statuses[0].Detail)
	}
	if !statuses[1].Healthy {
		t.Error("cache probe should stay healthy regardless of the breaker")
	}
}

func TestRegistryConcurrentRegisterAndCheck(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register("cache", CacheChecker("cache", func() int { return 1 }))
		}()
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}

	wg.Wait()
}
