package health

import (
	"context"
	"fmt"

	"github.com/chainscore-io/chainscore/internal/circuitbreaker"
)

// BreakerChecker reports the upstream as unhealthy while its circuit is open.
func BreakerChecker(name string, b *circuitbreaker.Breaker) Checker {
	return func(ctx context.Context) Status {
		state := b.State()
		return Status{
			Name:    name,
			Healthy: state != circuitbreaker.StateOpen,
			Detail:  state.String(),
		}
	}
}

// CacheChecker reports the result cache size. It is always healthy; the
// detail is there for operators watching eviction pressure.
func CacheChecker(name string, size func() int) Checker {
	return func(ctx context.Context) Status {
		return Status{
			Name:    name,
			Healthy: true,
			Detail:  fmt.Sprintf("%d entries", size()),
		}
	}
}
