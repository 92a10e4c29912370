package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/chainscore-io/chainscore/internal/etherscan"
)

// ErrCircuitOpen indicates the upstream breaker is rejecting requests.
var ErrCircuitOpen = errors.New("upstream circuit open")

// RateLimitedError is returned when the local per-client limiter rejects a
// request before any work begins.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

// UpstreamError wraps a transaction-history fetch failure. RateLimited marks
// upstream throttling, which callers surface with a retry hint.
type UpstreamError struct {
	Err         error
	RateLimited bool
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream fetch failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func newUpstreamError(err error) *UpstreamError {
	return &UpstreamError{
		Err:         err,
		RateLimited: errors.Is(err, etherscan.ErrRateLimited),
	}
}

// ComputationError marks a defect in the pure pipeline stages. It is never
// expected in normal operation and its result is never cached.
type ComputationError struct {
	Err error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("score computation failed: %v", e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }
