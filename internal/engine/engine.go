// Package engine orchestrates the scoring pipeline: admission control,
// result caching, coalesced upstream fetches, feature extraction, the
// scorecard, and grade classification.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/chainscore-io/chainscore/internal/cache"
	"github.com/chainscore-io/chainscore/internal/circuitbreaker"
	"github.com/chainscore-io/chainscore/internal/features"
	"github.com/chainscore-io/chainscore/internal/metrics"
	"github.com/chainscore-io/chainscore/internal/ratelimit"
	"github.com/chainscore-io/chainscore/internal/scoring"
	"github.com/chainscore-io/chainscore/internal/traces"
	"github.com/chainscore-io/chainscore/internal/wallet"
)

// TransactionSource is the upstream ledger-explorer boundary.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, address string) ([]wallet.Transaction, error)
	FetchCardInfo(ctx context.Context, address string) (map[string]any, error)
}

// ScoreResult is an immutable scoring outcome. Consumers (the HTTP layer,
// the optional reporting layer) read it, never mutate it.
type ScoreResult struct {
	WalletAddress string            `json:"wallet_address"`
	FeatureSchema string            `json:"feature_schema"`
	Features      features.Vector   `json:"features"`
	Breakdown     scoring.Breakdown `json:"breakdown"`
	Grade         scoring.Grade     `json:"grade"`
	ComputedAt    time.Time         `json:"computed_at"`
}

// Engine composes the scoring pipeline. The cache map and rate-limiter
// buckets are the only shared mutable state; the pure stages never lock.
type Engine struct {
	source         TransactionSource
	scorecard      *scoring.Scorecard
	results        *cache.Cache[*ScoreResult]
	limiter        *ratelimit.Limiter
	breaker        *circuitbreaker.Breaker
	group          singleflight.Group
	logger         *slog.Logger
	computeTimeout time.Duration
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithBreaker guards upstream fetches with a circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(e *Engine) { e.breaker = b }
}

// WithComputeTimeout bounds a detached score computation.
func WithComputeTimeout(d time.Duration) Option {
	return func(e *Engine) { e.computeTimeout = d }
}

// New creates a scoring engine. All collaborators are constructor-injected so
// independent instances can coexist in one process (and in tests).
func New(source TransactionSource, results *cache.Cache[*ScoreResult], limiter *ratelimit.Limiter, opts ...Option) *Engine {
	e := &Engine{
		source:         source,
		scorecard:      scoring.NewScorecard(),
		results:        results,
		limiter:        limiter,
		logger:         slog.Default(),
		computeTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score runs the full pipeline for address on behalf of clientKey.
//
// Errors: wallet.ErrInvalidAddress before any work, *RateLimitedError when
// the client is over budget, *UpstreamError when the history fetch fails
// (never cached), *ComputationError for internal defects (never cached).
func (e *Engine) Score(ctx context.Context, address, clientKey string) (*ScoreResult, error) {
	addr, err := wallet.Normalize(address)
	if err != nil {
		metrics.ScoreRequestsTotal.WithLabelValues("invalid_address").Inc()
		return nil, err
	}

	if ok, retryAfter := e.limiter.Admit(clientKey); !ok {
		metrics.ScoreRequestsTotal.WithLabelValues("rate_limited").Inc()
		metrics.RateLimitRejectionsTotal.Inc()
		return nil, &RateLimitedError{RetryAfter: retryAfter}
	}

	ctx, span := traces.StartSpan(ctx, "engine.score", traces.WalletAddr(addr))
	defer span.End()

	if res, ok := e.results.Get(addr); ok {
		metrics.ScoreRequestsTotal.WithLabelValues("cache_hit").Inc()
		metrics.CacheHitsTotal.Inc()
		span.SetAttributes(traces.CacheHit(true), traces.CreditScore(res.Breakdown.Total))
		return res, nil
	}
	metrics.CacheMissesTotal.Inc()
	span.SetAttributes(traces.CacheHit(false))

	// Coalesce concurrent misses for the same wallet into one computation.
	// The computation runs on a context detached from this caller so a
	// disconnect cannot starve the other waiters.
	detached := context.WithoutCancel(ctx)
	v, err, shared := e.group.Do(addr, func() (any, error) {
		computeCtx, cancel := context.WithTimeout(detached, e.computeTimeout)
		defer cancel()
		return e.compute(computeCtx, addr)
	})
	if shared {
		metrics.CoalescedRequestsTotal.Inc()
	}
	if err != nil {
		return nil, err
	}

	res := v.(*ScoreResult)
	span.SetAttributes(traces.CreditScore(res.Breakdown.Total), traces.RiskGrade(int(res.Grade)))
	return res, nil
}

// Invalidate drops a wallet's cached result. The next request recomputes.
func (e *Engine) Invalidate(address string) error {
	addr, err := wallet.Normalize(address)
	if err != nil {
		return err
	}
	e.results.Invalidate(addr)
	return nil
}

// compute runs the cache-miss path: fetch, extract, score, classify, cache.
func (e *Engine) compute(ctx context.Context, addr string) (res *ScoreResult, err error) {
	timer := prometheus.NewTimer(metrics.ScoreComputeDuration)
	defer timer.ObserveDuration()

	ctx, span := traces.StartSpan(ctx, "engine.compute", traces.WalletAddr(addr))
	defer span.End()

	txs, err := e.fetch(ctx, addr)
	if err != nil {
		metrics.ScoreRequestsTotal.WithLabelValues("upstream_error").Inc()
		return nil, err
	}
	span.SetAttributes(traces.TxCount(len(txs)))

	// Card info is a best-effort bonus signal; a failure here must not
	// fail the score.
	cardInfo, cardErr := e.source.FetchCardInfo(ctx, addr)
	if cardErr != nil {
		e.logger.Warn("card info lookup failed", "address", addr, "error", cardErr)
		cardInfo = nil
	}

	// Everything past the fetch is pure. A failure here is a programming
	// defect, surfaced as ComputationError and never cached.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("score computation panicked", "address", addr, "panic", r)
			metrics.ScoreRequestsTotal.WithLabelValues("internal_error").Inc()
			res, err = nil, &ComputationError{Err: fmt.Errorf("computation panic: %v", r)}
		}
	}()

	vec := features.Extract(txs, addr, time.Now().UTC())
	breakdown := e.scorecard.Score(vec, scoring.CardBonus(cardInfo))
	grade := scoring.Classify(breakdown.Total)

	res = &ScoreResult{
		WalletAddress: addr,
		FeatureSchema: features.SchemaVersion,
		Features:      vec,
		Breakdown:     breakdown,
		Grade:         grade,
		ComputedAt:    time.Now().UTC(),
	}

	e.results.Put(addr, res)
	metrics.ScoreRequestsTotal.WithLabelValues("computed").Inc()
	metrics.ScoreDistribution.Observe(breakdown.Total)

	e.logger.Info("wallet scored",
		"address", addr,
		"score", breakdown.Total,
		"grade", int(grade),
		"transactions", len(txs),
	)
	return res, nil
}

// fetch retrieves the history through the circuit breaker, classifying
// failures for the caller.
func (e *Engine) fetch(ctx context.Context, addr string) ([]wallet.Transaction, error) {
	if e.breaker != nil && !e.breaker.Allow() {
		return nil, &UpstreamError{Err: ErrCircuitOpen}
	}

	txs, err := e.source.FetchTransactions(ctx, addr)
	if err != nil {
		if e.breaker != nil {
			e.breaker.RecordFailure()
		}
		return nil, newUpstreamError(err)
	}
	if e.breaker != nil {
		e.breaker.RecordSuccess()
	}
	return txs, nil
}
