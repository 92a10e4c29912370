// Chainscore - on-chain credit scoring for wallets
package main

import (
	"context"
	"os"

	"github.com/chainscore-io/chainscore/internal/cache"
	"github.com/chainscore-io/chainscore/internal/circuitbreaker"
	"github.com/chainscore-io/chainscore/internal/config"
	"github.com/chainscore-io/chainscore/internal/engine"
	"github.com/chainscore-io/chainscore/internal/etherscan"
	"github.com/chainscore-io/chainscore/internal/health"
	"github.com/chainscore-io/chainscore/internal/logging"
	"github.com/chainscore-io/chainscore/internal/ratelimit"
	"github.com/chainscore-io/chainscore/internal/server"
	"github.com/chainscore-io/chainscore/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	logger.Info("starting chainscore",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"env", cfg.Env,
	)

	ctx := context.Background()

	// Tracing (no-op without an OTLP endpoint)
	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTraces(context.Background()); err != nil {
			logger.Error("trace shutdown error", "error", err)
		}
	}()

	// Upstream explorer client
	source := etherscan.New(etherscan.Config{
		BaseURL:     cfg.EtherscanBaseURL,
		APIKey:      cfg.EtherscanAPIKey,
		CardURL:     cfg.CardAPIURL,
		Timeout:     cfg.FetchTimeout,
		MaxAttempts: cfg.FetchMaxAttempts,
		MaxPages:    cfg.FetchMaxPages,
	}, logging.WithComponent(logger, "etherscan"))

	// Result cache, per-client limiter, upstream breaker
	results := cache.New[*engine.ScoreResult](cache.Config{
		TTL:      cfg.CacheTTL,
		Capacity: cfg.CacheCapacity,
	})
	defer results.Stop()

	limiter := ratelimit.New(ratelimit.Config{
		Requests: cfg.RateLimitRequests,
		Window:   cfg.RateLimitWindow,
	})
	defer limiter.Stop()

	breaker := circuitbreaker.New("etherscan", cfg.BreakerThreshold, cfg.BreakerOpenDuration)

	// Scoring engine
	eng := engine.New(source, results, limiter,
		engine.WithLogger(logging.WithComponent(logger, "engine")),
		engine.WithBreaker(breaker),
		engine.WithComputeTimeout(cfg.ComputeTimeout),
	)

	// Readiness checks
	checks := health.NewRegistry()
	checks.Register("upstream", health.BreakerChecker("upstream", breaker))
	checks.Register("cache", health.CacheChecker("cache", results.Len))

	srv, err := server.New(cfg, eng,
		server.WithLogger(logger),
		server.WithHealthRegistry(checks),
		server.WithRateLimiter(limiter),
	)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
