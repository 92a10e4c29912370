// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chainscore-io/chainscore/internal/config"
	"github.com/chainscore-io/chainscore/internal/engine"
	"github.com/chainscore-io/chainscore/internal/health"
	"github.com/chainscore-io/chainscore/internal/logging"
	"github.com/chainscore-io/chainscore/internal/metrics"
	"github.com/chainscore-io/chainscore/internal/ratelimit"
	"github.com/chainscore-io/chainscore/internal/security"
	"github.com/chainscore-io/chainscore/internal/wallet"
)

// Scorer is the scoring surface the HTTP layer depends on. *engine.Engine
// implements it; tests substitute a stub.
type Scorer interface {
	Score(ctx context.Context, address, clientKey string) (*engine.ScoreResult, error)
	Invalidate(address string) error
}

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg     *config.Config
	scorer  Scorer
	checks  *health.Registry
	limiter *ratelimit.Limiter
	router  *gin.Engine
	httpSrv *http.Server
	logger  *slog.Logger

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHealthRegistry sets the subsystem health registry backing /readyz.
func WithHealthRegistry(r *health.Registry) Option {
	return func(s *Server) {
		s.checks = r
	}
}

// WithRateLimiter guards routes that bypass the engine's own admission
// control, so cache invalidation draws from the same per-client budget as
// scoring.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// New creates a new server instance
func New(cfg *config.Config, scorer Scorer, opts ...Option) (*Server, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}

	s := &Server{
		cfg:    cfg,
		scorer: scorer,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
		checks: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/healthz", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/", s.infoHandler)

	v1 := s.router.Group("/v1")
	v1.GET("/wallets/:address/score", s.scoreHandler)
	// Scoring admits through the engine; invalidation has no engine path,
	// so it is limited here against the same budget.
	if s.limiter != nil {
		v1.DELETE("/wallets/:address/score", s.limiter.Middleware(), s.invalidateHandler)
	} else {
		v1.DELETE("/wallets/:address/score", s.invalidateHandler)
	}
}

// ScoreResponse is the public shape of a credit score result.
type ScoreResponse struct {
	WalletAddress string             `json:"wallet_address"`
	Score         float64            `json:"credit_score"`
	Grade         int                `json:"grade"`
	GradeLabel    string             `json:"grade_label"`
	Categories    map[string]float64 `json:"breakdown"`
	FeatureSchema string             `json:"feature_schema"`
	Features      map[string]float64 `json:"features"`
	ComputedAt    time.Time          `json:"computed_at"`
}

func (s *Server) scoreHandler(c *gin.Context) {
	res, err := s.scorer.Score(c.Request.Context(), c.Param("address"), c.ClientIP())
	if err != nil {
		s.renderScoreError(c, err)
		return
	}

	resp := ScoreResponse{
		WalletAddress: res.WalletAddress,
		Score:         res.Breakdown.Total,
		Grade:         int(res.Grade),
		GradeLabel:    res.Grade.Label(),
		Categories:    res.Breakdown.Categories,
		FeatureSchema: res.FeatureSchema,
		Features:      res.Features,
		ComputedAt:    res.ComputedAt,
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) invalidateHandler(c *gin.Context) {
	if err := s.scorer.Invalidate(c.Param("address")); err != nil {
		s.renderScoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// renderScoreError maps engine errors to HTTP responses.
func (s *Server) renderScoreError(c *gin.Context, err error) {
	var (
		rateLimited *engine.RateLimitedError
		upstream    *engine.UpstreamError
		computation *engine.ComputationError
	)

	switch {
	case errors.Is(err, wallet.ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Address must be a 0x-prefixed 40-character hex string",
		})

	case errors.As(err, &rateLimited):
		retryAfter := int(rateLimited.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate_limited",
			"retry_after": retryAfter,
		})

	case errors.Is(err, engine.ErrCircuitOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "upstream_unavailable",
			"message": "Transaction history provider is temporarily unavailable",
		})

	case errors.As(err, &upstream):
		if upstream.RateLimited {
			c.Header("Retry-After", "30")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "upstream_rate_limited",
				"message": "Transaction history provider is throttling requests",
			})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "upstream_error",
			"message": "Failed to fetch transaction history",
		})

	case errors.As(err, &computation):
		logging.L(c.Request.Context()).Error("score computation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "internal_error",
		})

	default:
		logging.L(c.Request.Context()).Error("unexpected scoring error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "internal_error",
		})
	}
}

// -----------------------------------------------------------------------------
// Info & health handlers
// -----------------------------------------------------------------------------

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "chainscore",
		"version": "0.1.0",
		"endpoints": gin.H{
			"score":   "/v1/wallets/:address/score",
			"health":  "/healthz",
			"ready":   "/readyz",
			"metrics": "/metrics",
		},
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)
	status := http.StatusOK
	state := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": statuses})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server and blocks until a shutdown signal, a server
// error, or context cancellation.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
