// Package metrics provides Prometheus instrumentation for the scoring service.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path pattern, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainscore",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chainscore",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ScoreRequestsTotal counts scoring requests by outcome.
	// Outcomes: cache_hit, computed, invalid_address, rate_limited,
	// upstream_error, internal_error.
	ScoreRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainscore",
			Name:      "score_requests_total",
			Help:      "Total score requests by outcome.",
		},
		[]string{"outcome"},
	)

	// ScoreComputeDuration observes the full cache-miss pipeline latency
	// (fetch + extract + score).
	ScoreComputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chainscore",
		Name:      "score_compute_duration_seconds",
		Help:      "End-to-end score computation duration on cache miss.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// ScoreDistribution observes computed credit scores.
	ScoreDistribution = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chainscore",
		Name:      "score_distribution",
		Help:      "Distribution of computed credit scores.",
		Buckets:   []float64{100, 200, 300, 400, 500, 528, 570, 600, 653, 700, 800, 900, 1000},
	})

	// CacheHitsTotal and CacheMissesTotal track result cache effectiveness.
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainscore",
		Name:      "cache_hits_total",
		Help:      "Total score cache hits.",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainscore",
		Name:      "cache_misses_total",
		Help:      "Total score cache misses.",
	})

	// CoalescedRequestsTotal counts requests that piggybacked on an
	// in-flight computation for the same wallet.
	CoalescedRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainscore",
		Name:      "coalesced_requests_total",
		Help:      "Total requests coalesced onto an in-flight computation.",
	})

	// UpstreamFetchesTotal counts transaction-history fetches by result.
	// Results: success, rate_limited, error.
	UpstreamFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainscore",
			Name:      "upstream_fetches_total",
			Help:      "Total upstream transaction-history fetches by result.",
		},
		[]string{"result"},
	)

	// UpstreamFetchDuration observes upstream fetch latency.
	UpstreamFetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chainscore",
		Name:      "upstream_fetch_duration_seconds",
		Help:      "Upstream transaction-history fetch duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// RateLimitRejectionsTotal counts requests rejected by the local limiter.
	RateLimitRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainscore",
		Name:      "ratelimit_rejections_total",
		Help:      "Total requests rejected by the per-client rate limiter.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ScoreRequestsTotal,
		ScoreComputeDuration,
		ScoreDistribution,
		CacheHitsTotal,
		CacheMissesTotal,
		CoalescedRequestsTotal,
		UpstreamFetchesTotal,
		UpstreamFetchDuration,
		RateLimitRejectionsTotal,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
