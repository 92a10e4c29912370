// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Upstream explorer API
	EtherscanAPIKey  string
	EtherscanBaseURL string
	CardAPIURL       string // Optional card-program lookup endpoint

	// Fetch behaviour
	FetchTimeout     time.Duration
	FetchMaxAttempts int
	FetchMaxPages    int

	// Result cache
	CacheTTL      time.Duration
	CacheCapacity int

	// Per-client rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Circuit breaker for the upstream
	BreakerThreshold    int
	BreakerOpenDuration time.Duration

	// Scoring
	ComputeTimeout time.Duration

	// Tracing (optional, disabled when empty)
	OTLPEndpoint string
}

const (
	DefaultEtherscanBaseURL = "https://api.etherscan.io/api"
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultCacheTTL         = 5 * time.Minute
	DefaultCacheCapacity    = 1000
	DefaultRateLimit        = 10
	DefaultRateWindow       = time.Minute
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		EtherscanAPIKey:     os.Getenv("ETHERSCAN_API_KEY"), // Required, no default
		EtherscanBaseURL:    getEnv("ETHERSCAN_BASE_URL", DefaultEtherscanBaseURL),
		CardAPIURL:          os.Getenv("CARD_API_URL"), // Optional
		FetchTimeout:        getEnvDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchMaxAttempts:    int(getEnvInt64("FETCH_MAX_ATTEMPTS", 3)),
		FetchMaxPages:       int(getEnvInt64("FETCH_MAX_PAGES", 10)),
		CacheTTL:            getEnvDuration("CACHE_TTL", DefaultCacheTTL),
		CacheCapacity:       int(getEnvInt64("CACHE_CAPACITY", DefaultCacheCapacity)),
		RateLimitRequests:   int(getEnvInt64("RATE_LIMIT_REQUESTS", DefaultRateLimit)),
		RateLimitWindow:     getEnvDuration("RATE_LIMIT_WINDOW", DefaultRateWindow),
		BreakerThreshold:    int(getEnvInt64("BREAKER_THRESHOLD", 5)),
		BreakerOpenDuration: getEnvDuration("BREAKER_OPEN_DURATION", 30*time.Second),
		ComputeTimeout:      getEnvDuration("COMPUTE_TIMEOUT", 30*time.Second),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.EtherscanAPIKey == "" {
		return fmt.Errorf("ETHERSCAN_API_KEY is required")
	}
	if c.EtherscanBaseURL == "" {
		return fmt.Errorf("ETHERSCAN_BASE_URL is required")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("CACHE_CAPACITY must be positive")
	}
	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
