package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "ETHERSCAN_API_KEY", "test-api-key")
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultEtherscanBaseURL, cfg.EtherscanBaseURL)
	assert.Equal(t, DefaultCacheTTL, cfg.CacheTTL)
	assert.Equal(t, DefaultCacheCapacity, cfg.CacheCapacity)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRequests)
	assert.Equal(t, DefaultRateWindow, cfg.RateLimitWindow)
}

func TestLoad_MissingAPIKey(t *testing.T) {
	setEnv(t, "ETHERSCAN_API_KEY", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ETHERSCAN_API_KEY is required")
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "ETHERSCAN_API_KEY", "test-api-key")
	setEnv(t, "CACHE_TTL", "90s")
	setEnv(t, "CACHE_CAPACITY", "50")
	setEnv(t, "RATE_LIMIT_REQUESTS", "25")
	setEnv(t, "RATE_LIMIT_WINDOW", "30s")
	setEnv(t, "FETCH_MAX_PAGES", "3")
	setEnv(t, "CARD_API_URL", "https://cards.example.com/api")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 50, cfg.CacheCapacity)
	assert.Equal(t, 25, cfg.RateLimitRequests)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 3, cfg.FetchMaxPages)
	assert.Equal(t, "https://cards.example.com/api", cfg.CardAPIURL)
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	setEnv(t, "ETHERSCAN_API_KEY", "test-api-key")
	setEnv(t, "CACHE_TTL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultCacheTTL, cfg.CacheTTL)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		EtherscanAPIKey:   "key",
		EtherscanBaseURL:  DefaultEtherscanBaseURL,
		CacheTTL:          time.Minute,
		CacheCapacity:     10,
		RateLimitRequests: 5,
		RateLimitWindow:   time.Minute,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid config", func(c *Config) {}, ""},
		{"missing api key", func(c *Config) { c.EtherscanAPIKey = "" }, "ETHERSCAN_API_KEY is required"},
		{"missing base url", func(c *Config) { c.EtherscanBaseURL = "" }, "ETHERSCAN_BASE_URL is required"},
		{"zero cache ttl", func(c *Config) { c.CacheTTL = 0 }, "CACHE_TTL must be positive"},
		{"zero cache capacity", func(c *Config) { c.CacheCapacity = 0 }, "CACHE_CAPACITY must be positive"},
		{"zero rate limit", func(c *Config) { c.RateLimitRequests = 0 }, "RATE_LIMIT_REQUESTS must be positive"},
		{"zero rate window", func(c *Config) { c.RateLimitWindow = 0 }, "RATE_LIMIT_WINDOW must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_EnvHelpers(t *testing.T) {
	setEnv(t, "ETHERSCAN_API_KEY", "key")

	setEnv(t, "ENV", "production")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}
