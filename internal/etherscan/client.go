// Package etherscan fetches wallet transaction histories from an
// Etherscan-compatible ledger explorer API.
//
// The client is the scoring pipeline's only blocking boundary: every request
// carries a bounded timeout, transient failures (HTTP 5xx and rate limiting)
// are retried with exponential backoff, and other client errors fail fast.
package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/chainscore-io/chainscore/internal/metrics"
	"github.com/chainscore-io/chainscore/internal/retry"
	"github.com/chainscore-io/chainscore/internal/wallet"
)

// ErrRateLimited indicates the upstream rejected the request for rate
// limiting. Retried with normal backoff; surfaced if attempts run out.
var ErrRateLimited = errors.New("upstream rate limited")

// APIError is a non-2xx HTTP response from the upstream.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Retryable reports whether the response class is worth retrying.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500
}

// Config configures the explorer client.
type Config struct {
	// BaseURL is the explorer API endpoint (e.g. https://api.etherscan.io/api).
	BaseURL string
	// APIKey is passed on every request.
	APIKey string
	// CardURL is the optional card-info endpoint; empty disables card lookups.
	CardURL string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// MaxAttempts bounds retries per page fetch.
	MaxAttempts int
	// RetryBaseDelay is the initial backoff delay.
	RetryBaseDelay time.Duration
	// PageSize is the transactions requested per page.
	PageSize int
	// MaxPages bounds pagination so a hyperactive wallet cannot pin a worker.
	MaxPages int
}

// DefaultConfig returns the standard client settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.etherscan.io/api",
		Timeout:        10 * time.Second,
		MaxAttempts:    3,
		RetryBaseDelay: 500 * time.Millisecond,
		PageSize:       1000,
		MaxPages:       10,
	}
}

// Client talks to the explorer API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// New creates a client. A nil logger falls back to slog.Default().
func New(cfg Config, logger *slog.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// envelope is the explorer's JSON response wrapper. Result is either a
// transaction array or an error string depending on Status.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// txRecord mirrors the explorer's txlist row. All fields arrive as strings.
type txRecord struct {
	TimeStamp       string `json:"timeStamp"`
	Nonce           string `json:"nonce"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	IsError         string `json:"isError"`
	Input           string `json:"input"`
	ContractAddress string `json:"contractAddress"`
}

// FetchTransactions returns the wallet's full history, oldest first
// (timestamp order, ties by nonce). A wallet with no history returns an
// empty slice, not an error.
func (c *Client) FetchTransactions(ctx context.Context, address string) ([]wallet.Transaction, error) {
	timer := prometheus.NewTimer(metrics.UpstreamFetchDuration)
	defer timer.ObserveDuration()

	var all []wallet.Transaction
	for page := 1; page <= c.cfg.MaxPages; page++ {
		var batch []wallet.Transaction
		err := retry.Do(ctx, c.cfg.MaxAttempts, c.cfg.RetryBaseDelay, func() error {
			var err error
			batch, err = c.fetchPage(ctx, address, page)
			return err
		})
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				metrics.UpstreamFetchesTotal.WithLabelValues("rate_limited").Inc()
			} else {
				metrics.UpstreamFetchesTotal.WithLabelValues("error").Inc()
			}
			return nil, fmt.Errorf("fetch transactions page %d: %w", page, err)
		}

		all = append(all, batch...)
		if len(batch) < c.cfg.PageSize {
			break
		}
	}

	wallet.SortTransactions(all)
	metrics.UpstreamFetchesTotal.WithLabelValues("success").Inc()
	c.logger.Debug("fetched transaction history",
		"address", address,
		"transactions", len(all),
	)
	return all, nil
}

// fetchPage retrieves one page. Transient failures come back retryable;
// anything the caller cannot fix by waiting is wrapped retry.Permanent.
func (c *Client) fetchPage(ctx context.Context, address string, page int) ([]wallet.Transaction, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", address)
	q.Set("page", strconv.Itoa(page))
	q.Set("offset", strconv.Itoa(c.cfg.PageSize))
	q.Set("sort", "asc")
	if c.cfg.APIKey != "" {
		q.Set("apikey", c.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, &APIError{StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, retry.Permanent(&APIError{StatusCode: resp.StatusCode})
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if env.Status != "1" {
		// The explorer signals both "empty" and "throttled" through
		// status 0 with a message, not HTTP status codes.
		msg := strings.ToLower(env.Message + " " + string(env.Result))
		if strings.Contains(msg, "no transactions found") {
			return nil, nil
		}
		if strings.Contains(msg, "rate limit") {
			return nil, ErrRateLimited
		}
		return nil, retry.Permanent(fmt.Errorf("explorer error: %s", env.Message))
	}

	var records []txRecord
	if err := json.Unmarshal(env.Result, &records); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode transactions: %w", err))
	}

	txs := make([]wallet.Transaction, 0, len(records))
	for _, rec := range records {
		tx, err := rec.toTransaction()
		if err != nil {
			c.logger.Warn("skipping malformed transaction", "address", address, "error", err)
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

var weiPerETH = decimal.New(1, 18)

func (r txRecord) toTransaction() (wallet.Transaction, error) {
	unix, err := strconv.ParseInt(r.TimeStamp, 10, 64)
	if err != nil {
		return wallet.Transaction{}, fmt.Errorf("bad timestamp %q: %w", r.TimeStamp, err)
	}

	wei, err := decimal.NewFromString(r.Value)
	if err != nil || wei.IsNegative() {
		return wallet.Transaction{}, fmt.Errorf("bad value %q", r.Value)
	}

	nonce, err := strconv.ParseUint(r.Nonce, 10, 64)
	if err != nil {
		nonce = 0 // Some explorers omit nonces on internal records.
	}

	return wallet.Transaction{
		Timestamp:    time.Unix(unix, 0).UTC(),
		From:         strings.ToLower(r.From),
		To:           strings.ToLower(r.To),
		Value:        wei.Div(weiPerETH),
		Success:      r.IsError != "1",
		ContractCall: r.Input != "" && r.Input != "0x",
		Nonce:        nonce,
	}, nil
}

// FetchCardInfo retrieves optional card attributes for the wallet. Returns
// nil without error when no card endpoint is configured. Callers treat
// failures as "no bonus", never as a scoring failure.
func (c *Client) FetchCardInfo(ctx context.Context, address string) (map[string]any, error) {
	if c.cfg.CardURL == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("address", address)
	if c.cfg.APIKey != "" {
		q.Set("apikey", c.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.CardURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build card request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("card request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode}
	}

	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode card info: %w", err)
	}
	return info, nil
}
