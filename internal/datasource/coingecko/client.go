// Package coingecko implements the CoinGecko metric source used to resolve
// automated markets. A metric that cannot be fetched right now is reported
// as indeterminate so the market is retried on a later cycle instead of
// being resolved on stale or missing data.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// sourcePrefix identifies source ids this client serves: "coingecko:<coin>".
const sourcePrefix = "coingecko:"

// rateLimitKey is the shared limiter bucket for all CoinGecko calls.
const rateLimitKey = "coingecko"

// Client is the REST client for the CoinGecko simple/price API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    domain.RateLimiter
	rateLimit  int
	rateWindow time.Duration
	logger     *slog.Logger
}

var _ domain.MetricSource = (*Client)(nil)

// Config holds the CoinGecko endpoint and rate budget.
type Config struct {
	BaseURL    string // e.g. "https://api.coingecko.com/api/v3"
	APIKey     string // demo/pro key, optional
	RateLimit  int    // requests per window, 0 disables local limiting
	RateWindow time.Duration
}

// New creates a CoinGecko client. limiter may be nil when no distributed
// rate limiting is wanted.
func New(cfg Config, limiter domain.RateLimiter, logger *slog.Logger) *Client {
	window := cfg.RateWindow
	if window <= 0 {
		window = time.Minute
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:    limiter,
		rateLimit:  cfg.RateLimit,
		rateWindow: window,
		logger:     logger.With(slog.String("component", "coingecko")),
	}
}

// Handles reports whether this client serves the given source id.
func Handles(sourceID string) bool {
	return strings.HasPrefix(sourceID, sourcePrefix)
}

// FetchMetric fetches the named metric for a "coingecko:<coin>" source.
// Supported metrics are "price_<currency>", "market_cap_<currency>" and
// "volume_24h_<currency>", e.g. "price_usd". Transient failures and rate
// limiting are wrapped in domain.ErrIndeterminate; a malformed source or
// metric is a plain error because retrying cannot fix it.
func (c *Client) FetchMetric(ctx context.Context, sourceID, metric string) (float64, error) {
	coin, ok := strings.CutPrefix(sourceID, sourcePrefix)
	if !ok || coin == "" {
		return 0, fmt.Errorf("coingecko: source %q is not a coingecko source", sourceID)
	}

	field, currency, err := splitMetric(metric)
	if err != nil {
		return 0, err
	}

	if err := c.allow(ctx); err != nil {
		return 0, err
	}

	params := url.Values{}
	params.Set("ids", coin)
	params.Set("vs_currencies", currency)
	params.Set("include_market_cap", "true")
	params.Set("include_24hr_vol", "true")

	body, err := c.doGet(ctx, "/simple/price?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("coingecko: fetch %s for %s: %v: %w",
			metric, coin, err, domain.ErrIndeterminate)
	}

	var payload map[string]map[string]float64
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("coingecko: decode response for %s: %v: %w",
			coin, err, domain.ErrIndeterminate)
	}

	values, ok := payload[coin]
	if !ok {
		return 0, fmt.Errorf("coingecko: coin %q absent from response: %w",
			coin, domain.ErrIndeterminate)
	}

	key := currency
	if field != "price" {
		key = currency + "_" + field
	}
	value, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("coingecko: metric %q absent for coin %q: %w",
			metric, coin, domain.ErrIndeterminate)
	}

	c.logger.Debug("metric fetched",
		slog.String("coin", coin),
		slog.String("metric", metric),
		slog.Float64("value", value))
	return value, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// splitMetric maps a metric name to the simple/price response field and the
// vs currency.
func splitMetric(metric string) (field, currency string, err error) {
	switch {
	case strings.HasPrefix(metric, "price_"):
		return "price", strings.TrimPrefix(metric, "price_"), nil
	case strings.HasPrefix(metric, "market_cap_"):
		return "market_cap", strings.TrimPrefix(metric, "market_cap_"), nil
	case strings.HasPrefix(metric, "volume_24h_"):
		return "24h_vol", strings.TrimPrefix(metric, "volume_24h_"), nil
	default:
		return "", "", fmt.Errorf("coingecko: unsupported metric %q", metric)
	}
}

// allow consults the shared rate limiter. A denied or failed check is
// indeterminate; the value can be fetched on a later cycle.
func (c *Client) allow(ctx context.Context) error {
	if c.limiter == nil || c.rateLimit <= 0 {
		return nil
	}
	ok, err := c.limiter.Allow(ctx, rateLimitKey, c.rateLimit, c.rateWindow)
	if err != nil {
		return fmt.Errorf("coingecko: rate limiter: %v: %w", err, domain.ErrIndeterminate)
	}
	if !ok {
		return fmt.Errorf("coingecko: %w: %w", domain.ErrRateLimited, domain.ErrIndeterminate)
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, string(body))
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
