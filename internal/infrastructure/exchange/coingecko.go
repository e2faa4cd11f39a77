package exchange

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vitos/cheeseball/internal/domain"
)

const (
	CoinGeckoBaseURL = "https://api.coingecko.com/api/v3"

	maxErrorMessage = 512
)

// CoinGeckoClient issues GET requests against the CoinGecko v3 REST API.
type CoinGeckoClient struct {
	baseURL      string
	apiKey       string
	apiKeyHeader string
	client       *http.Client
}

func NewCoinGeckoClient(baseURL, apiKey, apiKeyHeader string, timeout time.Duration) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = CoinGeckoBaseURL
	}
	return &CoinGeckoClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		apiKeyHeader: apiKeyHeader,
		client:       &http.Client{Timeout: timeout},
	}
}

// Get fetches path with the given query and returns the body unchanged.
// Every failure is reported as a *domain.UpstreamError.
func (c *CoinGeckoClient) Get(ctx context.Context, operation, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &domain.UpstreamError{Operation: operation, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" && c.apiKeyHeader != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.UpstreamError{Operation: operation, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.UpstreamError{
			Operation: operation,
			Status:    resp.StatusCode,
			Message:   truncate(strings.TrimSpace(string(body)), maxErrorMessage),
		}
	}

	if !json.Valid(body) {
		return nil, &domain.UpstreamError{
			Operation: operation,
			Status:    resp.StatusCode,
			Message:   "malformed JSON in upstream response",
		}
	}

	return body, nil
}

// Ping checks that the API answers on /ping.
func (c *CoinGeckoClient) Ping(ctx context.Context) error {
	_, err := c.Get(ctx, "ping", "/ping", nil)
	return err
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
