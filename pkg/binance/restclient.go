package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"volspike/pkg/ratelimit"
)

// RESTClient calls the Binance futures REST API. Every request passes the
// shared rate limiter first.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

func NewRESTClient(baseURL string, timeout time.Duration, limiter *ratelimit.Limiter) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// GetExchangeInfo fetches the full futures instrument list.
func (c *RESTClient) GetExchangeInfo(ctx context.Context) ([]SymbolInfo, error) {
	var result ExchangeInfoResponse
	if err := c.get(ctx, "/fapi/v1/exchangeInfo", &result); err != nil {
		return nil, err
	}
	return result.Symbols, nil
}

// Get24hTickers fetches the 24h statistics for all symbols.
func (c *RESTClient) Get24hTickers(ctx context.Context) ([]Ticker24h, error) {
	var result []Ticker24h
	if err := c.get(ctx, "/fapi/v1/ticker/24hr", &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *RESTClient) get(ctx context.Context, path string, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	endpoint := c.baseURL + path

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	// Execute the HTTP request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	// Check HTTP status code
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("binance error (%d): %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
