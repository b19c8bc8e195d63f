package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTP fetches a JSON document from a fixed URL. It is the stock
// provider for upstream market-data feeds.
type HTTP struct {
	url    string
	client *http.Client
}

// NewHTTP creates a provider for url. A nil client gets a 30s timeout
// default; the scheduler's refresh timeout still applies on top via ctx.
func NewHTTP(url string, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTP{url: url, client: client}
}

// Fetch performs the GET and returns the raw JSON body. Non-2xx
// responses and non-JSON bodies are errors, so bad upstream payloads
// never reach the cache.
func (h *HTTP) Fetch(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", h.url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s failed: %w", h.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s returned HTTP %d", h.url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read body from %s: %w", h.url, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("fetch %s returned invalid JSON", h.url)
	}
	return body, nil
}
