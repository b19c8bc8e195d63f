package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/finboard/finboard/pkg/gateway"
)

// Reader fetches the read envelope for one key. The two stock
// implementations cover the in-process and over-the-wire cases.
type Reader interface {
	Read(ctx context.Context, key string) (gateway.Envelope, error)
}

// LocalReader reads from an in-process gateway.
type LocalReader struct {
	Gateway *gateway.Gateway
}

func (r LocalReader) Read(ctx context.Context, key string) (gateway.Envelope, error) {
	return r.Gateway.Read(ctx, key), nil
}

// HTTPReader reads envelopes from a remote data endpoint.
type HTTPReader struct {
	base   string
	client *http.Client
}

// NewHTTPReader creates a reader against base, e.g. "http://localhost:8080".
func NewHTTPReader(base string, client *http.Client) *HTTPReader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPReader{
		base:   strings.TrimRight(base, "/"),
		client: client,
	}
}

// Read fetches GET {base}/api/data/{key}. Both 200 and 503 bodies are
// envelopes; only transport failures and undecodable bodies are errors.
func (r *HTTPReader) Read(ctx context.Context, key string) (gateway.Envelope, error) {
	endpoint := r.base + "/api/data/" + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gateway.Envelope{}, fmt.Errorf("failed to build request for %s: %w", key, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return gateway.Envelope{}, fmt.Errorf("read request for %s failed: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env gateway.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return gateway.Envelope{}, fmt.Errorf("failed to decode envelope for %s (HTTP %d): %w", key, resp.StatusCode, err)
	}
	return env, nil
}
