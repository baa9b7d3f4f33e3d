package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// maxBodySize caps how much of a provider response is read
const maxBodySize = 8 << 20

// httpGetter performs the GET + decode step shared by every provider
type httpGetter struct {
	provider string
	client   *http.Client
}

func newHTTPGetter(provider string, client *http.Client) httpGetter {
	if client == nil {
		client = &http.Client{}
	}
	return httpGetter{provider: provider, client: client}
}

// getJSON issues a GET with its own timeout and decodes the body into target.
// A 401 becomes ErrInvalidAPIKey. When allowErrorBody is set, non-200 bodies are
// still decoded so the caller can read a provider error payload.
func (g httpGetter) getJSON(ctx context.Context, timeout time.Duration, endpoint string, params url.Values, target any, allowErrorBody bool) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	// Create request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	// Execute request
	resp, err := g.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", redactURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, providerErr(g.provider, ErrInvalidAPIKey)
	}
	if resp.StatusCode != http.StatusOK && !allowErrorBody {
		return resp.StatusCode, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, target); err != nil {
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, truncate(string(body), 200))
		}
		return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.StatusCode, nil
}

// redactURLError drops the request URL, which carries the API key, from
// transport errors so they are safe to show and to dedup.
func redactURLError(err error) error {
	if uerr, ok := err.(*url.Error); ok {
		return uerr.Err
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func floatPtr(f float64) *float64 {
	return &f
}
