package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPFetcher retrieves a single payload by GET. HTTP sources have no
// directory listing, so pattern/selection are ignored and exactly one
// item is returned per fetch.
type HTTPFetcher struct{}

type httpSourceConfig struct {
	url            string
	timeoutSeconds int
	headers        map[string]string
}

func parseHTTPSourceConfig(config map[string]interface{}) httpSourceConfig {
	c := httpSourceConfig{timeoutSeconds: 60, headers: map[string]string{}}
	if v, ok := config["url"].(string); ok {
		c.url = v
	}
	if v, ok := config["timeout_seconds"].(float64); ok && v > 0 {
		c.timeoutSeconds = int(v)
	}
	if raw, ok := config["headers"].(map[string]interface{}); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				c.headers[k] = s
			}
		}
	}
	return c
}

func (h *HTTPFetcher) Fetch(ctx context.Context, config map[string]interface{}, pattern string, selection Selection) ([]Item, error) {
	c := parseHTTPSourceConfig(config)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("source: http: new request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: time.Duration(c.timeoutSeconds) * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: http: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("source: http: status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("source: http: read body: %w", err)
	}

	return []Item{{Identifier: c.url, ContentBytes: content}}, nil
}

// Archive is a no-op for HTTP sources: there is no remote location to move
// a GET response to.
func (h *HTTPFetcher) Archive(ctx context.Context, config map[string]interface{}, identifier string) error {
	return nil
}
