package destination

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"
)

// WebDavDispatcher delivers over WebDAV using the protocol's native HTTP
// verbs (MKCOL/PUT/DELETE). Required: url, username, password. Optional:
// remote_path, timeout_seconds (default 60).
type WebDavDispatcher struct{}

type webDavConfig struct {
	baseURL        string
	username       string
	password       string
	remotePath     string
	timeoutSeconds int
}

func parseWebDavConfig(config map[string]interface{}) webDavConfig {
	c := webDavConfig{remotePath: "/", timeoutSeconds: 60}
	if v, ok := config["url"].(string); ok {
		c.baseURL = strings.TrimRight(v, "/")
	}
	if v, ok := config["username"].(string); ok {
		c.username = v
	}
	if v, ok := config["password"].(string); ok {
		c.password = v
	}
	if v, ok := config["remote_path"].(string); ok && v != "" {
		c.remotePath = v
	}
	if v, ok := config["timeout_seconds"].(float64); ok && v > 0 {
		c.timeoutSeconds = int(v)
	}
	return c
}

func (w *WebDavDispatcher) do(ctx context.Context, c webDavConfig, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("destination: webdav: new request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	client := &http.Client{Timeout: time.Duration(c.timeoutSeconds) * time.Second}
	return client.Do(req)
}

// ensureRemoteDir issues MKCOL for each path segment and ignores the response
// status (a 405 for an existing collection included); only a transport error
// is returned, and the following PUT surfaces any real problem.
func (w *WebDavDispatcher) ensureRemoteDir(ctx context.Context, c webDavConfig, dir string) error {
	dir = strings.Trim(path.Clean(strings.ReplaceAll(dir, "\\", "/")), "/")
	if dir == "" || dir == "." {
		return nil
	}
	segments := strings.Split(dir, "/")
	current := ""
	for _, seg := range segments {
		current += "/" + seg
		resp, err := w.do(ctx, c, "MKCOL", c.baseURL+current, nil)
		if err != nil {
			return err
		}
		resp.Body.Close()
	}
	return nil
}

func (w *WebDavDispatcher) Save(ctx context.Context, config map[string]interface{}, r io.Reader, relativePath string, size int64) (SaveResult, error) {
	c := parseWebDavConfig(config)
	full := path.Join(c.remotePath, strings.ReplaceAll(relativePath, "\\", "/"))

	if err := w.ensureRemoteDir(ctx, c, path.Dir(full)); err != nil {
		return SaveResult{}, fmt.Errorf("destination: webdav: mkcol: %w", err)
	}

	resp, err := w.do(ctx, c, http.MethodPut, c.baseURL+full, r)
	if err != nil {
		return SaveResult{}, fmt.Errorf("destination: webdav: put: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return SaveResult{}, nonTransient(fmt.Errorf("destination: webdav: put status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 300 {
		return SaveResult{}, fmt.Errorf("destination: webdav: put status %d", resp.StatusCode)
	}

	return SaveResult{Success: true, FinalPath: full}, nil
}

func (w *WebDavDispatcher) Test(ctx context.Context, config map[string]interface{}) (TestResult, error) {
	c := parseWebDavConfig(config)
	full := path.Join(c.remotePath, "reef-test", "connectivity-check")
	content := strings.NewReader("reef connectivity check")

	if err := w.ensureRemoteDir(ctx, c, path.Dir(full)); err != nil {
		return TestResult{}, fmt.Errorf("destination: webdav: test mkcol: %w", err)
	}

	resp, err := w.do(ctx, c, http.MethodPut, c.baseURL+full, content)
	if err != nil {
		return TestResult{}, fmt.Errorf("destination: webdav: test put: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return TestResult{}, fmt.Errorf("destination: webdav: test status %d", resp.StatusCode)
	}

	delResp, err := w.do(ctx, c, http.MethodDelete, c.baseURL+full, nil)
	if err == nil {
		delResp.Body.Close()
	}

	return TestResult{Success: true, FinalPath: full, Bytes: 23, Message: "ok"}, nil
}

func (w *WebDavDispatcher) Compensate(ctx context.Context, config map[string]interface{}, remotePath string) error {
	c := parseWebDavConfig(config)
	resp, err := w.do(ctx, c, http.MethodDelete, c.baseURL+remotePath, nil)
	if err != nil {
		return fmt.Errorf("destination: webdav: compensate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("destination: webdav: compensate status %d", resp.StatusCode)
	}
	return nil
}
