package destination

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// HTTPDispatcher delivers by HTTP request. Required: url. Optional: method
// (default POST), auth (None|Basic|Bearer|ApiKey|OAuth2), headers,
// upload_format (raw|multipart, default raw), file_field_name (multipart,
// default "file"), content_type, timeout_seconds (default 60). Compensate
// is unsupported: an HTTP POST cannot generally be undone.
type HTTPDispatcher struct{}

type httpAuthKind string

const (
	httpAuthNone   httpAuthKind = "None"
	httpAuthBasic  httpAuthKind = "Basic"
	httpAuthBearer httpAuthKind = "Bearer"
	httpAuthAPIKey httpAuthKind = "ApiKey"
	httpAuthOAuth2 httpAuthKind = "OAuth2"
)

type httpConfig struct {
	url            string
	method         string
	auth           httpAuthKind
	username       string
	password       string
	token          string
	apiKeyHeader   string
	apiKeyValue    string
	headers        map[string]string
	uploadFormat   string
	fileFieldName  string
	contentType    string
	timeoutSeconds int
}

func parseHTTPConfig(config map[string]interface{}) httpConfig {
	c := httpConfig{
		method:         http.MethodPost,
		auth:           httpAuthNone,
		uploadFormat:   "raw",
		fileFieldName:  "file",
		contentType:    "application/octet-stream",
		timeoutSeconds: 60,
		headers:        map[string]string{},
	}
	if v, ok := config["url"].(string); ok {
		c.url = v
	}
	if v, ok := config["method"].(string); ok && v != "" {
		c.method = strings.ToUpper(v)
	}
	if v, ok := config["auth"].(string); ok && v != "" {
		c.auth = httpAuthKind(v)
	}
	if v, ok := config["username"].(string); ok {
		c.username = v
	}
	if v, ok := config["password"].(string); ok {
		c.password = v
	}
	if v, ok := config["token"].(string); ok {
		c.token = v
	}
	if v, ok := config["api_key_header"].(string); ok && v != "" {
		c.apiKeyHeader = v
	}
	if v, ok := config["api_key_value"].(string); ok {
		c.apiKeyValue = v
	}
	if v, ok := config["upload_format"].(string); ok && v != "" {
		c.uploadFormat = v
	}
	if v, ok := config["file_field_name"].(string); ok && v != "" {
		c.fileFieldName = v
	}
	if v, ok := config["content_type"].(string); ok && v != "" {
		c.contentType = v
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

func (h *HTTPDispatcher) applyAuth(req *http.Request, c httpConfig) {
	switch c.auth {
	case httpAuthBasic:
		req.SetBasicAuth(c.username, c.password)
	case httpAuthBearer, httpAuthOAuth2:
		req.Header.Set("Authorization", "Bearer "+c.token)
	case httpAuthAPIKey:
		if c.apiKeyHeader != "" {
			req.Header.Set(c.apiKeyHeader, c.apiKeyValue)
		}
	}
}

func (h *HTTPDispatcher) buildBody(c httpConfig, r io.Reader, relativePath string) (io.Reader, string, error) {
	if c.uploadFormat != "multipart" {
		return r, c.contentType, nil
	}

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	part, err := writer.CreateFormFile(c.fileFieldName, filepath.Base(relativePath))
	if err != nil {
		return nil, "", fmt.Errorf("destination: http: create multipart field: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("destination: http: write multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("destination: http: close multipart writer: %w", err)
	}
	return buf, writer.FormDataContentType(), nil
}

func (h *HTTPDispatcher) Save(ctx context.Context, config map[string]interface{}, r io.Reader, relativePath string, size int64) (SaveResult, error) {
	c := parseHTTPConfig(config)

	body, contentType, err := h.buildBody(c, r, relativePath)
	if err != nil {
		return SaveResult{}, nonTransient(err)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, c.url, body)
	if err != nil {
		return SaveResult{}, nonTransient(fmt.Errorf("destination: http: new request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	h.applyAuth(req, c)

	client := &http.Client{Timeout: time.Duration(c.timeoutSeconds) * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return SaveResult{}, fmt.Errorf("destination: http: do request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return SaveResult{}, nonTransient(fmt.Errorf("destination: http: client error status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 300 {
		return SaveResult{}, fmt.Errorf("destination: http: status %d", resp.StatusCode)
	}

	return SaveResult{Success: true, FinalPath: c.url}, nil
}

func (h *HTTPDispatcher) Test(ctx context.Context, config map[string]interface{}) (TestResult, error) {
	c := parseHTTPConfig(config)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url, nil)
	if err != nil {
		return TestResult{}, fmt.Errorf("destination: http: new test request: %w", err)
	}
	h.applyAuth(req, c)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: time.Duration(c.timeoutSeconds) * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return TestResult{}, fmt.Errorf("destination: http: test request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return TestResult{}, fmt.Errorf("destination: http: test status %d", resp.StatusCode)
	}

	return TestResult{Success: true, FinalPath: c.url, Message: fmt.Sprintf("status %d", resp.StatusCode)}, nil
}

func (h *HTTPDispatcher) Compensate(ctx context.Context, config map[string]interface{}, path string) error {
	return ErrNotSupported
}
