package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// webhookPayload is the JSON body posted to Config.WebhookURL.
type webhookPayload struct {
	Kind      string         `json:"kind"`
	Title     string         `json:"title"`
	Body      string         `json:"text"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp string         `json:"timestamp"`
}

type webhookSender struct {
	client *http.Client
}

func newWebhookSender() *webhookSender {
	return &webhookSender{client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *webhookSender) send(ctx context.Context, cfg Config, kind, title, body string, f fields) error {
	data, err := json.Marshal(webhookPayload{
		Kind:      kind,
		Title:     title,
		Body:      body,
		Fields:    f,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("%w: marshal payload: %s", ErrSendFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: build request: %s", ErrSendFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Reef-Notify/1.0")

	if cfg.WebhookSecret != "" {
		req.Header.Set("X-Reef-Signature", "sha256="+hmacSHA256(data, cfg.WebhookSecret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %s", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: non-2xx status %d", ErrSendFailed, resp.StatusCode)
	}
	return nil
}

func hmacSHA256(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
