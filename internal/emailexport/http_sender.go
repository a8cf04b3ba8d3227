package emailexport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// httpProviderSender sends through an HTTP email API (Resend, SendGrid)
// rather than SMTP. Both providers accept a similar JSON envelope for the
// common case Reef needs: single recipient, HTML body, inline attachments.
type httpProviderSender struct {
	endpoint   string
	authHeader string
}

func (h httpProviderSender) Send(ctx context.Context, cfg DestinationConfig, msg Message) error {
	type attachment struct {
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}
	body := struct {
		From        string       `json:"from"`
		To          []string     `json:"to"`
		Cc          []string     `json:"cc,omitempty"`
		Subject     string       `json:"subject"`
		HTML        string       `json:"html"`
		Attachments []attachment `json:"attachments,omitempty"`
	}{
		From:    fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress),
		To:      []string{msg.ToAddress},
		Subject: msg.Subject,
		HTML:    msg.HTMLBody,
	}
	if msg.CCAddress != "" {
		body.Cc = []string{msg.CCAddress}
	}
	for _, a := range msg.Attachments {
		body.Attachments = append(body.Attachments, attachment{
			Filename: a.Filename,
			Content:  base64.StdEncoding.EncodeToString(a.Content),
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("emailexport: encode provider payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("emailexport: build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("%s %s", h.authHeader, cfg.APIKey))

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("emailexport: provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("emailexport: provider responded %s", resp.Status)
	}
	return nil
}

// byteReadSeeker adapts a []byte to io.ReadSeeker for go-mail's
// AttachReadSeeker, which needs Seek to compute MIME part sizes.
type byteReadSeeker struct {
	*bytes.Reader
}

func newByteReadSeeker(b []byte) *byteReadSeeker {
	return &byteReadSeeker{Reader: bytes.NewReader(b)}
}
