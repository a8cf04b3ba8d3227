// Package emailexport implements Reef's email export subsystem: grouping
// query-result rows into emails, rendering subject/body through a template,
// assembling attachments, and sending over SMTP or an
// HTTP provider (Resend/SendGrid).
package emailexport

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/reefdata/reef/internal/sqlclient"
)

// Renderer renders a template string against a model. The default
// implementation uses Go's text/template, which covers the common
// Scriban-like {{ }} placeholder syntax.
type Renderer interface {
	Render(templateBody string, model map[string]interface{}) (string, error)
}

// TextTemplateRenderer is the default Renderer.
type TextTemplateRenderer struct{}

func (TextTemplateRenderer) Render(templateBody string, model map[string]interface{}) (string, error) {
	tmpl, err := template.New("emailexport").Parse(templateBody)
	if err != nil {
		return "", fmt.Errorf("emailexport: parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, model); err != nil {
		return "", fmt.Errorf("emailexport: execute template: %w", err)
	}
	return buf.String(), nil
}

// SystemContext is the model passed when rendering a hardcoded subject,
// "per-email assembly" step 2.
type SystemContext struct {
	ProfileID   string
	ProfileName string
	Date        string
	Time        string
	DateTime    string
	Timestamp   int64
	Now         time.Time
}

func newSystemContext(profileID, profileName string) SystemContext {
	now := time.Now().UTC()
	return SystemContext{
		ProfileID:   profileID,
		ProfileName: profileName,
		Date:        now.Format("2006-01-02"),
		Time:        now.Format("15:04:05"),
		DateTime:    now.Format(time.RFC3339),
		Timestamp:   now.Unix(),
		Now:         now,
	}
}

// resolveSubject resolves an email subject: hardcoded (rendered) -> column ->
// fallback.
func resolveSubject(renderer Renderer, hardcoded, column string, row sqlclient.Row, profileID, profileName string) (string, error) {
	if hardcoded != "" {
		sysCtx := newSystemContext(profileID, profileName)
		model := map[string]interface{}{
			"profile_id": sysCtx.ProfileID, "name": sysCtx.ProfileName,
			"date": sysCtx.Date, "time": sysCtx.Time, "datetime": sysCtx.DateTime,
			"timestamp": sysCtx.Timestamp, "now": sysCtx.Now,
		}
		return renderer.Render(hardcoded, model)
	}
	if column != "" {
		if v, ok := row[column]; ok && v != nil {
			return fmt.Sprintf("%v", v), nil
		}
	}
	return fmt.Sprintf("Reef Export from %s", profileName), nil
}

// resolveMailbox parses "Display Name;email@host" or a bare address,
// stripping control characters and CR/LF from the display name.
func resolveMailbox(raw string) (name, address string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("emailexport: empty recipient")
	}
	if idx := strings.Index(raw, ";"); idx >= 0 {
		name = sanitizeDisplayName(raw[:idx])
		address = strings.TrimSpace(raw[idx+1:])
	} else {
		address = raw
	}
	if !looksLikeEmail(address) {
		return "", "", fmt.Errorf("emailexport: malformed address %q", address)
	}
	return name, address, nil
}

func sanitizeDisplayName(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r == '\r' || r == '\n' || r < 0x20 {
			continue
		}
		sb.WriteRune(r)
	}
	return strings.TrimSpace(sb.String())
}

func looksLikeEmail(s string) bool {
	at := strings.Index(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\r\n")
}
