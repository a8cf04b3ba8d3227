// Package notify sends Reef's terminal-status and alert notifications:
// email via internal/emailexport's sender, and an outbound webhook POST,
// gated by internal/throttle's per-(event,key) cooldown. Grounded on
// internal/notification's service/sender split, adapted from a per-admin-user
// fan-out (Reef's catalog has no user table) to a fixed recipient/webhook
// configuration supplied at startup.
package notify

import (
	"github.com/reefdata/reef/internal/emailexport"
)

// Config holds the static delivery configuration for the notify Service,
// read once at startup from REEF_* flags/environment (cmd/reefd), mirroring
// how cmd/server/main.go binds its own flags — there is no settings table to
// reload from, unlike the teacher's per-request SMTP/webhook config loaders.
type Config struct {
	// Email, when EmailRecipients is non-empty and Email.SMTPServer is set,
	// delivers notifications via emailexport's sender; with SMTPServer empty
	// email is off whatever the provider.
	Email           emailexport.DestinationConfig
	EmailRecipients []string

	// WebhookURL, when set, receives a POST of the notification payload.
	// WebhookSecret, if set, HMAC-SHA256 signs the body.
	WebhookURL    string
	WebhookSecret string
}

// emailEnabled reports whether email delivery is configured (recipients and
// an SMTP server).
func (c Config) emailEnabled() bool {
	return len(c.EmailRecipients) > 0 && c.Email.SMTPServer != ""
}

func (c Config) webhookEnabled() bool {
	return c.WebhookURL != ""
}
