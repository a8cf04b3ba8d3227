package emailexport

import "testing"

func TestNewSenderPicksProviderImplementation(t *testing.T) {
	if _, ok := NewSender(DestinationConfig{Provider: ProviderResend}).(httpProviderSender); !ok {
		t.Fatalf("expected Resend to route to httpProviderSender")
	}
	if _, ok := NewSender(DestinationConfig{Provider: ProviderSendGrid}).(httpProviderSender); !ok {
		t.Fatalf("expected SendGrid to route to httpProviderSender")
	}
	if _, ok := NewSender(DestinationConfig{Provider: ProviderSMTP}).(smtpSender); !ok {
		t.Fatalf("expected SMTP to route to smtpSender")
	}
}

func TestDestinationConfigFromMapDefaults(t *testing.T) {
	cfg := DestinationConfigFromMap(map[string]interface{}{
		"smtp_host":    "mail.example.com",
		"from_address": "reef@example.com",
	})
	if cfg.Provider != ProviderSMTP {
		t.Fatalf("expected default provider SMTP, got %s", cfg.Provider)
	}
	if cfg.SMTPServer != "mail.example.com" {
		t.Fatalf("expected smtp_host fallback to populate SMTPServer, got %q", cfg.SMTPServer)
	}
	if cfg.SMTPPort != 587 {
		t.Fatalf("expected default port 587, got %d", cfg.SMTPPort)
	}
	if cfg.AuthType != SMTPAuthBasic {
		t.Fatalf("expected default auth type Basic, got %s", cfg.AuthType)
	}
}

func TestDestinationConfigFromMapOverrides(t *testing.T) {
	cfg := DestinationConfigFromMap(map[string]interface{}{
		"provider":       "Resend",
		"smtp_server":    "smtp.example.com",
		"smtp_port":      float64(2525),
		"smtp_auth_type": "OAuth2",
		"api_key":        "key123",
	})
	if cfg.Provider != ProviderResend {
		t.Fatalf("expected provider Resend, got %s", cfg.Provider)
	}
	if cfg.SMTPServer != "smtp.example.com" {
		t.Fatalf("expected smtp_server to take priority over smtp_host, got %q", cfg.SMTPServer)
	}
	if cfg.SMTPPort != 2525 {
		t.Fatalf("expected port 2525, got %d", cfg.SMTPPort)
	}
	if cfg.AuthType != SMTPAuthOAuth2 {
		t.Fatalf("expected auth type OAuth2, got %s", cfg.AuthType)
	}
	if cfg.APIKey != "key123" {
		t.Fatalf("expected api_key to be carried through, got %q", cfg.APIKey)
	}
}
