package emailexport

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// ProviderKind selects how a composed message actually leaves the process.
type ProviderKind string

const (
	ProviderSMTP     ProviderKind = "SMTP"
	ProviderResend   ProviderKind = "Resend"
	ProviderSendGrid ProviderKind = "SendGrid"
)

// SecurityMode mirrors the smtp security_mode enum used by destinations.
type SecurityMode string

const (
	SecurityNone     SecurityMode = "None"
	SecurityAuto     SecurityMode = "Auto"
	SecurityStartTLS SecurityMode = "StartTls"
)

// SMTPAuthKind selects how the SMTP session authenticates, when it does.
type SMTPAuthKind string

const (
	SMTPAuthBasic  SMTPAuthKind = "Basic"
	SMTPAuthOAuth2 SMTPAuthKind = "OAuth2"
)

// DestinationConfig is the Email destination kind's parsed configuration.
type DestinationConfig struct {
	Provider     ProviderKind
	SMTPServer   string
	SMTPPort     int
	Security     SecurityMode
	FromAddress  string
	FromName     string
	AuthType     SMTPAuthKind
	Username     string
	Password     string
	OAuthToken   string
	OAuthUser    string
	APIKey       string // Resend / SendGrid
}

// Message is one fully assembled, ready-to-send email.
type Message struct {
	SplitKey    string
	ToName      string
	ToAddress   string
	CCAddress   string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Sender delivers a Message; implemented by smtpSender and the HTTP-provider
// senders so export.go can stay provider-agnostic.
type Sender interface {
	Send(ctx context.Context, cfg DestinationConfig, msg Message) error
}

// NewSender picks the Sender implementation for cfg.Provider.
func NewSender(cfg DestinationConfig) Sender {
	switch cfg.Provider {
	case ProviderResend:
		return httpProviderSender{endpoint: "https://api.resend.com/emails", authHeader: "Bearer"}
	case ProviderSendGrid:
		return httpProviderSender{endpoint: "https://api.sendgrid.com/v3/mail/send", authHeader: "Bearer"}
	default:
		return smtpSender{}
	}
}

type smtpSender struct{}

func (smtpSender) Send(ctx context.Context, cfg DestinationConfig, msg Message) error {
	opts := []gomail.Option{gomail.WithPort(cfg.SMTPPort)}

	switch cfg.Security {
	case SecurityNone:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	case SecurityStartTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}

	switch cfg.AuthType {
	case SMTPAuthOAuth2:
		opts = append(opts, gomail.WithSMTPAuth(gomail.SMTPAuthXOAUTH2), gomail.WithUsername(cfg.OAuthUser), gomail.WithPassword(cfg.OAuthToken))
	case SMTPAuthBasic:
		if cfg.Username != "" {
			opts = append(opts, gomail.WithSMTPAuth(gomail.SMTPAuthPlain), gomail.WithUsername(cfg.Username), gomail.WithPassword(cfg.Password))
		}
	}

	client, err := gomail.NewClient(cfg.SMTPServer, opts...)
	if err != nil {
		return fmt.Errorf("emailexport: smtp client: %w", err)
	}

	m := gomail.NewMsg()
	if err := m.FromFormat(cfg.FromName, cfg.FromAddress); err != nil {
		return fmt.Errorf("emailexport: from address: %w", err)
	}
	if err := m.AddToFormat(msg.ToName, msg.ToAddress); err != nil {
		return fmt.Errorf("emailexport: to address: %w", err)
	}
	if msg.CCAddress != "" {
		if err := m.AddCc(msg.CCAddress); err != nil {
			return fmt.Errorf("emailexport: cc address: %w", err)
		}
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTMLBody)

	for _, a := range msg.Attachments {
		content := a.Content
		m.AttachReadSeeker(a.Filename, newByteReadSeeker(content))
	}

	return client.DialAndSendWithContext(ctx, m)
}

// DestinationConfigFromMap adapts the generic destination-config JSON the
// rest of Reef works with into a typed DestinationConfig.
func DestinationConfigFromMap(raw map[string]interface{}) DestinationConfig {
	get := func(k string) string {
		if v, ok := raw[k]; ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
		return ""
	}
	getInt := func(k string, def int) int {
		if v, ok := raw[k]; ok {
			switch n := v.(type) {
			case float64:
				return int(n)
			case int:
				return n
			}
		}
		return def
	}

	provider := ProviderSMTP
	switch get("provider") {
	case string(ProviderResend):
		provider = ProviderResend
	case string(ProviderSendGrid):
		provider = ProviderSendGrid
	}

	server := get("smtp_server")
	if server == "" {
		server = get("smtp_host")
	}

	authType := SMTPAuthBasic
	if get("smtp_auth_type") == string(SMTPAuthOAuth2) {
		authType = SMTPAuthOAuth2
	}

	return DestinationConfig{
		Provider:    provider,
		SMTPServer:  server,
		SMTPPort:    getInt("smtp_port", 587),
		Security:    SecurityMode(get("security_mode")),
		FromAddress: get("from_address"),
		FromName:    get("from_name"),
		AuthType:    authType,
		Username:    get("username"),
		Password:    get("password"),
		OAuthToken:  get("oauth_token"),
		OAuthUser:   get("oauth_username"),
		APIKey:      get("api_key"),
	}
}
