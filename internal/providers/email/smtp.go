package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg Config
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

var licenseTemplate = template.Must(template.New("license").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1 style="color: #2d5016;">BitBonsai</h1>
  <h2>Thank you for your support!</h2>
  <p>Your <strong>{{.TierDisplay}}</strong> license is ready.</p>
  <div style="background: #1a1a1a; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <code style="color: #4ade80; word-break: break-all;">{{.Key}}</code>
  </div>
  <table style="width: 100%;">
    <tr><td><strong>Tier:</strong></td><td>{{.TierDisplay}}</td></tr>
    <tr><td><strong>Max Nodes:</strong></td><td>{{.MaxNodes}}</td></tr>
    <tr><td><strong>Concurrent Jobs:</strong></td><td>{{.MaxConcurrentJobs}}</td></tr>
    <tr><td><strong>Validity:</strong></td><td>{{.ExpiryText}}</td></tr>
  </table>
  <p>Paste this key in <strong>Settings &rarr; License</strong> in BitBonsai.</p>
</body>
</html>`))

func (p *SMTPProvider) SendLicenseEmail(ctx context.Context, msg LicenseEmail) error {
	display := FormatTierName(msg.Tier)

	expiry := "Lifetime license"
	if msg.ExpiresAt != nil {
		expiry = "Valid until: " + msg.ExpiresAt.Format("2006-01-02")
	}

	var body bytes.Buffer
	err := licenseTemplate.Execute(&body, struct {
		Key               string
		TierDisplay       string
		MaxNodes          int
		MaxConcurrentJobs int
		ExpiryText        string
	}{
		Key:               msg.Key,
		TierDisplay:       display,
		MaxNodes:          msg.MaxNodes,
		MaxConcurrentJobs: msg.MaxConcurrentJobs,
		ExpiryText:        expiry,
	})
	if err != nil {
		return fmt.Errorf("render license email: %w", err)
	}

	return p.Send(ctx, msg.Email, fmt.Sprintf("Your BitBonsai %s License", display), body.String())
}

func (p *SMTPProvider) Send(ctx context.Context, to, subject, htmlBody string) error {
	_ = ctx
	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n%s\r\n%s", to, subject, mime, htmlBody))

	return smtp.SendMail(addr, auth, p.cfg.From, []string{to}, msg)
}

// FormatTierName turns PATREON_PRO into "Patreon Pro" for display.
func FormatTierName(tier string) string {
	words := strings.Split(strings.ToLower(tier), "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
