package email

import (
	"context"
	"time"
)

// LicenseEmail carries everything the license delivery mail needs.
type LicenseEmail struct {
	Email             string
	Key               string
	Tier              string
	MaxNodes          int
	MaxConcurrentJobs int
	ExpiresAt         *time.Time
}

// Provider sends outbound mail. Delivery is best effort: callers on the
// webhook path never fail because of it.
type Provider interface {
	SendLicenseEmail(ctx context.Context, msg LicenseEmail) error
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// NoOpProvider is used when email is disabled; sends are logged by callers.
type NoOpProvider struct{}

func (p *NoOpProvider) SendLicenseEmail(ctx context.Context, msg LicenseEmail) error {
	return nil
}

func (p *NoOpProvider) Send(ctx context.Context, to, subject, htmlBody string) error {
	return nil
}
