package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrLicenseNotFound = errors.New("license_not_found")
	ErrUnknownTier     = errors.New("unknown_tier")
	ErrInvalidEmail    = errors.New("invalid_email")
	ErrAlreadyRevoked  = errors.New("license_already_revoked")
)

// Verification error strings returned to license-consuming clients. These
// are part of the public verify contract.
const (
	VerifyErrBadSignature = "Invalid license key signature"
	VerifyErrExpired      = "License expired"
	VerifyErrRevoked      = "License revoked"
)

// CreateRequest is an admin-originated issuance. Explicit limit overrides
// win over tier defaults.
type CreateRequest struct {
	Email             string     `json:"email"`
	Tier              string     `json:"tier"`
	MaxNodes          *int       `json:"max_nodes"`
	MaxConcurrentJobs *int       `json:"max_concurrent_jobs"`
	ExpiresAt         *time.Time `json:"expires_at"`
}

// WebhookCreateRequest is a provider-originated issuance. The provider
// dictates the tier; overrides are never accepted on this path.
type WebhookCreateRequest struct {
	Email              string
	Tier               Tier
	Provider           Provider
	ProviderCustomerID string
	ExpiresAt          *time.Time
}

// VerifyResult is the structured verdict returned for any input, valid or
// not. Malformed and tampered tokens never produce an error, only a
// negative verdict.
type VerifyResult struct {
	Valid   bool     `json:"valid"`
	License *Payload `json:"license,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*License, error)
	CreateFromWebhook(ctx context.Context, req WebhookCreateRequest) (*License, error)
	Verify(ctx context.Context, key string) (VerifyResult, error)
	Revoke(ctx context.Context, id snowflake.ID, reason string) (*License, error)
	UpgradeFromWebhook(ctx context.Context, provider Provider, providerCustomerID string, newTier Tier) (*License, error)
	FindByID(ctx context.Context, id snowflake.ID) (*License, error)
	FindByEmail(ctx context.Context, email string) ([]License, error)
	FindByProviderCustomerID(ctx context.Context, provider Provider, providerCustomerID string) (*License, error)
	FindAll(ctx context.Context, skip, take int) ([]License, error)
	Count(ctx context.Context) (int64, error)
	PublicKeyPEM() string
}
