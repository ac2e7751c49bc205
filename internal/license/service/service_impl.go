package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bitbonsai/license-server/internal/keys"
	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	"github.com/bitbonsai/license-server/internal/license/token"
	pricingdomain "github.com/bitbonsai/license-server/internal/pricing/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Keys    *keys.Manager
	Repo    licensedomain.Repository
	Pricing pricingdomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	keys    *keys.Manager
	codec   *token.Codec
	repo    licensedomain.Repository
	pricing pricingdomain.Service
}

func New(p Params) licensedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("license.service"),
		genID:   p.GenID,
		keys:    p.Keys,
		codec:   token.NewCodec(p.Keys),
		repo:    p.Repo,
		pricing: p.Pricing,
	}
}

func (s *Service) Create(ctx context.Context, req licensedomain.CreateRequest) (*licensedomain.License, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, licensedomain.ErrInvalidEmail
	}

	tier, err := licensedomain.ParseTier(req.Tier)
	if err != nil {
		return nil, err
	}

	limits := s.resolveLimits(ctx, tier)
	if req.MaxNodes != nil {
		limits.MaxNodes = *req.MaxNodes
	}
	if req.MaxConcurrentJobs != nil {
		limits.MaxConcurrentJobs = *req.MaxConcurrentJobs
	}

	license, err := s.mint(ctx, mintParams{
		email:     email,
		tier:      tier,
		limits:    limits,
		expiresAt: req.ExpiresAt,
		provider:  licensedomain.ProviderManual,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("license created",
		zap.String("id", license.ID.String()),
		zap.String("email", email),
		zap.String("tier", string(tier)))
	return license, nil
}

func (s *Service) CreateFromWebhook(ctx context.Context, req licensedomain.WebhookCreateRequest) (*licensedomain.License, error) {
	limits := s.resolveLimits(ctx, req.Tier)

	customerID := req.ProviderCustomerID
	license, err := s.mint(ctx, mintParams{
		email:              req.Email,
		tier:               req.Tier,
		limits:             limits,
		expiresAt:          req.ExpiresAt,
		provider:           req.Provider,
		providerCustomerID: &customerID,
		providerEmail:      &req.Email,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("license created from webhook",
		zap.String("id", license.ID.String()),
		zap.String("provider", string(req.Provider)),
		zap.String("tier", string(req.Tier)))
	return license, nil
}

// Verify checks signature, expiry and revocation in that order. The signed
// payload is trusted for tier and limits so clients can verify offline; the
// store lookup only catches revocation. A failed lookup is an error, never a
// revocation verdict, so a client with a good key retries instead of
// discarding it.
func (s *Service) Verify(ctx context.Context, key string) (licensedomain.VerifyResult, error) {
	signed := s.codec.Decode(key)
	if signed == nil {
		return licensedomain.VerifyResult{Valid: false, Error: licensedomain.VerifyErrBadSignature}, nil
	}

	payload := signed.Payload
	if payload.ExpiresAt != nil && payload.ExpiresAt.Before(time.Now()) {
		return licensedomain.VerifyResult{Valid: false, Error: licensedomain.VerifyErrExpired}, nil
	}

	record, err := s.repo.FindByKey(ctx, s.db, key)
	if err != nil {
		s.log.Error("license status lookup failed", zap.Error(err))
		return licensedomain.VerifyResult{}, fmt.Errorf("license status lookup: %w", err)
	}
	if record != nil && record.Status == licensedomain.StatusRevoked {
		return licensedomain.VerifyResult{Valid: false, Error: licensedomain.VerifyErrRevoked}, nil
	}

	return licensedomain.VerifyResult{Valid: true, License: &payload}, nil
}

func (s *Service) Revoke(ctx context.Context, id snowflake.ID, reason string) (*licensedomain.License, error) {
	existing, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("license %s: %w", id, licensedomain.ErrLicenseNotFound)
	}
	if existing.Status == licensedomain.StatusRevoked {
		return nil, licensedomain.ErrAlreadyRevoked
	}

	license, err := s.repo.Revoke(ctx, s.db, id, reason)
	if err != nil {
		return nil, err
	}

	s.log.Info("license revoked",
		zap.String("id", id.String()),
		zap.String("reason", reason))
	return license, nil
}

// UpgradeFromWebhook re-derives limits from newTier and mints a replacement
// token for the same record. Returns (nil, nil) when the customer has no
// license; the caller decides how to surface that. The old token keeps
// verifying its own stale payload, so clients must always re-fetch the
// current key.
func (s *Service) UpgradeFromWebhook(ctx context.Context, provider licensedomain.Provider, providerCustomerID string, newTier licensedomain.Tier) (*licensedomain.License, error) {
	existing, err := s.repo.FindByProviderCustomerID(ctx, s.db, provider, providerCustomerID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	limits := s.resolveLimits(ctx, newTier)
	payload := licensedomain.Payload{
		Email:             existing.Email,
		Tier:              newTier,
		MaxNodes:          limits.MaxNodes,
		MaxConcurrentJobs: limits.MaxConcurrentJobs,
		ExpiresAt:         nil,
		IssuedAt:          time.Now().UTC(),
	}

	newKey, err := s.codec.Encode(payload)
	if err != nil {
		return nil, err
	}

	license, err := s.repo.Update(ctx, s.db, existing.ID, licensedomain.LicenseUpdate{
		Key:               newKey,
		Tier:              newTier,
		MaxNodes:          limits.MaxNodes,
		MaxConcurrentJobs: limits.MaxConcurrentJobs,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("license upgraded",
		zap.String("id", existing.ID.String()),
		zap.String("tier", string(newTier)),
		zap.String("provider", string(provider)))
	return license, nil
}

func (s *Service) FindByID(ctx context.Context, id snowflake.ID) (*licensedomain.License, error) {
	license, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if license == nil {
		return nil, fmt.Errorf("license %s: %w", id, licensedomain.ErrLicenseNotFound)
	}
	return license, nil
}

func (s *Service) FindByEmail(ctx context.Context, email string) ([]licensedomain.License, error) {
	return s.repo.FindByEmail(ctx, s.db, strings.TrimSpace(email))
}

func (s *Service) FindByProviderCustomerID(ctx context.Context, provider licensedomain.Provider, providerCustomerID string) (*licensedomain.License, error) {
	return s.repo.FindByProviderCustomerID(ctx, s.db, provider, providerCustomerID)
}

func (s *Service) FindAll(ctx context.Context, skip, take int) ([]licensedomain.License, error) {
	if take <= 0 {
		take = 20
	}
	if take > 100 {
		take = 100
	}
	if skip < 0 {
		skip = 0
	}
	return s.repo.List(ctx, s.db, skip, take)
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx, s.db)
}

func (s *Service) PublicKeyPEM() string {
	return s.keys.PublicKeyPEM()
}

type mintParams struct {
	email              string
	tier               licensedomain.Tier
	limits             licensedomain.Limits
	expiresAt          *time.Time
	provider           licensedomain.Provider
	providerCustomerID *string
	providerEmail      *string
}

func (s *Service) mint(ctx context.Context, p mintParams) (*licensedomain.License, error) {
	payload := licensedomain.Payload{
		Email:             p.email,
		Tier:              p.tier,
		MaxNodes:          p.limits.MaxNodes,
		MaxConcurrentJobs: p.limits.MaxConcurrentJobs,
		ExpiresAt:         p.expiresAt,
		IssuedAt:          time.Now().UTC(),
	}

	key, err := s.codec.Encode(payload)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	license := &licensedomain.License{
		ID:                 s.genID.Generate(),
		Key:                key,
		Email:              p.email,
		Tier:               p.tier,
		MaxNodes:           p.limits.MaxNodes,
		MaxConcurrentJobs:  p.limits.MaxConcurrentJobs,
		ExpiresAt:          p.expiresAt,
		Status:             licensedomain.StatusActive,
		Provider:           p.provider,
		ProviderCustomerID: p.providerCustomerID,
		ProviderEmail:      p.providerEmail,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Insert(ctx, s.db, license); err != nil {
		return nil, err
	}
	return license, nil
}

func (s *Service) resolveLimits(ctx context.Context, tier licensedomain.Tier) licensedomain.Limits {
	if limits, ok := s.pricing.TierLimits(ctx, tier); ok {
		return limits
	}
	// ParseTier guarantees membership in the fallback table, but webhook
	// paths construct tiers directly.
	return licensedomain.FallbackLimits[licensedomain.TierFree]
}
