package service

import (
	"context"
	"strings"
	"time"

	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	pricingdomain "github.com/bitbonsai/license-server/internal/pricing/domain"
	"github.com/bitbonsai/license-server/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     pricingdomain.Repository
	Fallback *FallbackHolder
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     pricingdomain.Repository
	fallback *FallbackHolder
}

func New(p Params) pricingdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("pricing.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		fallback: p.Fallback,
	}
}

func (s *Service) ListTiers(ctx context.Context, activeOnly bool) ([]pricingdomain.PricingTier, error) {
	return s.repo.List(ctx, s.db, activeOnly)
}

func (s *Service) GetByName(ctx context.Context, name string) (*pricingdomain.PricingTier, error) {
	tier, err := s.repo.FindByName(ctx, s.db, strings.ToUpper(strings.TrimSpace(name)))
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, pricingdomain.ErrTierNotFound
	}
	return tier, nil
}

func (s *Service) GetByStripePriceID(ctx context.Context, priceID string) (*pricingdomain.PricingTier, error) {
	tier, err := s.repo.FindByStripePriceID(ctx, s.db, priceID)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, pricingdomain.ErrTierNotFound
	}
	return tier, nil
}

func (s *Service) Create(ctx context.Context, req pricingdomain.CreateRequest) (*pricingdomain.PricingTier, error) {
	now := time.Now().UTC()
	tier := &pricingdomain.PricingTier{
		ID:                s.genID.Generate(),
		Name:              strings.ToUpper(strings.TrimSpace(req.Name)),
		DisplayName:       req.DisplayName,
		Description:       req.Description,
		MaxNodes:          req.MaxNodes,
		MaxConcurrentJobs: req.MaxConcurrentJobs,
		PriceMonthly:      req.PriceMonthly,
		PriceYearly:       req.PriceYearly,
		PatreonTierID:     req.PatreonTierID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Insert(ctx, s.db, tier); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, pricingdomain.ErrDuplicateName
		}
		return nil, err
	}

	s.log.Info("pricing tier created", zap.String("name", tier.Name))
	return tier, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req pricingdomain.UpdateRequest) (*pricingdomain.PricingTier, error) {
	tier, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, pricingdomain.ErrTierNotFound
	}
	if tier.IsActive {
		// Published tiers are frozen: limit changes would silently alter
		// entitlements of future issuances. Deactivate first.
		return nil, pricingdomain.ErrTierActive
	}

	if req.DisplayName != nil {
		tier.DisplayName = *req.DisplayName
	}
	if req.Description != nil {
		tier.Description = *req.Description
	}
	if req.MaxNodes != nil {
		tier.MaxNodes = *req.MaxNodes
	}
	if req.MaxConcurrentJobs != nil {
		tier.MaxConcurrentJobs = *req.MaxConcurrentJobs
	}
	if req.PriceMonthly != nil {
		tier.PriceMonthly = *req.PriceMonthly
	}
	if req.PriceYearly != nil {
		tier.PriceYearly = req.PriceYearly
	}
	tier.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, tier); err != nil {
		return nil, err
	}
	return tier, nil
}

func (s *Service) Publish(ctx context.Context, id snowflake.ID, req pricingdomain.PublishRequest) (*pricingdomain.PricingTier, error) {
	tier, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, pricingdomain.ErrTierNotFound
	}
	if tier.IsActive {
		return nil, pricingdomain.ErrTierAlreadyPublished
	}

	now := time.Now().UTC()
	monthly := strings.TrimSpace(req.StripePriceIDMonthly)
	if monthly != "" {
		tier.StripePriceIDMonthly = &monthly
	}
	tier.StripePriceIDYearly = req.StripePriceIDYearly
	tier.IsActive = true
	tier.PublishedAt = &now
	tier.UpdatedAt = now

	if err := s.repo.Update(ctx, s.db, tier); err != nil {
		return nil, err
	}

	s.log.Info("pricing tier published", zap.String("name", tier.Name))
	return tier, nil
}

func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) (*pricingdomain.PricingTier, error) {
	tier, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, pricingdomain.ErrTierNotFound
	}

	tier.IsActive = false
	tier.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, tier); err != nil {
		return nil, err
	}
	return tier, nil
}

func (s *Service) MapPatreonTier(ctx context.Context, id snowflake.ID, patreonTierID string) (*pricingdomain.PricingTier, error) {
	tier, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, pricingdomain.ErrTierNotFound
	}

	patreonTierID = strings.TrimSpace(patreonTierID)
	tier.PatreonTierID = &patreonTierID
	tier.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, tier); err != nil {
		return nil, err
	}
	return tier, nil
}

func (s *Service) TierLimits(ctx context.Context, tier licensedomain.Tier) (licensedomain.Limits, bool) {
	record, err := s.repo.FindByName(ctx, s.db, string(tier))
	if err != nil {
		s.log.Warn("pricing lookup failed, using fallback limits",
			zap.String("tier", string(tier)), zap.Error(err))
	} else if record != nil && record.IsActive {
		return licensedomain.Limits{
			MaxNodes:          record.MaxNodes,
			MaxConcurrentJobs: record.MaxConcurrentJobs,
		}, true
	}

	return s.fallback.Limits(tier)
}
