package repository

import (
	"context"
	"errors"

	pricingdomain "github.com/bitbonsai/license-server/internal/pricing/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() pricingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tier *pricingdomain.PricingTier) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO pricing_tiers (
			id, name, display_name, description, max_nodes, max_concurrent_jobs,
			price_monthly, price_yearly, stripe_price_id_monthly, stripe_price_id_yearly,
			patreon_tier_id, is_active, published_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tier.ID,
		tier.Name,
		tier.DisplayName,
		tier.Description,
		tier.MaxNodes,
		tier.MaxConcurrentJobs,
		tier.PriceMonthly,
		tier.PriceYearly,
		tier.StripePriceIDMonthly,
		tier.StripePriceIDYearly,
		tier.PatreonTierID,
		tier.IsActive,
		tier.PublishedAt,
		tier.CreatedAt,
		tier.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*pricingdomain.PricingTier, error) {
	var tier pricingdomain.PricingTier
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&tier).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*pricingdomain.PricingTier, error) {
	var tier pricingdomain.PricingTier
	err := db.WithContext(ctx).
		Where("name = ?", name).
		Take(&tier).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *repo) FindByStripePriceID(ctx context.Context, db *gorm.DB, priceID string) (*pricingdomain.PricingTier, error) {
	var tier pricingdomain.PricingTier
	err := db.WithContext(ctx).
		Where("stripe_price_id_monthly = ? OR stripe_price_id_yearly = ?", priceID, priceID).
		Take(&tier).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]pricingdomain.PricingTier, error) {
	query := db.WithContext(ctx).Order("price_monthly ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var tiers []pricingdomain.PricingTier
	if err := query.Find(&tiers).Error; err != nil {
		return nil, err
	}
	return tiers, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, tier *pricingdomain.PricingTier) error {
	return db.WithContext(ctx).Exec(
		`UPDATE pricing_tiers SET
			display_name = ?, description = ?, max_nodes = ?, max_concurrent_jobs = ?,
			price_monthly = ?, price_yearly = ?, stripe_price_id_monthly = ?,
			stripe_price_id_yearly = ?, patreon_tier_id = ?, is_active = ?,
			published_at = ?, updated_at = ?
		WHERE id = ?`,
		tier.DisplayName,
		tier.Description,
		tier.MaxNodes,
		tier.MaxConcurrentJobs,
		tier.PriceMonthly,
		tier.PriceYearly,
		tier.StripePriceIDMonthly,
		tier.StripePriceIDYearly,
		tier.PatreonTierID,
		tier.IsActive,
		tier.PublishedAt,
		tier.UpdatedAt,
		tier.ID,
	).Error
}
