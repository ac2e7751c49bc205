// Package domain contains pricing tier records, the source of truth for
// entitlement limits when a tier has an active pricing row.
package domain

import (
	"context"
	"errors"
	"time"

	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrTierNotFound         = errors.New("pricing_tier_not_found")
	ErrTierActive           = errors.New("pricing_tier_active")
	ErrTierAlreadyPublished = errors.New("pricing_tier_already_published")
	ErrDuplicateName        = errors.New("pricing_tier_duplicate_name")
)

// PricingTier maps a tier name to entitlement limits and prices. Prices are
// integer cents.
type PricingTier struct {
	ID                   snowflake.ID `json:"id" gorm:"primaryKey"`
	Name                 string       `json:"name" gorm:"type:text;not null;uniqueIndex"`
	DisplayName          string       `json:"display_name" gorm:"type:text;not null"`
	Description          string       `json:"description" gorm:"type:text"`
	MaxNodes             int          `json:"max_nodes" gorm:"not null"`
	MaxConcurrentJobs    int          `json:"max_concurrent_jobs" gorm:"not null"`
	PriceMonthly         int64        `json:"price_monthly" gorm:"not null"`
	PriceYearly          *int64       `json:"price_yearly"`
	StripePriceIDMonthly *string      `json:"stripe_price_id_monthly" gorm:"type:text"`
	StripePriceIDYearly  *string      `json:"stripe_price_id_yearly" gorm:"type:text"`
	PatreonTierID        *string      `json:"patreon_tier_id" gorm:"type:text"`
	IsActive             bool         `json:"is_active" gorm:"not null;default:false"`
	PublishedAt          *time.Time   `json:"published_at"`
	CreatedAt            time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PricingTier) TableName() string { return "pricing_tiers" }

type CreateRequest struct {
	Name              string  `json:"name"`
	DisplayName       string  `json:"display_name"`
	Description       string  `json:"description"`
	MaxNodes          int     `json:"max_nodes"`
	MaxConcurrentJobs int     `json:"max_concurrent_jobs"`
	PriceMonthly      int64   `json:"price_monthly"`
	PriceYearly       *int64  `json:"price_yearly"`
	PatreonTierID     *string `json:"patreon_tier_id"`
}

type UpdateRequest struct {
	DisplayName       *string `json:"display_name"`
	Description       *string `json:"description"`
	MaxNodes          *int    `json:"max_nodes"`
	MaxConcurrentJobs *int    `json:"max_concurrent_jobs"`
	PriceMonthly      *int64  `json:"price_monthly"`
	PriceYearly       *int64  `json:"price_yearly"`
}

// PublishRequest activates a tier. Stripe price ids are provisioned by the
// admin beforehand and recorded here so webhooks can resolve them.
type PublishRequest struct {
	StripePriceIDMonthly string  `json:"stripe_price_id_monthly"`
	StripePriceIDYearly  *string `json:"stripe_price_id_yearly"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tier *PricingTier) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PricingTier, error)
	FindByName(ctx context.Context, db *gorm.DB, name string) (*PricingTier, error)
	FindByStripePriceID(ctx context.Context, db *gorm.DB, priceID string) (*PricingTier, error)
	List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]PricingTier, error)
	Update(ctx context.Context, db *gorm.DB, tier *PricingTier) error
}

type Service interface {
	ListTiers(ctx context.Context, activeOnly bool) ([]PricingTier, error)
	GetByName(ctx context.Context, name string) (*PricingTier, error)
	GetByStripePriceID(ctx context.Context, priceID string) (*PricingTier, error)
	Create(ctx context.Context, req CreateRequest) (*PricingTier, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateRequest) (*PricingTier, error)
	Publish(ctx context.Context, id snowflake.ID, req PublishRequest) (*PricingTier, error)
	Deactivate(ctx context.Context, id snowflake.ID) (*PricingTier, error)
	MapPatreonTier(ctx context.Context, id snowflake.ID, patreonTierID string) (*PricingTier, error)

	// TierLimits resolves entitlement limits for a tier name: an active
	// pricing row wins, then the fallback table.
	TierLimits(ctx context.Context, tier licensedomain.Tier) (licensedomain.Limits, bool)
}
