package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// LicenseUpdate carries the fields rewritten when a license changes tier.
// The record id and provider linkage never change.
type LicenseUpdate struct {
	Key               string
	Tier              Tier
	MaxNodes          int
	MaxConcurrentJobs int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, license *License) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*License, error)
	FindByKey(ctx context.Context, db *gorm.DB, key string) (*License, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) ([]License, error)
	FindByProviderCustomerID(ctx context.Context, db *gorm.DB, provider Provider, providerCustomerID string) (*License, error)
	List(ctx context.Context, db *gorm.DB, skip, take int) ([]License, error)
	Count(ctx context.Context, db *gorm.DB) (int64, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, update LicenseUpdate) (*License, error)
	Revoke(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) (*License, error)
}
