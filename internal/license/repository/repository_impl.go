package repository

import (
	"context"
	"errors"
	"time"

	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() licensedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, license *licensedomain.License) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO licenses (
			id, key, email, tier, max_nodes, max_concurrent_jobs, expires_at,
			status, provider, provider_customer_id, provider_email,
			revoked_at, revoked_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		license.ID,
		license.Key,
		license.Email,
		license.Tier,
		license.MaxNodes,
		license.MaxConcurrentJobs,
		license.ExpiresAt,
		license.Status,
		license.Provider,
		license.ProviderCustomerID,
		license.ProviderEmail,
		license.RevokedAt,
		license.RevokedReason,
		license.CreatedAt,
		license.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*licensedomain.License, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, key string) (*licensedomain.License, error) {
	return r.findOne(ctx, db, "key = ?", key)
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) ([]licensedomain.License, error) {
	var licenses []licensedomain.License
	err := db.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at DESC").
		Find(&licenses).Error
	if err != nil {
		return nil, err
	}
	return licenses, nil
}

// FindByProviderCustomerID resolves "the" license for a provider customer.
// The upgrade and cancel paths assume at most one non-revoked license per
// (provider, provider_customer_id); newest wins if that is ever violated.
func (r *repo) FindByProviderCustomerID(ctx context.Context, db *gorm.DB, provider licensedomain.Provider, providerCustomerID string) (*licensedomain.License, error) {
	var license licensedomain.License
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_customer_id = ?", provider, providerCustomerID).
		Order("created_at DESC").
		Take(&license).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &license, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, skip, take int) ([]licensedomain.License, error) {
	var licenses []licensedomain.License
	err := db.WithContext(ctx).
		Order("created_at DESC").
		Offset(skip).
		Limit(take).
		Find(&licenses).Error
	if err != nil {
		return nil, err
	}
	return licenses, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&licensedomain.License{}).
		Count(&count).Error
	return count, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, update licensedomain.LicenseUpdate) (*licensedomain.License, error) {
	err := db.WithContext(ctx).Exec(
		`UPDATE licenses SET
			key = ?, tier = ?, max_nodes = ?, max_concurrent_jobs = ?, updated_at = ?
		WHERE id = ?`,
		update.Key,
		update.Tier,
		update.MaxNodes,
		update.MaxConcurrentJobs,
		time.Now().UTC(),
		id,
	).Error
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, db, id)
}

func (r *repo) Revoke(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) (*licensedomain.License, error) {
	now := time.Now().UTC()
	err := db.WithContext(ctx).Exec(
		`UPDATE licenses SET
			status = ?, revoked_at = ?, revoked_reason = ?, updated_at = ?
		WHERE id = ? AND status != ?`,
		licensedomain.StatusRevoked,
		now,
		reason,
		now,
		id,
		licensedomain.StatusRevoked,
	).Error
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, db, id)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, cond string, arg interface{}) (*licensedomain.License, error) {
	var license licensedomain.License
	err := db.WithContext(ctx).
		Where(cond, arg).
		Take(&license).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &license, nil
}
