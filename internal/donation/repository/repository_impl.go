package repository

import (
	"context"
	"errors"

	donationdomain "github.com/bitbonsai/license-server/internal/donation/domain"
	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() donationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, donation *donationdomain.Donation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO donations (
			id, email, donor_name, amount_cents, provider, provider_event_id,
			status, raw_payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		donation.ID,
		donation.Email,
		donation.DonorName,
		donation.AmountCents,
		donation.Provider,
		donation.ProviderEventID,
		donation.Status,
		donation.RawPayload,
		donation.CreatedAt,
	).Error
}

func (r *repo) FindByProviderEventID(ctx context.Context, db *gorm.DB, provider licensedomain.Provider, providerEventID string) (*donationdomain.Donation, error) {
	var donation donationdomain.Donation
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		Take(&donation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &donation, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, skip, take int) ([]donationdomain.Donation, error) {
	var donations []donationdomain.Donation
	err := db.WithContext(ctx).
		Order("created_at DESC").
		Offset(skip).
		Limit(take).
		Find(&donations).Error
	if err != nil {
		return nil, err
	}
	return donations, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&donationdomain.Donation{}).
		Count(&count).Error
	return count, err
}
