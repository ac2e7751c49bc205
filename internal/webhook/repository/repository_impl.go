package repository

import (
	"context"
	"errors"
	"time"

	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	webhookdomain "github.com/bitbonsai/license-server/internal/webhook/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() webhookdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *webhookdomain.Event) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, provider, provider_event_id, event_type, status, email, tier,
			provider_customer_id, raw_payload, license_id, error, created_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.Status,
		event.Email,
		event.Tier,
		event.ProviderCustomerID,
		event.RawPayload,
		event.LicenseID,
		event.Error,
		event.CreatedAt,
		event.ProcessedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*webhookdomain.Event, error) {
	var event webhookdomain.Event
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repo) FindByProviderEventID(ctx context.Context, db *gorm.DB, provider licensedomain.Provider, providerEventID string) (*webhookdomain.Event, error) {
	var event webhookdomain.Event
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, skip, take int) ([]webhookdomain.Event, error) {
	var events []webhookdomain.Event
	err := db.WithContext(ctx).
		Order("created_at DESC").
		Offset(skip).
		Limit(take).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&webhookdomain.Event{}).
		Count(&count).Error
	return count, err
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, licenseID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events SET status = ?, license_id = ?, error = NULL, processed_at = ? WHERE id = ?`,
		webhookdomain.StatusProcessed,
		licenseID,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, message string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events SET status = ?, error = ? WHERE id = ?`,
		webhookdomain.StatusFailed,
		message,
		id,
	).Error
}

func (r *repo) MarkPending(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events SET status = ?, error = NULL, processed_at = NULL WHERE id = ?`,
		webhookdomain.StatusPending,
		id,
	).Error
}
