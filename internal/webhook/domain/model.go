// Package domain contains the webhook event ledger and the reconciler
// contract. The ledger is the sole idempotency mechanism for provider
// deliveries: (provider, provider_event_id) is unique and an event reaches
// a terminal status exactly once.
package domain

import (
	"context"
	"errors"
	"time"

	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrEventNotFound      = errors.New("webhook_event_not_found")
	ErrEventNotReplayable = errors.New("webhook_event_not_replayable")
)

type EventType string

const (
	EventSubscriptionCreated   EventType = "SUBSCRIPTION_CREATED"
	EventSubscriptionUpdated   EventType = "SUBSCRIPTION_UPDATED"
	EventSubscriptionCancelled EventType = "SUBSCRIPTION_CANCELLED"
)

type EventStatus string

const (
	StatusPending   EventStatus = "PENDING"
	StatusProcessed EventStatus = "PROCESSED"
	StatusFailed    EventStatus = "FAILED"
)

// Event is one row of the idempotency ledger. RawPayload is the provider's
// original body, stored verbatim for audit and replay. The normalized
// fields (email, tier, customer id) are denormalized here so a FAILED event
// can be replayed without re-parsing provider formats.
type Event struct {
	ID                 snowflake.ID           `json:"id" gorm:"primaryKey"`
	Provider           licensedomain.Provider `json:"provider" gorm:"type:text;not null;uniqueIndex:idx_webhook_events_provider_event,priority:1"`
	ProviderEventID    string                 `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:idx_webhook_events_provider_event,priority:2"`
	EventType          EventType              `json:"event_type" gorm:"type:text;not null"`
	Status             EventStatus            `json:"status" gorm:"type:text;not null;default:PENDING"`
	Email              *string                `json:"email" gorm:"type:text"`
	Tier               *string                `json:"tier" gorm:"type:text"`
	ProviderCustomerID *string                `json:"provider_customer_id" gorm:"type:text"`
	RawPayload         datatypes.JSON         `json:"raw_payload" gorm:"type:jsonb"`
	LicenseID          *snowflake.ID          `json:"license_id"`
	Error              *string                `json:"error" gorm:"type:text"`
	CreatedAt          time.Time              `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	ProcessedAt        *time.Time             `json:"processed_at"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "webhook_events" }

// Result is the structured outcome returned to the transport layer. Engine
// failures are captured here, never propagated as errors.
type Result struct {
	Success   bool          `json:"success"`
	LicenseID *snowflake.ID `json:"license_id,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// NewSubscription is a provider-normalized subscription-created event.
type NewSubscription struct {
	Provider           licensedomain.Provider
	ProviderEventID    string
	Email              string
	Tier               licensedomain.Tier
	ProviderCustomerID string
	RawPayload         []byte
}

// Upgrade is a provider-normalized tier-change event. Limits are always
// re-derived from NewTier, never diffed.
type Upgrade struct {
	Provider           licensedomain.Provider
	ProviderEventID    string
	ProviderCustomerID string
	NewTier            licensedomain.Tier
	RawPayload         []byte
}

// Cancellation is a provider-normalized subscription-ended event.
type Cancellation struct {
	Provider           licensedomain.Provider
	ProviderEventID    string
	ProviderCustomerID string
	RawPayload         []byte
}

type Service interface {
	ProcessNewSubscription(ctx context.Context, req NewSubscription) (Result, error)
	ProcessUpgrade(ctx context.Context, req Upgrade) (Result, error)
	ProcessCancellation(ctx context.Context, req Cancellation) (Result, error)

	ListEvents(ctx context.Context, skip, take int) ([]Event, error)
	CountEvents(ctx context.Context) (int64, error)

	// Replay re-runs a terminally FAILED event from its stored normalized
	// fields. Events in any other status are rejected.
	Replay(ctx context.Context, id snowflake.ID) (Result, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *Event) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Event, error)
	FindByProviderEventID(ctx context.Context, db *gorm.DB, provider licensedomain.Provider, providerEventID string) (*Event, error)
	List(ctx context.Context, db *gorm.DB, skip, take int) ([]Event, error)
	Count(ctx context.Context, db *gorm.DB) (int64, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, licenseID snowflake.ID) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, message string) error
	MarkPending(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
