package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusReviewed Status = "REVIEWED"
)

var ErrDonationNotFound = errors.New("donation_not_found")

// Donation records a one-off supporter payment. Donations never mint a
// license; they exist for admin review and the thank-you mail.
type Donation struct {
	ID              snowflake.ID           `gorm:"column:id;primaryKey" json:"id,string"`
	Email           string                 `gorm:"column:email" json:"email"`
	DonorName       string                 `gorm:"column:donor_name" json:"donor_name"`
	AmountCents     int64                  `gorm:"column:amount_cents" json:"amount_cents"`
	Provider        licensedomain.Provider `gorm:"column:provider;uniqueIndex:idx_donations_provider_event" json:"provider"`
	ProviderEventID string                 `gorm:"column:provider_event_id;uniqueIndex:idx_donations_provider_event" json:"provider_event_id"`
	Status          Status                 `gorm:"column:status" json:"status"`
	RawPayload      datatypes.JSON         `gorm:"column:raw_payload" json:"-"`
	CreatedAt       time.Time              `gorm:"column:created_at" json:"created_at"`
}

func (Donation) TableName() string {
	return "donations"
}

type RecordRequest struct {
	Email           string
	DonorName       string
	AmountCents     int64
	Provider        licensedomain.Provider
	ProviderEventID string
	RawPayload      []byte
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, donation *Donation) error
	FindByProviderEventID(ctx context.Context, db *gorm.DB, provider licensedomain.Provider, providerEventID string) (*Donation, error)
	List(ctx context.Context, db *gorm.DB, skip, take int) ([]Donation, error)
	Count(ctx context.Context, db *gorm.DB) (int64, error)
}

type Service interface {
	// Record stores the donation and sends the thank-you mail. A redelivered
	// event returns the stored donation without a second mail.
	Record(ctx context.Context, req RecordRequest) (*Donation, error)
	FindAll(ctx context.Context, skip, take int) ([]Donation, int64, error)
}
