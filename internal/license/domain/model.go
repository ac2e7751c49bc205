// Package domain contains the license model, entitlement tiers and the
// contracts between the license engine, its store and its callers.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status represents lifecycle states for a license. REVOKED is terminal.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusRevoked Status = "REVOKED"
)

// Provider identifies where a license originated.
type Provider string

const (
	ProviderManual  Provider = "MANUAL"
	ProviderStripe  Provider = "STRIPE"
	ProviderPatreon Provider = "PATREON"
	ProviderKofi    Provider = "KOFI"
)

// License is the persisted record backing an issued token.
type License struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	Key               string       `json:"key" gorm:"type:text;not null;uniqueIndex"`
	Email             string       `json:"email" gorm:"type:text;not null;index"`
	Tier              Tier         `json:"tier" gorm:"type:text;not null"`
	MaxNodes          int          `json:"max_nodes" gorm:"not null"`
	MaxConcurrentJobs int          `json:"max_concurrent_jobs" gorm:"not null"`
	ExpiresAt         *time.Time   `json:"expires_at"`
	Status            Status       `json:"status" gorm:"type:text;not null;default:ACTIVE"`
	Provider          Provider     `json:"provider" gorm:"type:text;not null;default:MANUAL"`
	ProviderCustomerID *string     `json:"provider_customer_id" gorm:"type:text;index:idx_licenses_provider_customer"`
	ProviderEmail      *string     `json:"provider_email" gorm:"type:text"`
	RevokedAt          *time.Time  `json:"revoked_at"`
	RevokedReason      *string     `json:"revoked_reason" gorm:"type:text"`
	CreatedAt          time.Time   `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time   `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (License) TableName() string { return "licenses" }

// Payload is the signed content of a token. It is immutable once signed;
// any change requires minting a new token. Field order is the canonical
// serialization order and must not change.
type Payload struct {
	Email             string     `json:"email"`
	Tier              Tier       `json:"tier"`
	MaxNodes          int        `json:"maxNodes"`
	MaxConcurrentJobs int        `json:"maxConcurrentJobs"`
	ExpiresAt         *time.Time `json:"expiresAt"`
	IssuedAt          time.Time  `json:"issuedAt"`
}
