package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrInvalidAction = errors.New("invalid_action")

// AuditLog records one admin or system mutation. Writes are best effort:
// callers log failures and move on rather than failing the mutation.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"column:id;primaryKey" json:"id,string"`
	ActorType  string            `gorm:"column:actor_type" json:"actor_type"`
	ActorID    *string           `gorm:"column:actor_id" json:"actor_id,omitempty"`
	Action     string            `gorm:"column:action;index" json:"action"`
	TargetType string            `gorm:"column:target_type" json:"target_type"`
	TargetID   *string           `gorm:"column:target_id" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	IPAddress  *string           `gorm:"column:ip_address" json:"ip_address,omitempty"`
	UserAgent  *string           `gorm:"column:user_agent" json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"column:created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

const (
	ActorAdmin  = "admin"
	ActorSystem = "system"
)

type RecordRequest struct {
	ActorType  string
	ActorID    *string
	Action     string
	TargetType string
	TargetID   *string
	Metadata   map[string]any
	IPAddress  string
	UserAgent  string
}

type ListFilter struct {
	Action     string
	TargetType string
	Skip       int
	Take       int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
	Count(ctx context.Context, db *gorm.DB, filter ListFilter) (int64, error)
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) error
	List(ctx context.Context, filter ListFilter) ([]AuditLog, int64, error)
}
