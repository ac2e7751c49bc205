package service

import (
	"context"
	"strings"
	"time"

	auditdomain "github.com/bitbonsai/license-server/internal/audit/domain"
	"github.com/bitbonsai/license-server/internal/audit/masking"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, req auditdomain.RecordRequest) error {
	action := strings.TrimSpace(req.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	actorType := strings.TrimSpace(req.ActorType)
	if actorType == "" {
		actorType = auditdomain.ActorSystem
	}
	targetType := strings.TrimSpace(req.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := map[string]any{}
	for key, value := range req.Metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}
	// Secrets never land in the audit trail in the clear.
	if secret, ok := payload["api_key"].(string); ok {
		payload["api_key"] = masking.MaskSecret(secret)
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  actorType,
		ActorID:    req.ActorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   req.TargetID,
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  time.Now().UTC(),
	}
	if ip := strings.TrimSpace(req.IPAddress); ip != "" {
		entry.IPAddress = &ip
	}
	if userAgent := strings.TrimSpace(req.UserAgent); userAgent != "" {
		entry.UserAgent = &userAgent
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, filter auditdomain.ListFilter) ([]auditdomain.AuditLog, int64, error) {
	if filter.Take <= 0 {
		filter.Take = 20
	}
	if filter.Take > 100 {
		filter.Take = 100
	}
	if filter.Skip < 0 {
		filter.Skip = 0
	}

	logs, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.Count(ctx, s.db, filter)
	if err != nil {
		return nil, 0, err
	}
	return logs, count, nil
}
