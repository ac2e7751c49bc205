package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	"github.com/bitbonsai/license-server/internal/metrics"
	"github.com/bitbonsai/license-server/internal/providers/email"
	webhookdomain "github.com/bitbonsai/license-server/internal/webhook/domain"
	"github.com/bitbonsai/license-server/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     webhookdomain.Repository
	Licenses licensedomain.Service
	Email    email.Provider
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     webhookdomain.Repository
	licenses licensedomain.Service
	email    email.Provider
	metrics  *metrics.Metrics
}

func New(p Params) webhookdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("webhook.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		licenses: p.Licenses,
		email:    p.Email,
		metrics:  p.Metrics,
	}
}

func (s *Service) ProcessNewSubscription(ctx context.Context, req webhookdomain.NewSubscription) (webhookdomain.Result, error) {
	return s.process(ctx, processArgs{
		provider:           req.Provider,
		providerEventID:    req.ProviderEventID,
		eventType:          webhookdomain.EventSubscriptionCreated,
		email:              &req.Email,
		tier:               strPtr(string(req.Tier)),
		providerCustomerID: &req.ProviderCustomerID,
		rawPayload:         req.RawPayload,
	})
}

func (s *Service) ProcessUpgrade(ctx context.Context, req webhookdomain.Upgrade) (webhookdomain.Result, error) {
	return s.process(ctx, processArgs{
		provider:           req.Provider,
		providerEventID:    req.ProviderEventID,
		eventType:          webhookdomain.EventSubscriptionUpdated,
		tier:               strPtr(string(req.NewTier)),
		providerCustomerID: &req.ProviderCustomerID,
		rawPayload:         req.RawPayload,
	})
}

func (s *Service) ProcessCancellation(ctx context.Context, req webhookdomain.Cancellation) (webhookdomain.Result, error) {
	return s.process(ctx, processArgs{
		provider:           req.Provider,
		providerEventID:    req.ProviderEventID,
		eventType:          webhookdomain.EventSubscriptionCancelled,
		providerCustomerID: &req.ProviderCustomerID,
		rawPayload:         req.RawPayload,
	})
}

type processArgs struct {
	provider           licensedomain.Provider
	providerEventID    string
	eventType          webhookdomain.EventType
	email              *string
	tier               *string
	providerCustomerID *string
	rawPayload         []byte
}

// process is the shared idempotency wrapper: dedupe on the ledger, insert
// PENDING before any side effect, apply the mapped license operation,
// settle the ledger row exactly once. Ledger write failures propagate;
// engine failures become a FAILED row plus a structured result.
func (s *Service) process(ctx context.Context, args processArgs) (webhookdomain.Result, error) {
	existing, err := s.repo.FindByProviderEventID(ctx, s.db, args.provider, args.providerEventID)
	if err != nil {
		return webhookdomain.Result{}, fmt.Errorf("webhook ledger lookup: %w", err)
	}
	if existing != nil {
		s.log.Info("webhook event already recorded, skipping",
			zap.String("provider", string(args.provider)),
			zap.String("provider_event_id", args.providerEventID),
			zap.String("status", string(existing.Status)))
		return storedResult(existing), nil
	}

	event := &webhookdomain.Event{
		ID:                 s.genID.Generate(),
		Provider:           args.provider,
		ProviderEventID:    args.providerEventID,
		EventType:          args.eventType,
		Status:             webhookdomain.StatusPending,
		Email:              args.email,
		Tier:               args.tier,
		ProviderCustomerID: args.providerCustomerID,
		RawPayload:         args.rawPayload,
		CreatedAt:          time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, s.db, event); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Concurrent duplicate delivery: the other delivery won the
			// insert. Adopt its outcome instead of erroring.
			winner, ferr := s.repo.FindByProviderEventID(ctx, s.db, args.provider, args.providerEventID)
			if ferr != nil {
				return webhookdomain.Result{}, fmt.Errorf("webhook ledger re-read: %w", ferr)
			}
			if winner != nil {
				return storedResult(winner), nil
			}
		}
		return webhookdomain.Result{}, fmt.Errorf("webhook ledger insert: %w", err)
	}

	return s.apply(ctx, event), nil
}

// apply runs the license operation for a PENDING ledger row and settles it.
func (s *Service) apply(ctx context.Context, event *webhookdomain.Event) webhookdomain.Result {
	var (
		license *licensedomain.License
		err     error
	)

	switch event.EventType {
	case webhookdomain.EventSubscriptionCreated:
		license, err = s.applyCreate(ctx, event)
	case webhookdomain.EventSubscriptionUpdated:
		license, err = s.applyUpgrade(ctx, event)
	case webhookdomain.EventSubscriptionCancelled:
		license, err = s.applyCancellation(ctx, event)
	default:
		err = fmt.Errorf("unknown event type %q", event.EventType)
	}

	if err != nil {
		s.countEvent(event, "failed")
		message := err.Error()
		if markErr := s.repo.MarkFailed(ctx, s.db, event.ID, message); markErr != nil {
			s.log.Error("failed to record webhook failure",
				zap.String("id", event.ID.String()), zap.Error(markErr))
		}
		s.log.Error("webhook processing failed",
			zap.String("provider", string(event.Provider)),
			zap.String("provider_event_id", event.ProviderEventID),
			zap.Error(err))
		return webhookdomain.Result{Success: false, Error: publicError(err)}
	}

	if markErr := s.repo.MarkProcessed(ctx, s.db, event.ID, license.ID); markErr != nil {
		s.log.Error("failed to record webhook success",
			zap.String("id", event.ID.String()), zap.Error(markErr))
	}

	s.countEvent(event, "processed")
	id := license.ID
	return webhookdomain.Result{Success: true, LicenseID: &id}
}

func (s *Service) applyCreate(ctx context.Context, event *webhookdomain.Event) (*licensedomain.License, error) {
	tier, err := licensedomain.ParseTier(deref(event.Tier))
	if err != nil {
		return nil, err
	}

	license, err := s.licenses.CreateFromWebhook(ctx, licensedomain.WebhookCreateRequest{
		Email:              deref(event.Email),
		Tier:               tier,
		Provider:           event.Provider,
		ProviderCustomerID: deref(event.ProviderCustomerID),
	})
	if err != nil {
		return nil, err
	}

	s.sendLicenseEmail(license)
	s.countIssued(license)
	s.log.Info("license created via webhook",
		zap.String("id", license.ID.String()),
		zap.String("provider", string(event.Provider)))
	return license, nil
}

func (s *Service) applyUpgrade(ctx context.Context, event *webhookdomain.Event) (*licensedomain.License, error) {
	tier, err := licensedomain.ParseTier(deref(event.Tier))
	if err != nil {
		return nil, err
	}

	license, err := s.licenses.UpgradeFromWebhook(ctx, event.Provider, deref(event.ProviderCustomerID), tier)
	if err != nil {
		return nil, err
	}
	if license == nil {
		return nil, errLicenseNotFound
	}

	s.sendLicenseEmail(license)
	s.log.Info("license upgraded via webhook",
		zap.String("id", license.ID.String()),
		zap.String("tier", string(tier)),
		zap.String("provider", string(event.Provider)))
	return license, nil
}

func (s *Service) applyCancellation(ctx context.Context, event *webhookdomain.Event) (*licensedomain.License, error) {
	license, err := s.licenses.FindByProviderCustomerID(ctx, event.Provider, deref(event.ProviderCustomerID))
	if err != nil {
		return nil, err
	}
	if license == nil {
		return nil, errLicenseNotFound
	}

	revoked, err := s.licenses.Revoke(ctx, license.ID, fmt.Sprintf("Subscription cancelled via %s", event.Provider))
	if err != nil {
		return nil, err
	}

	s.log.Info("license revoked via webhook",
		zap.String("id", license.ID.String()),
		zap.String("provider", string(event.Provider)))
	return revoked, nil
}

func (s *Service) ListEvents(ctx context.Context, skip, take int) ([]webhookdomain.Event, error) {
	if take <= 0 {
		take = 20
	}
	if take > 100 {
		take = 100
	}
	if skip < 0 {
		skip = 0
	}
	return s.repo.List(ctx, s.db, skip, take)
}

func (s *Service) CountEvents(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx, s.db)
}

// Replay re-queues a terminally FAILED event and re-runs it. This is the
// manual escape hatch for events that failed permanently because a related
// event arrived out of order (e.g. an upgrade delivered before its create).
func (s *Service) Replay(ctx context.Context, id snowflake.ID) (webhookdomain.Result, error) {
	event, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return webhookdomain.Result{}, err
	}
	if event == nil {
		return webhookdomain.Result{}, webhookdomain.ErrEventNotFound
	}
	if event.Status != webhookdomain.StatusFailed {
		return webhookdomain.Result{}, webhookdomain.ErrEventNotReplayable
	}

	if err := s.repo.MarkPending(ctx, s.db, event.ID); err != nil {
		return webhookdomain.Result{}, fmt.Errorf("reset webhook event: %w", err)
	}

	s.log.Info("replaying webhook event",
		zap.String("id", event.ID.String()),
		zap.String("provider", string(event.Provider)),
		zap.String("provider_event_id", event.ProviderEventID))
	return s.apply(ctx, event), nil
}

// sendLicenseEmail fires the delivery mail without awaiting it. Email
// failures must never fail the webhook: the license is already durable.
func (s *Service) sendLicenseEmail(license *licensedomain.License) {
	msg := email.LicenseEmail{
		Email:             license.Email,
		Key:               license.Key,
		Tier:              string(license.Tier),
		MaxNodes:          license.MaxNodes,
		MaxConcurrentJobs: license.MaxConcurrentJobs,
		ExpiresAt:         license.ExpiresAt,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.email.SendLicenseEmail(ctx, msg); err != nil {
			s.log.Error("failed to send license email",
				zap.String("email", msg.Email), zap.Error(err))
		}
	}()
}

func (s *Service) countEvent(event *webhookdomain.Event, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.WebhookEvents.WithLabelValues(
		string(event.Provider), string(event.EventType), result).Inc()
}

func (s *Service) countIssued(license *licensedomain.License) {
	if s.metrics == nil {
		return
	}
	s.metrics.LicensesIssued.WithLabelValues(
		string(license.Tier), string(license.Provider)).Inc()
}

var errLicenseNotFound = errors.New("License not found")

// publicError maps internal failures onto the strings providers see.
func publicError(err error) string {
	if errors.Is(err, errLicenseNotFound) {
		return "License not found for customer"
	}
	return err.Error()
}

func storedResult(event *webhookdomain.Event) webhookdomain.Result {
	result := webhookdomain.Result{
		Success:   event.Status == webhookdomain.StatusProcessed,
		LicenseID: event.LicenseID,
	}
	if event.Error != nil {
		result.Error = *event.Error
	}
	return result
}

func strPtr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
