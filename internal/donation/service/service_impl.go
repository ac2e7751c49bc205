package service

import (
	"context"
	"fmt"
	"time"

	donationdomain "github.com/bitbonsai/license-server/internal/donation/domain"
	"github.com/bitbonsai/license-server/internal/providers/email"
	"github.com/bitbonsai/license-server/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  donationdomain.Repository
	Email email.Provider
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  donationdomain.Repository
	email email.Provider
}

func New(p Params) donationdomain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("donation.service"),
		genID: p.GenID,
		repo:  p.Repo,
		email: p.Email,
	}
}

func (s *service) Record(ctx context.Context, req donationdomain.RecordRequest) (*donationdomain.Donation, error) {
	existing, err := s.repo.FindByProviderEventID(ctx, s.db, req.Provider, req.ProviderEventID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.log.Info("duplicate donation delivery",
			zap.String("provider", string(req.Provider)),
			zap.String("provider_event_id", req.ProviderEventID),
		)
		return existing, nil
	}

	donation := &donationdomain.Donation{
		ID:              s.genID.Generate(),
		Email:           req.Email,
		DonorName:       req.DonorName,
		AmountCents:     req.AmountCents,
		Provider:        req.Provider,
		ProviderEventID: req.ProviderEventID,
		Status:          donationdomain.StatusPending,
		RawPayload:      req.RawPayload,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, s.db, donation); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.repo.FindByProviderEventID(ctx, s.db, req.Provider, req.ProviderEventID)
		}
		return nil, err
	}

	s.log.Info("donation recorded",
		zap.String("provider", string(req.Provider)),
		zap.String("email", req.Email),
		zap.Int64("amount_cents", req.AmountCents),
	)

	go s.sendThankYou(donation)
	return donation, nil
}

func (s *service) FindAll(ctx context.Context, skip, take int) ([]donationdomain.Donation, int64, error) {
	if take <= 0 {
		take = 20
	}
	if take > 100 {
		take = 100
	}
	if skip < 0 {
		skip = 0
	}

	donations, err := s.repo.List(ctx, s.db, skip, take)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.Count(ctx, s.db)
	if err != nil {
		return nil, 0, err
	}
	return donations, count, nil
}

func (s *service) sendThankYou(donation *donationdomain.Donation) {
	if donation.Email == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name := donation.DonorName
	if name == "" {
		name = "there"
	}
	body := fmt.Sprintf(`
		<h2>Thank you for supporting BitBonsai!</h2>
		<p>Hi %s,</p>
		<p>We received your donation of $%.2f. Your support helps us continue developing BitBonsai!</p>
		<p>Donations do not include a license. If you'd like to purchase a license, please visit our <a href="https://bitbonsai.io/pricing">pricing page</a>.</p>
		<p>Thank you again for your generosity!</p>
		<p>- The BitBonsai Team</p>
	`, name, float64(donation.AmountCents)/100)

	if err := s.email.Send(ctx, donation.Email, "Thank you for your donation!", body); err != nil {
		s.log.Error("failed to send donation thank-you email",
			zap.String("email", donation.Email),
			zap.Error(err),
		)
	}
}
