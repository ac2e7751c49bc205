package payment

import (
	"github.com/bitbonsai/license-server/internal/config"
	pricingdomain "github.com/bitbonsai/license-server/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.adapters",
	fx.Provide(newRegistry),
)

func newRegistry(cfg config.Config, pricing pricingdomain.Service, log *zap.Logger) *Registry {
	return NewRegistry(
		NewStripeAdapter(cfg.StripeWebhookSecret, pricing, log),
		NewPatreonAdapter(cfg.PatreonWebhookSecret, log),
		NewKofiAdapter(cfg.KofiVerificationToken, log),
	)
}
