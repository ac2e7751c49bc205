package pricing

import (
	"github.com/bitbonsai/license-server/internal/config"
	"github.com/bitbonsai/license-server/internal/pricing/repository"
	"github.com/bitbonsai/license-server/internal/pricing/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("pricing.service",
	fx.Provide(repository.Provide),
	fx.Provide(newFallbackHolder),
	fx.Provide(service.New),
)

func newFallbackHolder(cfg config.Config, log *zap.Logger) (*service.FallbackHolder, error) {
	return service.NewFallbackHolder(cfg.PricingConfigDir, log.Named("pricing.fallback"))
}
