package migration

import (
	auditdomain "github.com/bitbonsai/license-server/internal/audit/domain"
	"github.com/bitbonsai/license-server/internal/config"
	donationdomain "github.com/bitbonsai/license-server/internal/donation/domain"
	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	pricingdomain "github.com/bitbonsai/license-server/internal/pricing/domain"
	webhookdomain "github.com/bitbonsai/license-server/internal/webhook/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned SQL migrations target postgres. Other dialects (sqlite
		// for local hacking, mysql) get the gorm-derived schema instead.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&licensedomain.License{},
				&webhookdomain.Event{},
				&pricingdomain.PricingTier{},
				&donationdomain.Donation{},
				&auditdomain.AuditLog{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
