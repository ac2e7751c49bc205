package main

import (
	"github.com/bitbonsai/license-server/internal/audit"
	"github.com/bitbonsai/license-server/internal/config"
	"github.com/bitbonsai/license-server/internal/donation"
	"github.com/bitbonsai/license-server/internal/keys"
	"github.com/bitbonsai/license-server/internal/license"
	"github.com/bitbonsai/license-server/internal/logger"
	"github.com/bitbonsai/license-server/internal/metrics"
	"github.com/bitbonsai/license-server/internal/migration"
	"github.com/bitbonsai/license-server/internal/pricing"
	"github.com/bitbonsai/license-server/internal/providers/email"
	"github.com/bitbonsai/license-server/internal/providers/payment"
	"github.com/bitbonsai/license-server/internal/ratelimit"
	"github.com/bitbonsai/license-server/internal/server"
	"github.com/bitbonsai/license-server/internal/webhook"
	"github.com/bitbonsai/license-server/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		keys.Module,

		// Functional domains
		license.Module,
		pricing.Module,
		webhook.Module,
		donation.Module,
		audit.Module,
		email.Module,
		payment.Module,
		ratelimit.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
