package keys

import (
	"github.com/bitbonsai/license-server/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("keys",
	fx.Provide(NewFromConfig),
)

// NewFromConfig opens the keypair at the configured directory. Failure is
// fatal: the process cannot serve license operations without its keys.
func NewFromConfig(cfg config.Config, log *zap.Logger) (*Manager, error) {
	return Open(cfg.LicenseKeysDir, log.Named("keys"))
}
