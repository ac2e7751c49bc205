package license

import (
	"github.com/bitbonsai/license-server/internal/license/repository"
	"github.com/bitbonsai/license-server/internal/license/service"
	"go.uber.org/fx"
)

var Module = fx.Module("license.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
