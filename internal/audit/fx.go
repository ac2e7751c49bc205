package audit

import (
	"github.com/bitbonsai/license-server/internal/audit/repository"
	"github.com/bitbonsai/license-server/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
