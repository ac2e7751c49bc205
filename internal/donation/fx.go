package donation

import (
	"github.com/bitbonsai/license-server/internal/donation/repository"
	"github.com/bitbonsai/license-server/internal/donation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("donation.service",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
