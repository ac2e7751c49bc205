package webhook

import (
	"github.com/bitbonsai/license-server/internal/webhook/repository"
	"github.com/bitbonsai/license-server/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
