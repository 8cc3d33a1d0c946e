package quota

import (
	"github.com/netprofile/netbill/internal/quota/domain"
	"github.com/netprofile/netbill/internal/quota/service"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(
		domain.LoadFromEnv,
		service.NewService,
	),
)
