package futurepayment

import (
	futuredomain "github.com/netprofile/netbill/internal/futurepayment/domain"
	"github.com/netprofile/netbill/internal/futurepayment/repository"
	"github.com/netprofile/netbill/internal/futurepayment/service"
	ledgerdomain "github.com/netprofile/netbill/internal/ledger/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("futurepayment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(
		fx.Annotate(
			func(s futuredomain.Service) ledgerdomain.PostHook { return s },
			fx.ResultTags(`group:"ledger_post_hooks"`),
		),
	),
)
