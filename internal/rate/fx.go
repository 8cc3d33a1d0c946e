package rate

import (
	"github.com/netprofile/netbill/internal/rate/repository"
	"github.com/netprofile/netbill/internal/rate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
