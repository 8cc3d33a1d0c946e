package rating

import (
	"github.com/netprofile/netbill/internal/rating/repository"
	"github.com/netprofile/netbill/internal/rating/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rating.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
