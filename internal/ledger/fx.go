package ledger

import (
	"github.com/netprofile/netbill/internal/ledger/repository"
	"github.com/netprofile/netbill/internal/ledger/service"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

type metricsParams struct {
	fx.In

	Registerer prometheus.Registerer `optional:"true"`
}

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(p metricsParams) (*service.Metrics, error) {
		return service.NewMetrics(p.Registerer)
	}),
	fx.Provide(service.New),
)
