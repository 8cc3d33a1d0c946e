package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/netprofile/netbill/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewRegistry returns the registry every service registers its collectors on.
// Go runtime and process metrics stay on the default registry.
func NewRegistry() (*prometheus.Registry, error) {
	return prometheus.NewRegistry(), nil
}

// MetricsHandler serves the registry together with the default gatherer,
// which holds the runtime collectors and the gorm pool stats.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(prometheus.Gatherers{reg, prometheus.DefaultGatherer}, promhttp.HandlerOpts{})
}

func startMetricsServer(lc fx.Lifecycle, cfg config.Config, reg *prometheus.Registry, log *zap.Logger) {
	addr := cfg.Observability.MetricsAddr
	if addr == "" {
		return
	}
	log = log.Named("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics listener stopped", zap.Error(err))
				}
			}()
			log.Info("metrics listening", zap.String("addr", ln.Addr().String()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
