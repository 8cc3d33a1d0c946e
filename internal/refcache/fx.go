package refcache

import (
	"context"

	"github.com/netprofile/netbill/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("refcache",
	fx.Provide(NewFromConfig),
	fx.Invoke(registerBroadcaster),
)

type Params struct {
	fx.In

	Config     config.Config
	Registerer prometheus.Registerer `optional:"true"`
}

func NewFromConfig(p Params) (*Cache, error) {
	hooks := MetricsHooks{}
	if p.Registerer != nil {
		lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netbill",
			Subsystem: "refcache",
			Name:      "lookups_total",
			Help:      "Reference cache lookups by table and result.",
		}, []string{"table", "result"})
		if err := p.Registerer.Register(lookups); err != nil {
			return nil, err
		}
		hooks.OnHit = func(table string) { lookups.WithLabelValues(table, "hit").Inc() }
		hooks.OnMiss = func(table string) { lookups.WithLabelValues(table, "miss").Inc() }
		hooks.OnEvict = func(table string) { lookups.WithLabelValues(table, "evict").Inc() }
	}
	return New(Options{
		TTL:        p.Config.Cache.TTL,
		MaxEntries: p.Config.Cache.MaxEntries,
	}, hooks), nil
}

type broadcasterParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Cache     *Cache
	Redis     *redis.Client `optional:"true"`
	Log       *zap.Logger
}

func registerBroadcaster(p broadcasterParams) {
	channel := p.Config.Cache.InvalidationChannel
	if p.Redis == nil || channel == "" {
		return
	}
	log := p.Log.Named("refcache")
	bus := NewRedisBroadcaster(p.Redis, channel, log)
	p.Cache.SetBroadcaster(bus)

	ctx, cancel := context.WithCancel(context.Background())
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := bus.Listen(ctx, p.Cache, nil); err != nil {
					log.Error("cache invalidation listener stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
