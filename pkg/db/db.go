// Package db opens the gorm handle for the configured driver and attaches
// the tracing and pool metrics plugins.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/netprofile/netbill/internal/config"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormprom "gorm.io/plugin/prometheus"
)

var ErrUnsupportedDriver = errors.New("unsupported_database_driver")

var Module = fx.Module("db",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle      fx.Lifecycle
	Config         config.Config
	Log            *zap.Logger
	TracerProvider trace.TracerProvider `optional:"true"`
}

// New opens the database and closes the pool when the app stops.
func New(p Params) (*gorm.DB, error) {
	conn, err := Open(p.Config.Database, p.Log.Named("db"), p.TracerProvider)
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return conn, nil
}

// Open connects with the given settings. A nil tracer provider falls back to
// the global one.
func Open(cfg config.DatabaseConfig, log *zap.Logger, tp trace.TracerProvider) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(zap.NewStdLog(log), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if cfg.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName(cfg.Driver), otelgorm.WithoutQueryVariables()}
		if tp != nil {
			opts = append(opts, otelgorm.WithTracerProvider(tp))
		}
		if err := conn.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return nil, fmt.Errorf("otelgorm plugin: %w", err)
		}
	}

	if cfg.Metrics {
		if err := conn.Use(gormprom.New(gormprom.Config{
			DBName:          "netbill",
			RefreshInterval: 15,
		})); err != nil {
			return nil, fmt.Errorf("prometheus plugin: %w", err)
		}
	}

	return conn, nil
}

func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.URL), nil
	case "mysql":
		return mysql.Open(cfg.URL), nil
	case "sqlite":
		return sqlite.Open(cfg.URL), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}
