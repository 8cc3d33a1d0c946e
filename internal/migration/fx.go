package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/netprofile/netbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module runs migrations once during application start.
var Module = fx.Module("migrations",
	fx.Invoke(func(lc fx.Lifecycle, conn *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return RunMigrations(ctx, conn, cfg, node, log.Named("migration"))
			},
		})
	}),
)
