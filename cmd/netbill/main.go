package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/netprofile/netbill/internal/bootstrap"
	"github.com/netprofile/netbill/internal/clock"
	"github.com/netprofile/netbill/internal/config"
	"github.com/netprofile/netbill/internal/futurepayment"
	"github.com/netprofile/netbill/internal/ledger"
	"github.com/netprofile/netbill/internal/migration"
	"github.com/netprofile/netbill/internal/observability"
	"github.com/netprofile/netbill/internal/quota"
	"github.com/netprofile/netbill/internal/rate"
	"github.com/netprofile/netbill/internal/rating"
	"github.com/netprofile/netbill/internal/redis"
	"github.com/netprofile/netbill/internal/refcache"
	"github.com/netprofile/netbill/internal/scheduler"
	"github.com/netprofile/netbill/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "netbill",
		Short:         "NetBill accounting engine",
		Version:       readVersionFromEnv(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newSchedulerCmd(), newSweepCmd(), newVersionCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations, seed system data and activate the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	}
}

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the futures poll and quota rollover jobs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx.New(engineOptions(fx.Invoke(startScheduler))...).Run()
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	var at string
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Run one scheduler job once and exit",
	}
	sweep.PersistentFlags().StringVar(&at, "at", "", "evaluate the sweep at this RFC3339 instant instead of now")

	for _, job := range []struct{ use, name, short string }{
		{"futures", scheduler.JobFuturesPoll, "Cancel expired future payments"},
		{"rating", scheduler.JobRatingRollover, "Roll quota periods of due access accounts"},
	} {
		sweep.AddCommand(&cobra.Command{
			Use:   job.use,
			Short: job.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSweep(cmd.Context(), job.name, at)
			},
		})
	}
	return sweep
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the binary and embedded schema versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := migration.Schema()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "netbill %s (schema %d, checksum %s)\n", readVersionFromEnv(), schema.Version, schema.Checksum[:12])
			return nil
		},
	}
}

func runMigrate(ctx context.Context) error {
	app := fx.New(
		fx.WithLogger(fxLogger),
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		migration.Module,
	)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	return app.Stop(context.Background())
}

func runSweep(ctx context.Context, job, at string) error {
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		ctx = clock.WithSimulatedTime(ctx, t)
	}

	var s *scheduler.Scheduler
	app := fx.New(engineOptions(fx.Populate(&s))...)

	startCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		_ = app.Stop(context.Background())
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.RunOnce(ctx, job)
}

// engineOptions wires every engine module behind the schema gate.
func engineOptions(extra ...fx.Option) []fx.Option {
	return append([]fx.Option{
		fx.WithLogger(fxLogger),
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		redis.Module,
		bootstrap.Module,
		refcache.Module,
		rate.Module,
		ledger.Module,
		futurepayment.Module,
		quota.Module,
		rating.Module,
		scheduler.Module,
	}, extra...)
}

func fxLogger(log *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: log.Named("fx")}
}

func registerSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}

func startScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
