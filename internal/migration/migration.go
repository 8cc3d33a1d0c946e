package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/netprofile/netbill/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RunMigrations brings the schema up to date, seeds the system currency and
// StashIO types, and activates the bootstrap state. PostgreSQL applies the
// embedded SQL files under an advisory lock; other drivers auto-migrate.
func RunMigrations(ctx context.Context, db *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	schema, err := Schema()
	if err != nil {
		return err
	}

	switch cfg.Database.Driver {
	case "postgres":
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := migratePostgres(ctx, sqlDB, schema.Version); err != nil {
			return err
		}
	default:
		if err := AutoMigrate(db.WithContext(ctx)); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}
	log.Info("schema migrated", zap.String("driver", cfg.Database.Driver), zap.Uint("version", schema.Version))

	if err := SeedSystem(ctx, db, node, cfg.Ledger); err != nil {
		return err
	}

	return activateBootstrapState(ctx, db, schema.VersionString(), schema.Checksum)
}

func migratePostgres(ctx context.Context, db *sql.DB, latestVersion uint) error {
	unlock, err := acquireAdvisoryLock(ctx, db)
	if err != nil {
		return err
	}
	defer func() {
		_ = unlock(context.Background())
	}()

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if _, err := ensureNotDirty(migrator); err != nil {
		return err
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}

	currentVersion, err := ensureNotDirty(migrator)
	if err != nil {
		return err
	}
	if currentVersion != latestVersion {
		return fmt.Errorf("schema version mismatch after migrate: got %d want %d", currentVersion, latestVersion)
	}
	return nil
}

func ensureNotDirty(migrator *migrate.Migrate) (uint, error) {
	if migrator == nil {
		return 0, errors.New("migrator is required")
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, nil
		}
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("database migrations are dirty at version %d", version)
	}
	return version, nil
}
