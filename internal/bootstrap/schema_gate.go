// Package bootstrap keeps engine processes from starting against a database
// that `netbill migrate` has not brought to the embedded schema.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/netprofile/netbill/internal/migration"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrSchemaNotMigrated      = errors.New("schema_not_migrated")
	ErrSchemaInitializing     = errors.New("schema_migration_in_progress")
	ErrSchemaBehind           = errors.New("schema_older_than_binary")
	ErrSchemaAhead            = errors.New("schema_newer_than_binary")
	ErrSchemaChecksumMismatch = errors.New("schema_checksum_mismatch")
)

type GateParams struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// SchemaGate compares the stored bootstrap state with the migrations
// embedded in this binary.
type SchemaGate struct {
	db     *gorm.DB
	log    *zap.Logger
	schema migration.SchemaInfo
}

func NewSchemaGate(p GateParams) (*SchemaGate, error) {
	if p.DB == nil {
		return nil, errors.New("schema gate requires database handle")
	}
	schema, err := migration.Schema()
	if err != nil {
		return nil, err
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &SchemaGate{db: p.DB, log: log.Named("bootstrap"), schema: schema}, nil
}

// Check returns the bootstrap state when it matches the embedded schema.
// A database migrated by a newer build is refused as well as an older one;
// a blank stored checksum is accepted for databases seeded by hand.
func (g *SchemaGate) Check(ctx context.Context) (*migration.BootstrapState, error) {
	state, err := g.load(ctx)
	if err != nil {
		return nil, err
	}
	if state.Status != migration.StatusActive {
		return state, fmt.Errorf("%w: status %q", ErrSchemaInitializing, state.Status)
	}

	stored, err := strconv.ParseUint(state.SchemaVersion, 10, 64)
	if err != nil {
		return state, fmt.Errorf("%w: unreadable version %q", ErrSchemaBehind, state.SchemaVersion)
	}
	switch want := uint64(g.schema.Version); {
	case stored < want:
		return state, fmt.Errorf("%w: database at %d, binary expects %d; run netbill migrate", ErrSchemaBehind, stored, want)
	case stored > want:
		return state, fmt.Errorf("%w: database at %d, binary expects %d", ErrSchemaAhead, stored, want)
	}

	if state.Checksum != nil && *state.Checksum != "" && *state.Checksum != g.schema.Checksum {
		return state, fmt.Errorf("%w: database %s, binary %s", ErrSchemaChecksumMismatch, *state.Checksum, g.schema.Checksum)
	}
	return state, nil
}

func (g *SchemaGate) load(ctx context.Context) (*migration.BootstrapState, error) {
	var state migration.BootstrapState
	res := g.db.WithContext(ctx).Where("id = ?", true).Limit(1).Find(&state)
	if res.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaNotMigrated, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrSchemaNotMigrated
	}

	state.Status = strings.ToLower(strings.TrimSpace(state.Status))
	state.SchemaVersion = strings.TrimSpace(state.SchemaVersion)
	if state.Checksum != nil {
		trimmed := strings.TrimSpace(*state.Checksum)
		state.Checksum = &trimmed
	}
	return &state, nil
}

// guardStartup fails application start when Check does.
func guardStartup(lc fx.Lifecycle, gate *SchemaGate) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			state, err := gate.Check(ctx)
			if err != nil {
				gate.log.Error("refusing to start against this database", zap.Error(err))
				return err
			}
			gate.log.Info("schema verified",
				zap.String("version", state.SchemaVersion),
				zap.Timep("activated_at", state.ActivatedAt),
			)
			return nil
		},
	})
}
