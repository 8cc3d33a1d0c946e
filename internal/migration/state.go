package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	StatusInitializing = "initializing"
	StatusActive       = "active"
)

// BootstrapState is the single row recording which schema revision the
// database was last migrated to.
type BootstrapState struct {
	ID            bool       `gorm:"column:id;primaryKey"`
	Status        string     `gorm:"column:status;type:text;not null"`
	SchemaVersion string     `gorm:"column:schema_version;type:text;not null"`
	Checksum      *string    `gorm:"column:checksum;type:text"`
	ActivatedAt   *time.Time `gorm:"column:activated_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
}

func (BootstrapState) TableName() string { return "system_bootstrap_state" }

func activateBootstrapState(ctx context.Context, db *gorm.DB, schemaVersion string, checksum string) error {
	if db == nil {
		return errors.New("bootstrap state requires database handle")
	}

	version := strings.TrimSpace(schemaVersion)
	if version == "" {
		return errors.New("schema version is required for bootstrap state activation")
	}

	now := time.Now().UTC()
	state := BootstrapState{
		ID:            true,
		Status:        StatusActive,
		SchemaVersion: version,
		Checksum:      nullIfEmpty(checksum),
		ActivatedAt:   &now,
		CreatedAt:     now,
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "schema_version", "checksum", "activated_at"}),
	}).Create(&state).Error
	if err != nil {
		return fmt.Errorf("activate system bootstrap state: %w", err)
	}
	return nil
}

func nullIfEmpty(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
