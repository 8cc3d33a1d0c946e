package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertAccount(ctx context.Context, db *gorm.DB, account *AccessAccount) error
	FindAccount(ctx context.Context, db *gorm.DB, id snowflake.ID) (*AccessAccount, error)
	LockAccount(ctx context.Context, db *gorm.DB, id snowflake.ID) (*AccessAccount, error)
	// UpdateAccount writes account when its stored version still equals
	// account.Version, and bumps the version.
	UpdateAccount(ctx context.Context, db *gorm.DB, account *AccessAccount) error
	ListAccountsByEntity(ctx context.Context, db *gorm.DB, entityID snowflake.ID) ([]AccessAccount, error)
	// ListDueAccountIDs returns accounts needing a rollover at now: active
	// ones whose window ended and every blocked one.
	ListDueAccountIDs(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error)

	InsertEvent(ctx context.Context, db *gorm.DB, event *RatingEvent) error
	UpdateEvent(ctx context.Context, db *gorm.DB, event *RatingEvent) error
	FindEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*RatingEvent, error)
	FindEventByKey(ctx context.Context, db *gorm.DB, key string) (*RatingEvent, error)
	ListEvents(ctx context.Context, db *gorm.DB, filter EventFilter) ([]RatingEvent, error)
}

type EventFilter struct {
	AccountID *snowflake.ID
	Status    *EventStatus
	Limit     int
}
