package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, future *FuturePayment) error
	Update(ctx context.Context, db *gorm.DB, future *FuturePayment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FuturePayment, error)
	// ListActiveByStash returns active futures oldest first, ties broken by id.
	ListActiveByStash(ctx context.Context, db *gorm.DB, stashID snowflake.ID) ([]FuturePayment, error)
	ListByStash(ctx context.Context, db *gorm.DB, stashID snowflake.ID, state *State) ([]FuturePayment, error)
	// ListExpiredIDs returns active futures created at or before cutoff.
	ListExpiredIDs(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]snowflake.ID, error)

	InsertEvent(ctx context.Context, db *gorm.DB, event *Event) error
	ListEvents(ctx context.Context, db *gorm.DB, futureID snowflake.ID) ([]Event, error)
}
