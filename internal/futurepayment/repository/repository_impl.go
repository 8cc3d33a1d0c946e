package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	futuredomain "github.com/netprofile/netbill/internal/futurepayment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() futuredomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, future *futuredomain.FuturePayment) error {
	return db.WithContext(ctx).Create(future).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, future *futuredomain.FuturePayment) error {
	return db.WithContext(ctx).Save(future).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*futuredomain.FuturePayment, error) {
	var future futuredomain.FuturePayment
	err := db.WithContext(ctx).Where("id = ?", id).First(&future).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &future, nil
}

func (r *repo) ListActiveByStash(ctx context.Context, db *gorm.DB, stashID snowflake.ID) ([]futuredomain.FuturePayment, error) {
	var futures []futuredomain.FuturePayment
	err := db.WithContext(ctx).
		Where("stash_id = ? AND state = ?", stashID, futuredomain.StateActive).
		Order("ctime ASC").
		Order("id ASC").
		Find(&futures).Error
	return futures, err
}

func (r *repo) ListByStash(ctx context.Context, db *gorm.DB, stashID snowflake.ID, state *futuredomain.State) ([]futuredomain.FuturePayment, error) {
	q := db.WithContext(ctx).Where("stash_id = ?", stashID)
	if state != nil {
		q = q.Where("state = ?", *state)
	}
	var futures []futuredomain.FuturePayment
	err := q.Order("ctime DESC").Order("id DESC").Find(&futures).Error
	return futures, err
}

func (r *repo) ListExpiredIDs(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]snowflake.ID, error) {
	q := db.WithContext(ctx).
		Model(&futuredomain.FuturePayment{}).
		Where("state = ? AND ctime <= ?", futuredomain.StateActive, cutoff).
		Order("ctime ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ids []snowflake.ID
	err := q.Pluck("id", &ids).Error
	return ids, err
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *futuredomain.Event) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, futureID snowflake.ID) ([]futuredomain.Event, error) {
	var events []futuredomain.Event
	err := db.WithContext(ctx).
		Where("future_id = ?", futureID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&events).Error
	return events, err
}
