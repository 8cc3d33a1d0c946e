package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/netprofile/netbill/internal/ledger/domain"
	ratingdomain "github.com/netprofile/netbill/internal/rating/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() ratingdomain.Repository {
	return &repo{}
}

func (r *repo) InsertAccount(ctx context.Context, db *gorm.DB, account *ratingdomain.AccessAccount) error {
	return db.WithContext(ctx).Create(account).Error
}

func (r *repo) FindAccount(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ratingdomain.AccessAccount, error) {
	var account ratingdomain.AccessAccount
	return first(db.WithContext(ctx).Where("id = ?", id), &account)
}

func (r *repo) LockAccount(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ratingdomain.AccessAccount, error) {
	var account ratingdomain.AccessAccount
	q := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id)
	return first(q, &account)
}

func (r *repo) UpdateAccount(ctx context.Context, db *gorm.DB, account *ratingdomain.AccessAccount) error {
	res := db.WithContext(ctx).
		Model(&ratingdomain.AccessAccount{}).
		Where("id = ? AND version = ?", account.ID, account.Version).
		Updates(map[string]any{
			"state":           account.State,
			"qpstart":         account.QuotaPeriodStart,
			"qpend":           account.QuotaPeriodEnd,
			"ut_ingress":      account.UsedIngress,
			"ut_egress":       account.UsedEgress,
			"u_sec":           account.UsedSeconds,
			"blocked_periods": account.BlockedPeriods,
			"version":         account.Version + 1,
			"updated_at":      account.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ledgerdomain.ErrConcurrencyConflict
	}
	account.Version++
	return nil
}

func (r *repo) ListAccountsByEntity(ctx context.Context, db *gorm.DB, entityID snowflake.ID) ([]ratingdomain.AccessAccount, error) {
	var accounts []ratingdomain.AccessAccount
	err := db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("id ASC").
		Find(&accounts).Error
	return accounts, err
}

func (r *repo) ListDueAccountIDs(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
	q := db.WithContext(ctx).
		Model(&ratingdomain.AccessAccount{}).
		Where("(state = ? AND qpend <= ?) OR state = ?",
			ratingdomain.AccountActive, now, ratingdomain.AccountBlocked).
		Order("qpend ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ids []snowflake.ID
	err := q.Pluck("id", &ids).Error
	return ids, err
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *ratingdomain.RatingEvent) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) UpdateEvent(ctx context.Context, db *gorm.DB, event *ratingdomain.RatingEvent) error {
	return db.WithContext(ctx).Save(event).Error
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ratingdomain.RatingEvent, error) {
	var event ratingdomain.RatingEvent
	return first(db.WithContext(ctx).Where("id = ?", id), &event)
}

func (r *repo) FindEventByKey(ctx context.Context, db *gorm.DB, key string) (*ratingdomain.RatingEvent, error) {
	var event ratingdomain.RatingEvent
	return first(db.WithContext(ctx).Where("idempotency_key = ?", key), &event)
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, filter ratingdomain.EventFilter) ([]ratingdomain.RatingEvent, error) {
	q := db.WithContext(ctx).Model(&ratingdomain.RatingEvent{})
	if filter.AccountID != nil {
		q = q.Where("account_id = ?", *filter.AccountID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var events []ratingdomain.RatingEvent
	err := q.Order("timestamp ASC").Order("id ASC").Find(&events).Error
	return events, err
}

func first[T any](q *gorm.DB, dst *T) (*T, error) {
	if err := q.First(dst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return dst, nil
}
