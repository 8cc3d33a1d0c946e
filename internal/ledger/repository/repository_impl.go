package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/netprofile/netbill/internal/ledger/domain"
	"github.com/netprofile/netbill/pkg/money"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) InsertCurrency(ctx context.Context, db *gorm.DB, currency *ledgerdomain.Currency) error {
	return db.WithContext(ctx).Create(currency).Error
}

func (r *repo) FindCurrency(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ledgerdomain.Currency, error) {
	var currency ledgerdomain.Currency
	return first(db.WithContext(ctx).Where("id = ?", id), &currency)
}

func (r *repo) FindCurrencyByCode(ctx context.Context, db *gorm.DB, code string) (*ledgerdomain.Currency, error) {
	var currency ledgerdomain.Currency
	return first(db.WithContext(ctx).Where("code = ?", code), &currency)
}

func (r *repo) InsertStash(ctx context.Context, db *gorm.DB, stash *ledgerdomain.Stash) error {
	return db.WithContext(ctx).Create(stash).Error
}

func (r *repo) FindStash(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ledgerdomain.Stash, error) {
	var stash ledgerdomain.Stash
	return first(db.WithContext(ctx).Where("id = ?", id), &stash)
}

func (r *repo) LockStash(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ledgerdomain.Stash, error) {
	var stash ledgerdomain.Stash
	q := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id)
	return first(q, &stash)
}

func (r *repo) ListStashes(ctx context.Context, db *gorm.DB, entityID snowflake.ID) ([]ledgerdomain.Stash, error) {
	var stashes []ledgerdomain.Stash
	err := db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("id ASC").
		Find(&stashes).Error
	return stashes, err
}

func (r *repo) UpdateStashBalance(ctx context.Context, db *gorm.DB, stash *ledgerdomain.Stash) error {
	res := db.WithContext(ctx).
		Model(&ledgerdomain.Stash{}).
		Where("id = ? AND version = ?", stash.ID, stash.Version).
		Updates(map[string]any{
			"amount":      stash.Amount,
			"alltime_max": stash.AlltimeMax,
			"alltime_min": stash.AlltimeMin,
			"version":     stash.Version + 1,
			"updated_at":  stash.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ledgerdomain.ErrConcurrencyConflict
	}
	stash.Version++
	return nil
}

func (r *repo) UpdateStashCredit(ctx context.Context, db *gorm.DB, id snowflake.ID, credit money.Money, at time.Time) error {
	return r.updateStashColumn(ctx, db, id, "credit", credit, at)
}

func (r *repo) UpdateStashFuturesCredit(ctx context.Context, db *gorm.DB, id snowflake.ID, credit money.Money, at time.Time) error {
	return r.updateStashColumn(ctx, db, id, "futures_credit", credit, at)
}

func (r *repo) updateStashColumn(ctx context.Context, db *gorm.DB, id snowflake.ID, column string, value money.Money, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&ledgerdomain.Stash{}).
		Where("id = ?", id).
		Updates(map[string]any{column: value, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ledgerdomain.ErrStashNotFound
	}
	return nil
}

func (r *repo) InsertIOType(ctx context.Context, db *gorm.DB, t *ledgerdomain.StashIOType) error {
	return db.WithContext(ctx).Create(t).Error
}

func (r *repo) FindIOType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ledgerdomain.StashIOType, error) {
	var t ledgerdomain.StashIOType
	return first(db.WithContext(ctx).Where("id = ?", id), &t)
}

func (r *repo) FindIOTypeByName(ctx context.Context, db *gorm.DB, name string) (*ledgerdomain.StashIOType, error) {
	var t ledgerdomain.StashIOType
	return first(db.WithContext(ctx).Where("name = ?", name), &t)
}

func (r *repo) FindIOTypeByFunction(ctx context.Context, db *gorm.DB, fn ledgerdomain.IOFunction) (*ledgerdomain.StashIOType, error) {
	var t ledgerdomain.StashIOType
	return first(db.WithContext(ctx).Where("function = ?", string(fn)).Order("id ASC"), &t)
}

func (r *repo) InsertIO(ctx context.Context, db *gorm.DB, io *ledgerdomain.StashIO) error {
	return db.WithContext(ctx).Create(io).Error
}

func (r *repo) ListIO(ctx context.Context, db *gorm.DB, filter ledgerdomain.StashIOFilter) ([]ledgerdomain.StashIO, error) {
	q := db.WithContext(ctx).Model(&ledgerdomain.StashIO{})
	if filter.StashID != nil {
		q = q.Where("stash_id = ?", *filter.StashID)
	}
	if filter.EntityID != nil {
		q = q.Where("entity_id = ?", *filter.EntityID)
	}
	if filter.TypeID != nil {
		q = q.Where("type_id = ?", *filter.TypeID)
	}
	q = timeRange(q, filter.From, filter.To)
	q = page(q, filter.Limit, filter.Offset)

	var rows []ledgerdomain.StashIO
	err := q.Order("timestamp ASC").Order("id ASC").Find(&rows).Error
	return rows, err
}

// ListIODifferences loads raw differences; sums are taken in Go so the text
// encoding used on SQLite never goes through float arithmetic.
func (r *repo) ListIODifferences(ctx context.Context, db *gorm.DB, stashID snowflake.ID) ([]money.Money, error) {
	var diffs []money.Money
	err := db.WithContext(ctx).
		Model(&ledgerdomain.StashIO{}).
		Where("stash_id = ?", stashID).
		Pluck("difference", &diffs).Error
	return diffs, err
}

func (r *repo) InsertOperation(ctx context.Context, db *gorm.DB, op *ledgerdomain.StashOperation) error {
	return db.WithContext(ctx).Create(op).Error
}

func (r *repo) ListOperations(ctx context.Context, db *gorm.DB, filter ledgerdomain.OperationFilter) ([]ledgerdomain.StashOperation, error) {
	q := db.WithContext(ctx).Model(&ledgerdomain.StashOperation{})
	if filter.StashID != nil {
		q = q.Where("stash_id = ?", *filter.StashID)
	}
	if filter.Type != nil {
		q = q.Where("type = ?", string(*filter.Type))
	}
	q = timeRange(q, filter.From, filter.To)
	q = page(q, filter.Limit, filter.Offset)

	var rows []ledgerdomain.StashOperation
	err := q.Order("timestamp ASC").Order("id ASC").Find(&rows).Error
	return rows, err
}

func timeRange(q *gorm.DB, from, to *time.Time) *gorm.DB {
	if from != nil {
		q = q.Where("timestamp >= ?", *from)
	}
	if to != nil {
		q = q.Where("timestamp < ?", *to)
	}
	return q
}

func page(q *gorm.DB, limit, offset int) *gorm.DB {
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
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
