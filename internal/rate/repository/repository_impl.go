package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	ratedomain "github.com/netprofile/netbill/internal/rate/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ratedomain.Repository {
	return &repo{}
}

func (r *repo) FindRate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ratedomain.Rate, error) {
	var rate ratedomain.Rate
	return findOne(ctx, db, &rate, id)
}

func (r *repo) ListRates(ctx context.Context, db *gorm.DB, filter ratedomain.ListRatesFilter) ([]ratedomain.Rate, error) {
	q := db.WithContext(ctx).Model(&ratedomain.Rate{})
	if filter.Type != nil {
		q = q.Where("type = ?", string(*filter.Type))
	}
	if filter.ClassID != nil {
		q = q.Where("class_id = ?", *filter.ClassID)
	}
	if filter.Polled != nil {
		q = q.Where("polled = ?", *filter.Polled)
	}
	var rates []ratedomain.Rate
	err := q.Order("name ASC").Find(&rates).Error
	return rates, err
}

func (r *repo) SaveRate(ctx context.Context, db *gorm.DB, rate *ratedomain.Rate) error {
	return db.WithContext(ctx).Save(rate).Error
}

func (r *repo) SaveRateClass(ctx context.Context, db *gorm.DB, class *ratedomain.RateClass) error {
	return db.WithContext(ctx).Save(class).Error
}

func (r *repo) SaveDestinationSet(ctx context.Context, db *gorm.DB, set *ratedomain.DestinationSet) error {
	return db.WithContext(ctx).Save(set).Error
}

func (r *repo) FindDestination(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ratedomain.Destination, error) {
	var dest ratedomain.Destination
	return findOne(ctx, db, &dest, id)
}

// ListDestinations returns every destination of the set, inactive ones
// included, in lookup order.
func (r *repo) ListDestinations(ctx context.Context, db *gorm.DB, setID snowflake.ID) ([]ratedomain.Destination, error) {
	var dests []ratedomain.Destination
	err := db.WithContext(ctx).
		Where("set_id = ?", setID).
		Order("lookup_order ASC").
		Order("id ASC").
		Find(&dests).Error
	return dests, err
}

func (r *repo) SaveDestination(ctx context.Context, db *gorm.DB, dest *ratedomain.Destination) error {
	return db.WithContext(ctx).Save(dest).Error
}

func (r *repo) DeleteDestination(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Delete(&ratedomain.Destination{}, "id = ?", id).Error
}

func (r *repo) SaveFilterSet(ctx context.Context, db *gorm.DB, set *ratedomain.FilterSet) error {
	return db.WithContext(ctx).Save(set).Error
}

func (r *repo) FindFilter(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ratedomain.Filter, error) {
	var filter ratedomain.Filter
	return findOne(ctx, db, &filter, id)
}

func (r *repo) ListFilters(ctx context.Context, db *gorm.DB, setID snowflake.ID) ([]ratedomain.Filter, error) {
	var filters []ratedomain.Filter
	err := db.WithContext(ctx).
		Where("set_id = ?", setID).
		Order("id ASC").
		Find(&filters).Error
	return filters, err
}

func (r *repo) SaveFilter(ctx context.Context, db *gorm.DB, filter *ratedomain.Filter) error {
	return db.WithContext(ctx).Save(filter).Error
}

func (r *repo) DeleteFilter(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Delete(&ratedomain.Filter{}, "id = ?", id).Error
}

func (r *repo) SaveBillingPeriod(ctx context.Context, db *gorm.DB, period *ratedomain.BillingPeriod) error {
	return db.WithContext(ctx).Save(period).Error
}

func (r *repo) ListBillingPeriods(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]ratedomain.BillingPeriod, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var periods []ratedomain.BillingPeriod
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&periods).Error
	return periods, err
}

func (r *repo) SaveModifierType(ctx context.Context, db *gorm.DB, modType *ratedomain.RateModifierType) error {
	return db.WithContext(ctx).Save(modType).Error
}

func (r *repo) ListModifierTypes(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]ratedomain.RateModifierType, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var types []ratedomain.RateModifierType
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&types).Error
	return types, err
}

func (r *repo) SaveGlobalModifier(ctx context.Context, db *gorm.DB, mod *ratedomain.GlobalRateModifier) error {
	return db.WithContext(ctx).Save(mod).Error
}

func (r *repo) ListGlobalModifiers(ctx context.Context, db *gorm.DB, rateID snowflake.ID) ([]ratedomain.GlobalRateModifier, error) {
	var mods []ratedomain.GlobalRateModifier
	err := db.WithContext(ctx).
		Where("rate_id = ?", rateID).
		Order("lookup_order ASC").
		Order("id ASC").
		Find(&mods).Error
	return mods, err
}

func findOne[T any](ctx context.Context, db *gorm.DB, dst *T, id snowflake.ID) (*T, error) {
	err := db.WithContext(ctx).Where("id = ?", id).First(dst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return dst, nil
}
