package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindRate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Rate, error)
	ListRates(ctx context.Context, db *gorm.DB, filter ListRatesFilter) ([]Rate, error)
	SaveRate(ctx context.Context, db *gorm.DB, rate *Rate) error
	SaveRateClass(ctx context.Context, db *gorm.DB, class *RateClass) error

	SaveDestinationSet(ctx context.Context, db *gorm.DB, set *DestinationSet) error
	FindDestination(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Destination, error)
	ListDestinations(ctx context.Context, db *gorm.DB, setID snowflake.ID) ([]Destination, error)
	SaveDestination(ctx context.Context, db *gorm.DB, dest *Destination) error
	DeleteDestination(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	SaveFilterSet(ctx context.Context, db *gorm.DB, set *FilterSet) error
	FindFilter(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Filter, error)
	ListFilters(ctx context.Context, db *gorm.DB, setID snowflake.ID) ([]Filter, error)
	SaveFilter(ctx context.Context, db *gorm.DB, filter *Filter) error
	DeleteFilter(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	SaveBillingPeriod(ctx context.Context, db *gorm.DB, period *BillingPeriod) error
	ListBillingPeriods(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]BillingPeriod, error)
	SaveModifierType(ctx context.Context, db *gorm.DB, modType *RateModifierType) error
	ListModifierTypes(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]RateModifierType, error)
	SaveGlobalModifier(ctx context.Context, db *gorm.DB, mod *GlobalRateModifier) error
	ListGlobalModifiers(ctx context.Context, db *gorm.DB, rateID snowflake.ID) ([]GlobalRateModifier, error)
}

type ListRatesFilter struct {
	Type    *RateType
	ClassID *snowflake.ID
	Polled  *bool
}
