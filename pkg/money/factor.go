package money

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Factor is a dimensionless decimal such as a price multiplier or an
// exchange rate. It is stored the way Money is.
type Factor struct {
	decimal.Decimal
}

func NewFactor(d decimal.Decimal) Factor { return Factor{Decimal: d} }

func (Factor) GormDataType() string { return numericColumn }

func (Factor) GormDBDataType(db *gorm.DB, _ *schema.Field) string { return dbDataType(db) }

// NullFactor is a Factor that may be unset.
type NullFactor struct {
	decimal.NullDecimal
}

func NewNullFactor(d decimal.Decimal) NullFactor {
	return NullFactor{NullDecimal: decimal.NewNullDecimal(d)}
}

func (NullFactor) GormDataType() string { return numericColumn }

func (NullFactor) GormDBDataType(db *gorm.DB, _ *schema.Field) string { return dbDataType(db) }
