// Package money provides the fixed-point amount type used for balances and prices.
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Scale is the number of fractional digits kept for every amount.
const Scale int32 = 8

var ErrInvalidAmount = errors.New("invalid_money_amount")

// Money is a signed fixed-point amount with Scale fractional digits.
// The zero value is a valid zero amount.
type Money struct {
	d decimal.Decimal
}

func Zero() Money { return Money{} }

// New wraps a decimal, rounding it to Scale.
func New(d decimal.Decimal) Money {
	return Money{d: d.Round(Scale)}
}

func FromInt(v int64) Money {
	return Money{d: decimal.NewFromInt(v)}
}

// Parse reads a decimal string such as "100.00" or "-0.0001".
func Parse(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.Equal(d.Round(Scale)) {
		return Money{}, fmt.Errorf("%w: %q exceeds %d decimal places", ErrInvalidAmount, s, Scale)
	}
	return Money{d: d}, nil
}

func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

func (m Money) Neg() Money { return Money{d: m.d.Neg()} }

func (m Money) Abs() Money { return Money{d: m.d.Abs()} }

// Mul multiplies by an arbitrary factor and rounds back to Scale.
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{d: m.d.Mul(factor).Round(Scale)}
}

func (m Money) MulInt(n int64) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(n))}
}

// MulTraffic prices a byte counter at m per byte.
func (m Money) MulTraffic(t Traffic) Money {
	return Money{d: m.d.Mul(t.Decimal()).Round(Scale)}
}

func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

func (m Money) IsZero() bool { return m.d.IsZero() }

func (m Money) IsNegative() bool { return m.d.IsNegative() }

func (m Money) IsPositive() bool { return m.d.IsPositive() }

func (m Money) LessThan(o Money) bool { return m.d.LessThan(o.d) }

func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }

func Max(a, b Money) Money {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// String renders the amount with exactly Scale fractional digits.
func (m Money) String() string { return m.d.StringFixed(Scale) }

func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

func (m *Money) Scan(value any) error {
	if value == nil {
		m.d = decimal.Zero
		return nil
	}
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	m.d = d.Round(Scale)
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "null" {
		m.d = decimal.Zero
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

const numericColumn = "numeric(20,8)"

// GormDataType keeps the column numeric on every dialect.
func (Money) GormDataType() string { return numericColumn }

func (Money) GormDBDataType(db *gorm.DB, _ *schema.Field) string { return dbDataType(db) }

// dbDataType stores decimals as text on SQLite, whose NUMERIC affinity would
// round-trip them through float64 and whose migrator cannot re-read a
// parenthesized type list.
func dbDataType(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return "text"
	}
	return numericColumn
}
