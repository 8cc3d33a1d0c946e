package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillingPeriod is a recurring window made of independent month, day of
// month, weekday, hour and minute ranges. Every range is inclusive, may wrap
// around (e.g. November..February or 22..6), and defaults its missing bound
// to the minimum or maximum of the field. Weekdays are ISO: 1 Monday, 7 Sunday.
type BillingPeriod struct {
	ID   snowflake.ID `gorm:"primaryKey"`
	Name string       `gorm:"type:text;not null;uniqueIndex"`

	StartMonth      *uint8
	StartDayOfMonth *uint8 `gorm:"column:start_mday"`
	StartWeekday    *uint8 `gorm:"column:start_wday"`
	StartHour       *uint8
	StartMinute     *uint8
	EndMonth        *uint8
	EndDayOfMonth   *uint8 `gorm:"column:end_mday"`
	EndWeekday      *uint8 `gorm:"column:end_wday"`
	EndHour         *uint8
	EndMinute       *uint8
}

func (BillingPeriod) TableName() string { return "bperiods_def" }

type periodField struct {
	name       string
	start, end *uint8
	min, max   uint8
	value      func(time.Time) uint8
}

func (p BillingPeriod) fields() []periodField {
	return []periodField{
		{"month", p.StartMonth, p.EndMonth, 1, 12, func(t time.Time) uint8 { return uint8(t.Month()) }},
		{"day_of_month", p.StartDayOfMonth, p.EndDayOfMonth, 1, 31, func(t time.Time) uint8 { return uint8(t.Day()) }},
		{"weekday", p.StartWeekday, p.EndWeekday, 1, 7, isoWeekday},
		{"hour", p.StartHour, p.EndHour, 0, 23, func(t time.Time) uint8 { return uint8(t.Hour()) }},
		{"minute", p.StartMinute, p.EndMinute, 0, 59, func(t time.Time) uint8 { return uint8(t.Minute()) }},
	}
}

func (p BillingPeriod) Validate() error {
	set := false
	for _, f := range p.fields() {
		for _, bound := range []*uint8{f.start, f.end} {
			if bound == nil {
				continue
			}
			set = true
			if *bound < f.min || *bound > f.max {
				return fmt.Errorf("%w: billing period %q %s %d outside %d..%d", ErrConfiguration, p.Name, f.name, *bound, f.min, f.max)
			}
		}
	}
	if !set {
		return fmt.Errorf("%w: billing period %q has no field set", ErrConfiguration, p.Name)
	}
	return nil
}

// Contains reports whether t, in its own location, falls inside every
// configured range.
func (p BillingPeriod) Contains(t time.Time) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	for _, f := range p.fields() {
		if f.start == nil && f.end == nil {
			continue
		}
		lo, hi := f.min, f.max
		if f.start != nil {
			lo = *f.start
		}
		if f.end != nil {
			hi = *f.end
		}
		if !inRange(f.value(t), lo, hi) {
			return false, nil
		}
	}
	return true, nil
}

func inRange(v, lo, hi uint8) bool {
	if lo <= hi {
		return v >= lo && v <= hi
	}
	return v >= lo || v <= hi
}

func isoWeekday(t time.Time) uint8 {
	if t.Weekday() == time.Sunday {
		return 7
	}
	return uint8(t.Weekday())
}
