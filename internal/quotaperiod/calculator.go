// Package quotaperiod computes quota period boundaries for rates.
//
// Three anchoring kinds are supported. Calendar units snap to the natural
// calendar grid counted from the calculator epoch. Absolute units count whole
// periods from an anchor (usually the account creation time), falling back to
// the epoch. Fixed units count from an explicitly tracked period start and fail
// when none is supplied.
package quotaperiod

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount      = errors.New("quota_period_amount_must_be_positive")
	ErrInvalidUnit        = errors.New("invalid_quota_period_unit")
	ErrMissingPeriodStart = errors.New("fixed_quota_period_requires_start")
)

const fractionPlaces int32 = 8

// Period is a quota period definition, e.g. 1 x c_month.
type Period struct {
	Amount uint16
	Unit   Unit
}

func (p Period) Validate() error {
	if p.Amount == 0 {
		return ErrInvalidAmount
	}
	if !p.Unit.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidUnit, string(p.Unit))
	}
	return nil
}

func (p Period) String() string {
	return fmt.Sprintf("%d %s", p.Amount, p.Unit)
}

// Window is the half-open interval [Start, End) of one quota period.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Length is the period length in whole seconds.
func (w Window) Length() int64 {
	return int64(w.End.Sub(w.Start) / time.Second)
}

// Spent is the number of whole seconds of the window elapsed at t, clamped to the window.
func (w Window) Spent(t time.Time) int64 {
	switch {
	case !t.After(w.Start):
		return 0
	case !t.Before(w.End):
		return w.Length()
	}
	return int64(t.Sub(w.Start) / time.Second)
}

func (w Window) Remaining(t time.Time) int64 {
	return w.Length() - w.Spent(t)
}

// FractionElapsed is Spent/Length in [0,1].
func (w Window) FractionElapsed(t time.Time) decimal.Decimal {
	length := w.Length()
	if length <= 0 {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(w.Spent(t)).DivRound(decimal.NewFromInt(length), fractionPlaces)
}

// FractionRemaining is 1 - FractionElapsed.
func (w Window) FractionRemaining(t time.Time) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(w.FractionElapsed(t))
}

// Calculator is a pure function object; it holds only configuration.
type Calculator struct {
	// Location is the zone calendar boundaries are computed in. Defaults to UTC.
	Location *time.Location
	// FirstWeekday starts calendar weeks. The zero value is Sunday.
	FirstWeekday time.Weekday
	// Epoch anchors calendar grids (by its year) and absolute periods without
	// an explicit anchor. Defaults to 1970-01-01 in Location.
	Epoch time.Time
}

func NewCalculator(loc *time.Location, firstWeekday time.Weekday) Calculator {
	return Calculator{Location: loc, FirstWeekday: firstWeekday}
}

func (c Calculator) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c Calculator) epoch() time.Time {
	if c.Epoch.IsZero() {
		return time.Date(1970, time.January, 1, 0, 0, 0, 0, c.location())
	}
	return c.Epoch.In(c.location())
}

// Window returns the quota period containing at. anchor is the account
// creation time for absolute units and the tracked period start for fixed
// units; it is ignored for calendar units.
func (c Calculator) Window(p Period, at time.Time, anchor *time.Time) (Window, error) {
	origin, k, err := c.locate(p, at, anchor)
	if err != nil {
		return Window{}, err
	}
	return Window{
		Start: boundary(origin, p, k),
		End:   boundary(origin, p, k+1),
	}, nil
}

// NewPeriodBoundary is the instant at which the period containing at ends.
func (c Calculator) NewPeriodBoundary(p Period, at time.Time, anchor *time.Time) (time.Time, error) {
	w, err := c.Window(p, at, anchor)
	if err != nil {
		return time.Time{}, err
	}
	return w.End, nil
}

// PeriodCount is the number of period boundaries crossed in (from, to].
func (c Calculator) PeriodCount(p Period, from, to time.Time, anchor *time.Time) (int64, error) {
	_, kFrom, err := c.locate(p, from, anchor)
	if err != nil {
		return 0, err
	}
	if !to.After(from) {
		return 0, nil
	}
	_, kTo, err := c.locate(p, to, anchor)
	if err != nil {
		return 0, err
	}
	return kTo - kFrom, nil
}

func (c Calculator) locate(p Period, at time.Time, anchor *time.Time) (time.Time, int64, error) {
	if err := p.Validate(); err != nil {
		return time.Time{}, 0, err
	}

	loc := c.location()
	at = at.In(loc)

	var origin time.Time
	switch p.Unit.Kind() {
	case KindCalendar:
		origin = c.calendarOrigin(p.Unit.Step())
	case KindAbsolute:
		origin = c.epoch()
		if anchor != nil && !anchor.IsZero() {
			origin = anchor.In(loc)
		}
	case KindFixed:
		if anchor == nil || anchor.IsZero() {
			return time.Time{}, 0, ErrMissingPeriodStart
		}
		origin = anchor.In(loc)
	}

	return origin, index(origin, p, at), nil
}

func (c Calculator) calendarOrigin(step Step) time.Time {
	origin := time.Date(c.epoch().Year(), time.January, 1, 0, 0, 0, 0, c.location())
	if step == StepWeek {
		offset := (int(origin.Weekday()) - int(c.FirstWeekday) + 7) % 7
		origin = origin.AddDate(0, 0, -offset)
	}
	return origin
}

// index finds k such that boundary(k) <= at < boundary(k+1).
func index(origin time.Time, p Period, at time.Time) int64 {
	amount := int64(p.Amount)

	var estimate int64
	switch p.Unit.Step() {
	case StepHour:
		return floorDiv(int64(at.Sub(origin)/time.Second), amount*3600)
	case StepDay:
		estimate = floorDiv(int64(at.Sub(origin)/time.Hour), amount*24)
	case StepWeek:
		estimate = floorDiv(int64(at.Sub(origin)/time.Hour), amount*24*7)
	case StepMonth:
		months := int64(at.Year()-origin.Year())*12 + int64(at.Month()-origin.Month())
		estimate = floorDiv(months, amount)
	case StepYear:
		estimate = floorDiv(int64(at.Year()-origin.Year()), amount)
	}

	k := estimate
	for boundary(origin, p, k).After(at) {
		k--
	}
	for !boundary(origin, p, k+1).After(at) {
		k++
	}
	return k
}

// boundary is origin advanced by k periods, always computed from origin so
// clamped month ends never accumulate drift.
func boundary(origin time.Time, p Period, k int64) time.Time {
	n := k * int64(p.Amount)
	switch p.Unit.Step() {
	case StepHour:
		return origin.Add(time.Duration(n) * time.Hour)
	case StepDay:
		return origin.AddDate(0, 0, int(n))
	case StepWeek:
		return origin.AddDate(0, 0, int(n)*7)
	case StepMonth:
		return addMonthsClamped(origin, n)
	case StepYear:
		return addMonthsClamped(origin, n*12)
	}
	return origin
}

func addMonthsClamped(t time.Time, months int64) time.Time {
	total := int64(t.Month()-1) + months
	year := int64(t.Year()) + floorDiv(total, 12)
	month := time.Month(total-floorDiv(total, 12)*12) + 1

	day := t.Day()
	if last := daysIn(int(year), month, t.Location()); day > last {
		day = last
	}
	return time.Date(int(year), month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
