package quotaperiod

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Kind says how period boundaries are anchored.
type Kind uint8

const (
	KindAbsolute Kind = iota + 1
	KindCalendar
	KindFixed
)

// Step is the base length of one period unit.
type Step uint8

const (
	StepHour Step = iota + 1
	StepDay
	StepWeek
	StepMonth
	StepYear
)

// Unit is the stored quota period unit, e.g. "c_month".
type Unit string

const (
	AbsoluteHour  Unit = "a_hour"
	AbsoluteDay   Unit = "a_day"
	AbsoluteWeek  Unit = "a_week"
	AbsoluteMonth Unit = "a_month"
	AbsoluteYear  Unit = "a_year"
	CalendarHour  Unit = "c_hour"
	CalendarDay   Unit = "c_day"
	CalendarWeek  Unit = "c_week"
	CalendarMonth Unit = "c_month"
	CalendarYear  Unit = "c_year"
	FixedHour     Unit = "f_hour"
	FixedDay      Unit = "f_day"
	FixedWeek     Unit = "f_week"
	FixedMonth    Unit = "f_month"
	FixedYear     Unit = "f_year"
)

var units = map[Unit]struct {
	kind Kind
	step Step
}{
	AbsoluteHour:  {KindAbsolute, StepHour},
	AbsoluteDay:   {KindAbsolute, StepDay},
	AbsoluteWeek:  {KindAbsolute, StepWeek},
	AbsoluteMonth: {KindAbsolute, StepMonth},
	AbsoluteYear:  {KindAbsolute, StepYear},
	CalendarHour:  {KindCalendar, StepHour},
	CalendarDay:   {KindCalendar, StepDay},
	CalendarWeek:  {KindCalendar, StepWeek},
	CalendarMonth: {KindCalendar, StepMonth},
	CalendarYear:  {KindCalendar, StepYear},
	FixedHour:     {KindFixed, StepHour},
	FixedDay:      {KindFixed, StepDay},
	FixedWeek:     {KindFixed, StepWeek},
	FixedMonth:    {KindFixed, StepMonth},
	FixedYear:     {KindFixed, StepYear},
}

func ParseUnit(s string) (Unit, error) {
	u := Unit(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := units[u]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidUnit, s)
	}
	return u, nil
}

func (u Unit) Valid() bool {
	_, ok := units[u]
	return ok
}

func (u Unit) Kind() Kind { return units[u].kind }

func (u Unit) Step() Step { return units[u].step }

func (u Unit) String() string { return string(u) }

func (u Unit) Value() (driver.Value, error) {
	if !u.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUnit, string(u))
	}
	return string(u), nil
}

func (u *Unit) Scan(value any) error {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidUnit, value)
	}
	parsed, err := ParseUnit(raw)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
