package quotaperiod

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestCalendarMonthLeapYear(t *testing.T) {
	calc := NewCalculator(time.UTC, time.Monday)
	p := Period{Amount: 1, Unit: CalendarMonth}

	w, err := calc.Window(p, utc(2024, time.February, 15, 0, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, utc(2024, time.February, 1, 0, 0), w.Start)
	assert.Equal(t, utc(2024, time.March, 1, 0, 0), w.End)
	assert.Equal(t, int64(29*24*3600), w.Length())

	w, err = calc.Window(p, utc(2023, time.February, 15, 0, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, utc(2023, time.February, 1, 0, 0), w.Start)
	assert.Equal(t, utc(2023, time.March, 1, 0, 0), w.End)
	assert.Equal(t, int64(28*24*3600), w.Length())
}

func TestWindowContainmentAndBoundary(t *testing.T) {
	calc := NewCalculator(time.UTC, time.Monday)
	anchor := utc(2023, time.January, 31, 13, 45)
	instants := []time.Time{
		utc(2024, time.March, 10, 12, 0),
		utc(2024, time.February, 29, 23, 59),
		utc(2024, time.January, 1, 0, 0),
		utc(2023, time.December, 31, 23, 59),
		utc(2025, time.July, 4, 6, 30),
	}
	amounts := []uint16{1, 2, 3, 7}

	for unit := range units {
		for _, amount := range amounts {
			p := Period{Amount: amount, Unit: unit}
			for _, at := range instants {
				w, err := calc.Window(p, at, &anchor)
				require.NoError(t, err, "%s at %s", p, at)
				assert.False(t, at.Before(w.Start), "%s: start %s after %s", p, w.Start, at)
				assert.True(t, at.Before(w.End), "%s: end %s not after %s", p, w.End, at)

				next, err := calc.NewPeriodBoundary(p, at, &anchor)
				require.NoError(t, err)
				assert.Equal(t, w.End, next)

				again, err := calc.Window(p, at, &anchor)
				require.NoError(t, err)
				assert.Equal(t, w, again)
			}
		}
	}
}

func TestZeroAmountIsConfigurationError(t *testing.T) {
	calc := NewCalculator(time.UTC, time.Monday)
	_, err := calc.Window(Period{Amount: 0, Unit: CalendarDay}, time.Now(), nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = calc.Window(Period{Amount: 1, Unit: "c_fortnight"}, time.Now(), nil)
	assert.ErrorIs(t, err, ErrInvalidUnit)
}

func TestFixedRequiresPeriodStart(t *testing.T) {
	calc := NewCalculator(time.UTC, time.Monday)
	p := Period{Amount: 1, Unit: FixedMonth}

	_, err := calc.Window(p, time.Now(), nil)
	assert.ErrorIs(t, err, ErrMissingPeriodStart)

	start := utc(2024, time.January, 31, 10, 0)
	w, err := calc.Window(p, utc(2024, time.March, 5, 0, 0), &start)
	require.NoError(t, err)
	assert.Equal(t, utc(2024, time.February, 29, 10, 0), w.Start)
	assert.Equal(t, utc(2024, time.March, 31, 10, 0), w.End)
}

func TestAbsoluteFallsBackToEpoch(t *testing.T) {
	calc := NewCalculator(time.UTC, time.Monday)
	p := Period{Amount: 6, Unit: AbsoluteHour}

	w, err := calc.Window(p, utc(2024, time.March, 10, 13, 20), nil)
	require.NoError(t, err)
	assert.Equal(t, utc(2024, time.March, 10, 12, 0), w.Start)
	assert.Equal(t, utc(2024, time.March, 10, 18, 0), w.End)

	created := utc(2024, time.March, 1, 9, 30)
	w, err = calc.Window(Period{Amount: 1, Unit: AbsoluteDay}, utc(2024, time.March, 10, 8, 0), &created)
	require.NoError(t, err)
	assert.Equal(t, utc(2024, time.March, 9, 9, 30), w.Start)
	assert.Equal(t, utc(2024, time.March, 10, 9, 30), w.End)
}

func TestCalendarWeekUsesFirstWeekday(t *testing.T) {
	at := utc(2024, time.March, 13, 15, 0) // Wednesday

	monday := NewCalculator(time.UTC, time.Monday)
	w, err := monday.Window(Period{Amount: 1, Unit: CalendarWeek}, at, nil)
	require.NoError(t, err)
	assert.Equal(t, utc(2024, time.March, 11, 0, 0), w.Start)
	assert.Equal(t, utc(2024, time.March, 18, 0, 0), w.End)

	sunday := NewCalculator(time.UTC, time.Sunday)
	w, err = sunday.Window(Period{Amount: 1, Unit: CalendarWeek}, at, nil)
	require.NoError(t, err)
	assert.Equal(t, utc(2024, time.March, 10, 0, 0), w.Start)
}

func TestCalendarQuarterAndYear(t *testing.T) {
	calc := NewCalculator(time.UTC, time.Monday)

	w, err := calc.Window(Period{Amount: 3, Unit: CalendarMonth}, utc(2024, time.May, 20, 0, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, utc(2024, time.April, 1, 0, 0), w.Start)
	assert.Equal(t, utc(2024, time.July, 1, 0, 0), w.End)

	w, err = calc.Window(Period{Amount: 1, Unit: CalendarYear}, utc(2024, time.May, 20, 0, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, utc(2024, time.January, 1, 0, 0), w.Start)
	assert.Equal(t, utc(2025, time.January, 1, 0, 0), w.End)
}

func TestCalendarDayInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	calc := NewCalculator(loc, time.Monday)

	w, err := calc.Window(Period{Amount: 1, Unit: CalendarDay}, utc(2024, time.March, 10, 22, 0), nil)
	require.NoError(t, err)
	assert.True(t, w.Start.Equal(time.Date(2024, time.March, 11, 0, 0, 0, 0, loc)))
	assert.True(t, w.End.Equal(time.Date(2024, time.March, 12, 0, 0, 0, 0, loc)))
}

func TestFractions(t *testing.T) {
	calc := NewCalculator(time.UTC, time.Monday)
	p := Period{Amount: 1, Unit: CalendarDay}
	at := utc(2024, time.March, 10, 6, 0)

	w, err := calc.Window(p, at, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.25", w.FractionElapsed(at).String())
	assert.Equal(t, "0.75", w.FractionRemaining(at).String())
	assert.Equal(t, int64(6*3600), w.Spent(at))
	assert.Equal(t, int64(18*3600), w.Remaining(at))

	assert.True(t, w.FractionElapsed(w.Start.Add(-time.Hour)).IsZero())
	assert.Equal(t, "1", w.FractionElapsed(w.End.Add(time.Hour)).String())
}

func TestPeriodCount(t *testing.T) {
	calc := NewCalculator(time.UTC, time.Monday)
	p := Period{Amount: 1, Unit: CalendarMonth}

	n, err := calc.PeriodCount(p, utc(2024, time.January, 15, 0, 0), utc(2024, time.April, 15, 0, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = calc.PeriodCount(p, utc(2024, time.January, 15, 0, 0), utc(2024, time.January, 31, 0, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = calc.PeriodCount(p, utc(2024, time.April, 15, 0, 0), utc(2024, time.January, 15, 0, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	start := utc(2024, time.January, 10, 0, 0)
	n, err = calc.PeriodCount(Period{Amount: 2, Unit: FixedWeek}, start, utc(2024, time.February, 21, 0, 0), &start)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestParseUnit(t *testing.T) {
	u, err := ParseUnit(" C_MONTH ")
	require.NoError(t, err)
	assert.Equal(t, CalendarMonth, u)
	assert.Equal(t, KindCalendar, u.Kind())
	assert.Equal(t, StepMonth, u.Step())

	var scanned Unit
	require.NoError(t, scanned.Scan([]byte("f_week")))
	assert.Equal(t, FixedWeek, scanned)
	assert.Error(t, scanned.Scan(42))

	_, err = Unit("bogus").Value()
	assert.ErrorIs(t, err, ErrInvalidUnit)
}
