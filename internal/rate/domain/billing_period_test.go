package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u8(v uint8) *uint8 { return &v }

func TestBillingPeriodContains(t *testing.T) {
	at := func(s string) time.Time {
		ts, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return ts
	}

	tests := []struct {
		name   string
		period BillingPeriod
		at     string
		want   bool
	}{
		{"december only", BillingPeriod{StartMonth: u8(12), EndMonth: u8(12)}, "2024-12-24T10:00:00Z", true},
		{"december only outside", BillingPeriod{StartMonth: u8(12), EndMonth: u8(12)}, "2024-11-30T10:00:00Z", false},
		{"winter wraps", BillingPeriod{StartMonth: u8(11), EndMonth: u8(2)}, "2025-01-15T00:00:00Z", true},
		{"winter wraps outside", BillingPeriod{StartMonth: u8(11), EndMonth: u8(2)}, "2025-03-01T00:00:00Z", false},
		{"weekend", BillingPeriod{StartWeekday: u8(6), EndWeekday: u8(7)}, "2024-03-10T12:00:00Z", true},
		{"weekend on friday", BillingPeriod{StartWeekday: u8(6), EndWeekday: u8(7)}, "2024-03-08T12:00:00Z", false},
		{"night wraps", BillingPeriod{StartHour: u8(22), EndHour: u8(6)}, "2024-03-10T23:30:00Z", true},
		{"night wraps early", BillingPeriod{StartHour: u8(22), EndHour: u8(6)}, "2024-03-10T06:59:00Z", true},
		{"night wraps day", BillingPeriod{StartHour: u8(22), EndHour: u8(6)}, "2024-03-10T12:00:00Z", false},
		{"open end defaults to max", BillingPeriod{StartDayOfMonth: u8(25)}, "2024-03-31T00:00:00Z", true},
		{"open start defaults to min", BillingPeriod{EndDayOfMonth: u8(5)}, "2024-03-06T00:00:00Z", false},
		{"all ranges must match", BillingPeriod{StartMonth: u8(3), EndMonth: u8(3), StartHour: u8(0), EndHour: u8(8)}, "2024-03-10T09:00:00Z", false},
		{"minute range", BillingPeriod{StartMinute: u8(0), EndMinute: u8(14)}, "2024-03-10T09:14:59Z", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.period.Contains(at(tt.at))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBillingPeriodUsesInstantLocation(t *testing.T) {
	p := BillingPeriod{StartHour: u8(0), EndHour: u8(5)}
	utcInstant := time.Date(2024, time.March, 10, 22, 0, 0, 0, time.UTC)

	ok, err := p.Contains(utcInstant)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Contains(utcInstant.In(time.FixedZone("UTC+3", 3*3600)))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBillingPeriodWithoutFieldsIsConfigurationError(t *testing.T) {
	_, err := BillingPeriod{Name: "empty"}.Contains(time.Now())
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = BillingPeriod{StartMonth: u8(13)}.Contains(time.Now())
	assert.ErrorIs(t, err, ErrConfiguration)
}
