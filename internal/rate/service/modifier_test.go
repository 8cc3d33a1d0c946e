package service

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	ratedomain "github.com/netprofile/netbill/internal/rate/domain"
	"github.com/netprofile/netbill/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func mul(s string) money.NullFactor {
	return money.NewNullFactor(decimal.RequireFromString(s))
}

func bound(id int64, order uint16, t ratedomain.RateModifierType) ratedomain.BoundModifier {
	t.Enabled = true
	return ratedomain.BoundModifier{
		Modifier: ratedomain.GlobalRateModifier{ID: snowflake.ID(id), TypeID: t.ID, Enabled: true, LookupOrder: order},
		Type:     t,
	}
}

func baseRate() ratedomain.Rate {
	return ratedomain.Rate{
		OverquotaSumIngress: money.MustParse("0.0001"),
		OverquotaSumEgress:  money.MustParse("0.0002"),
		OverquotaSumSeconds: money.MustParse("0.01"),
		IngressPolicy:       strptr("default"),
		EgressPolicy:        strptr("default"),
	}
}

func TestApplyModifiersLaterOverwriteWins(t *testing.T) {
	double := bound(1, 1, ratedomain.RateModifierType{ID: 100, OverquotaMultiplierIngress: mul("2")})
	shape := bound(2, 2, ratedomain.RateModifierType{ID: 200, OverwriteIngressPolicy: true, IngressPolicy: strptr("shaped-1m")})
	throttle := bound(3, 1, ratedomain.RateModifierType{ID: 300, OverwriteIngressPolicy: true, IngressPolicy: strptr("throttle")})

	got, err := ApplyModifiers(ratedomain.BasePricing(baseRate()), []ratedomain.BoundModifier{shape, double, throttle}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "0.00020000", got.Ingress.String())
	assert.Equal(t, "shaped-1m", *got.IngressPolicy)
	assert.Equal(t, "default", *got.EgressPolicy)
	assert.Equal(t, "0.00020000", got.Egress.String())
}

func TestApplyModifiersCompoundsMultipliers(t *testing.T) {
	a := bound(1, 1, ratedomain.RateModifierType{ID: 100, OverquotaMultiplierSeconds: mul("1.5")})
	b := bound(2, 2, ratedomain.RateModifierType{ID: 200, OverquotaMultiplierSeconds: mul("2"), OverquotaMultiplierEgress: mul("0.5")})

	got, err := ApplyModifiers(ratedomain.BasePricing(baseRate()), []ratedomain.BoundModifier{a, b}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "0.03000000", got.Seconds.String())
	assert.Equal(t, "0.00010000", got.Egress.String())
}

func TestApplyModifiersSkipsDisabledAndOutOfPeriod(t *testing.T) {
	disabledMod := bound(1, 1, ratedomain.RateModifierType{ID: 100, OverquotaMultiplierIngress: mul("10")})
	disabledMod.Modifier.Enabled = false

	disabledType := bound(2, 2, ratedomain.RateModifierType{ID: 200, OverquotaMultiplierIngress: mul("10")})
	disabledType.Type.Enabled = false

	periodID := snowflake.ID(900)
	december := bound(3, 3, ratedomain.RateModifierType{ID: 300, BillingPeriodID: &periodID, OverquotaMultiplierIngress: mul("3")})
	month := uint8(12)
	december.Period = &ratedomain.BillingPeriod{ID: periodID, StartMonth: &month, EndMonth: &month}

	mods := []ratedomain.BoundModifier{disabledMod, disabledType, december}

	march := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	got, err := ApplyModifiers(ratedomain.BasePricing(baseRate()), mods, march)
	require.NoError(t, err)
	assert.Equal(t, "0.00010000", got.Ingress.String())

	dec := time.Date(2024, time.December, 10, 12, 0, 0, 0, time.UTC)
	got, err = ApplyModifiers(ratedomain.BasePricing(baseRate()), mods, dec)
	require.NoError(t, err)
	assert.Equal(t, "0.00030000", got.Ingress.String())
}

func TestApplyModifiersMissingPeriodIsConfigurationError(t *testing.T) {
	periodID := snowflake.ID(900)
	m := bound(1, 1, ratedomain.RateModifierType{ID: 100, BillingPeriodID: &periodID})

	_, err := ApplyModifiers(ratedomain.BasePricing(baseRate()), []ratedomain.BoundModifier{m}, time.Now())
	assert.ErrorIs(t, err, ratedomain.ErrConfiguration)
}

func TestPriceForDestinationAdjustments(t *testing.T) {
	override := money.MustParse("0.05")
	d := &ratedomain.Destination{OverquotaSumSeconds: &override, OverquotaMultiplierSeconds: mul("0.5")}
	m := bound(1, 1, ratedomain.RateModifierType{ID: 100, OverquotaMultiplierSeconds: mul("2")})

	got, err := PriceFor(baseRate(), d, []ratedomain.BoundModifier{m}, time.Now())
	require.NoError(t, err)
	// 0.05 replaces 0.01, doubled by the modifier, halved by the destination.
	assert.Equal(t, "0.05000000", got.Seconds.String())

	got, err = PriceFor(baseRate(), nil, []ratedomain.BoundModifier{m}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "0.02000000", got.Seconds.String())
}
