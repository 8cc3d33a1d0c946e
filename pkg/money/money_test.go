package money

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsScale(t *testing.T) {
	m, err := Parse("100")
	require.NoError(t, err)
	assert.Equal(t, "100.00000000", m.String())

	m, err = Parse("-0.0001")
	require.NoError(t, err)
	assert.True(t, m.IsNegative())
	assert.Equal(t, "-0.00010000", m.String())

	_, err = Parse("0.000000001")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Parse("abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestArithmeticHasNoFloatDrift(t *testing.T) {
	a := MustParse("0.1")
	b := MustParse("0.2")
	assert.Equal(t, "0.30000000", a.Add(b).String())

	sum := Zero()
	for i := 0; i < 10; i++ {
		sum = sum.Add(a)
	}
	assert.True(t, sum.Equal(FromInt(1)))
}

func TestMulTraffic(t *testing.T) {
	price := MustParse("0.0001")
	assert.Equal(t, "50.00000000", price.MulTraffic(Traffic(500_000)).String())

	huge := Traffic(math.MaxUint64)
	assert.Equal(t, "1844674407370955.16150000", price.MulTraffic(huge).String())
}

func TestMulRoundsHalfAwayFromZero(t *testing.T) {
	m := MustParse("0.00000001")
	assert.Equal(t, "0.00000002", m.Mul(decimal.RequireFromString("1.5")).String())
	assert.Equal(t, "-0.00000002", m.Neg().Mul(decimal.RequireFromString("1.5")).String())
}

func TestScanAndValue(t *testing.T) {
	var m Money
	require.NoError(t, m.Scan("12.5"))
	assert.Equal(t, "12.50000000", m.String())

	require.NoError(t, m.Scan([]byte("-3.25")))
	assert.Equal(t, "-3.25000000", m.String())

	require.NoError(t, m.Scan(int64(7)))
	assert.Equal(t, "7.00000000", m.String())

	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, "7.00000000", v)
}

func TestJSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{Amount: MustParse("1.5")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"1.50000000"}`, string(raw))

	var out struct {
		Amount Money `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"2.75"}`), &out))
	assert.Equal(t, "2.75000000", out.Amount.String())
}

func TestTraffic(t *testing.T) {
	sum, err := Traffic(10).Add(5)
	require.NoError(t, err)
	assert.Equal(t, Traffic(15), sum)

	_, err = Traffic(math.MaxUint64).Add(1)
	assert.ErrorIs(t, err, ErrTrafficOverflow)

	assert.Equal(t, Traffic(0), Traffic(3).Sub(5))
	assert.Equal(t, Traffic(2), Traffic(5).Sub(3))
	assert.Equal(t, Traffic(3), MinTraffic(3, 5))
}
