package money

import (
	"errors"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

var ErrTrafficOverflow = errors.New("traffic_counter_overflow")

// Traffic is an unsigned byte counter.
type Traffic uint64

// Add returns t+o, failing instead of wrapping around.
func (t Traffic) Add(o Traffic) (Traffic, error) {
	if uint64(t) > math.MaxUint64-uint64(o) {
		return 0, ErrTrafficOverflow
	}
	return t + o, nil
}

// Sub saturates at zero.
func (t Traffic) Sub(o Traffic) Traffic {
	if o >= t {
		return 0
	}
	return t - o
}

func (t Traffic) Decimal() decimal.Decimal {
	return decimal.NewFromUint64(uint64(t))
}

func (t Traffic) String() string { return strconv.FormatUint(uint64(t), 10) }

func MinTraffic(a, b Traffic) Traffic {
	if a < b {
		return a
	}
	return b
}
