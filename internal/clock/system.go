package clock

import (
	"context"
	"time"
)

type SystemClock struct{}

func (SystemClock) Now(ctx context.Context) time.Time {
	if t, ok := SimulatedTimeFromContext(ctx); ok {
		return t
	}
	return time.Now().UTC()
}

// FixedClock always returns the same instant. Used by sweeps replaying a
// point in time and by tests.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now(ctx context.Context) time.Time {
	if t, ok := SimulatedTimeFromContext(ctx); ok {
		return t
	}
	return c.At.UTC()
}
