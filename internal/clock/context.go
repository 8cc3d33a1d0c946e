package clock

import (
	"context"
	"time"
)

type key string

var simulatedTimeKey key = "simulated_time"

// WithSimulatedTime makes every Clock read from ctx return t.
func WithSimulatedTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, simulatedTimeKey, t.UTC())
}

// SimulatedTimeFromContext returns the simulated time from the context, if present.
func SimulatedTimeFromContext(ctx context.Context) (time.Time, bool) {
	if ctx == nil {
		return time.Time{}, false
	}
	t, ok := ctx.Value(simulatedTimeKey).(time.Time)
	return t, ok
}
