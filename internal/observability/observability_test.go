package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/netprofile/netbill/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(config.Config{Observability: config.ObservabilityConfig{LogLevel: "warn", LogFormat: "json"}})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))

	_, err = NewLogger(config.Config{Observability: config.ObservabilityConfig{LogLevel: "loud"}})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = NewLogger(config.Config{Observability: config.ObservabilityConfig{LogLevel: "info", LogFormat: "xml"}})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: "netbill", Name: "sessions_total", Help: "sessions"})
	require.NoError(t, reg.Register(c))
	c.Inc()

	rec := httptest.NewRecorder()
	MetricsHandler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "netbill_sessions_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestTracerProviderWithoutEndpoint(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	tp, err := NewTracerProvider(lc, config.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Same(t, tp, otel.GetTracerProvider())

	_, span := otel.Tracer("test").Start(context.Background(), "rate_session")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	lc.RequireStart().RequireStop()
}
