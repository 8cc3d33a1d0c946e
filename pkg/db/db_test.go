package db

import (
	"testing"

	"github.com/netprofile/netbill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func TestOpenSQLiteWithTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	conn, err := Open(config.DatabaseConfig{
		Driver:       "sqlite",
		URL:          "file:pkgdb?mode=memory&cache=shared",
		MaxOpenConns: 1,
		Tracing:      true,
	}, zap.NewNop(), tp)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := conn.DB()
		_ = sqlDB.Close()
	})

	var one int
	require.NoError(t, conn.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
	assert.NotEmpty(t, recorder.Ended())
}

func TestDialectorRejectsUnknownDriver(t *testing.T) {
	_, err := Dialector(config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)

	for _, driver := range []string{"postgres", "mysql", "sqlite"} {
		d, err := Dialector(config.DatabaseConfig{Driver: driver, URL: "x"})
		require.NoError(t, err)
		assert.NotNil(t, d)
	}
}
