// Package observability provides the process logger, the Prometheus
// registry with its /metrics listener, and the OpenTelemetry tracer provider.
package observability

import (
	"fmt"
	"strings"

	"github.com/netprofile/netbill/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger from observability.log_level and
// observability.log_format (json or console).
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Observability.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("%w: observability.log_level: %v", config.ErrInvalidConfig, err)
	}

	var zc zap.Config
	switch strings.ToLower(cfg.Observability.LogFormat) {
	case "", "json":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("%w: observability.log_format %q", config.ErrInvalidConfig, cfg.Observability.LogFormat)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return log.With(
		zap.String("service", serviceName(cfg)),
		zap.String("env", cfg.Environment),
	), nil
}

func serviceName(cfg config.Config) string {
	if cfg.Observability.ServiceName != "" {
		return cfg.Observability.ServiceName
	}
	if cfg.AppName != "" {
		return cfg.AppName
	}
	return "netbill"
}
