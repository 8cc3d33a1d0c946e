package domain

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Enabled bool

	// SessionTTL bounds how long a session slot survives without a stop
	// record, so counters of crashed NAS sessions decay.
	SessionTTL time.Duration
	KeyPrefix  string
}

func LoadFromEnv() *Config {
	return &Config{
		Enabled:    getEnvBool("QUOTA_ENABLED", true),
		SessionTTL: time.Duration(getEnvInt("QUOTA_SESSION_TTL_SECONDS", 86400)) * time.Second,
		KeyPrefix:  getEnvString("QUOTA_KEY_PREFIX", "netbill:sessions"),
	}
}

func getEnvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
