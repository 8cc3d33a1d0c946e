package domain_test

import (
	"testing"
	"time"

	"github.com/netprofile/netbill/internal/quota/domain"
	"github.com/stretchr/testify/assert"
)

func TestLoadFromEnv(t *testing.T) {
	// 1. Default fallback
	t.Setenv("QUOTA_ENABLED", "")
	t.Setenv("QUOTA_SESSION_TTL_SECONDS", "")
	t.Setenv("QUOTA_KEY_PREFIX", "")
	cfg := domain.LoadFromEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "netbill:sessions", cfg.KeyPrefix)

	// 2. Custom Env
	t.Setenv("QUOTA_ENABLED", "false")
	t.Setenv("QUOTA_SESSION_TTL_SECONDS", "600")
	t.Setenv("QUOTA_KEY_PREFIX", "nb")

	cfg = domain.LoadFromEnv()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "nb", cfg.KeyPrefix)

	// 3. Garbage falls back
	t.Setenv("QUOTA_SESSION_TTL_SECONDS", "ten")
	assert.Equal(t, 24*time.Hour, domain.LoadFromEnv().SessionTTL)
}
