package config_test

import (
	"testing"
	"time"

	"casguard/backend/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"45s", 45 * time.Second},
		{"30m", 30 * time.Minute},
		{"1h", time.Hour},
		{"1d", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{" 15M ", 15 * time.Minute},
	}
	for _, tt := range tests {
		got, err := config.ParseDuration(tt.in)
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseDuration_Invalid(t *testing.T) {
	for _, in := range []string{"", "Xd", "15", "m30", "1w"} {
		_, err := config.ParseDuration(in)
		assert.Error(t, err, in)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", config.FormatDuration(45*time.Second))
	assert.Equal(t, "15m", config.FormatDuration(15*time.Minute))
	assert.Equal(t, "6h", config.FormatDuration(6*time.Hour))
	assert.Equal(t, "7d", config.FormatDuration(7*24*time.Hour))
}

func TestLoad_RequiresToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.SourceRefreshInterval)
	assert.Equal(t, 15*time.Minute, cfg.RecheckInterval)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.SeenTTL)
	assert.Equal(t, 50, cfg.MessageCacheLimit)
	assert.False(t, cfg.AdminEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("RECHECK_INTERVAL", "5m")
	t.Setenv("SEEN_TTL", "3d")
	t.Setenv("ADMIN_ENABLED", "true")
	t.Setenv("ADMIN_TOKEN", "secret")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.RecheckInterval)
	assert.Equal(t, 3*24*time.Hour, cfg.SeenTTL)
	assert.True(t, cfg.AdminEnabled)
	// Session secret falls back to the admin token when unset.
	assert.Equal(t, "secret", cfg.AdminSessionSecret)
}
