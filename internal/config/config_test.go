package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadMemoryDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE", "Memory")

	cfg := Load()
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 4*time.Hour, cfg.CancellationDeadline)
	assert.Equal(t, "0", cfg.CancellationFee)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 4, cfg.SeatsPerRow)
	assert.Equal(t, 3, cfg.FrontRows)
	assert.Equal(t, "PEN", cfg.DefaultCurrency)
	assert.Equal(t, 5*time.Minute, cfg.ExpiryInterval)
	assert.False(t, cfg.EventsEnabled)
	require.NotNil(t, cfg.TripLocation)
	assert.Equal(t, "America/Lima", cfg.TripLocation.String())
	assert.Empty(t, cfg.DBHost)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE", "mysql")
	t.Setenv("DB_USER", "bus")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "buses")
	t.Setenv("CANCELLATION_DEADLINE", "2h")
	t.Setenv("CANCELLATION_FEE_PERCENT", "12.5")
	t.Setenv("RESERVATION_MAX_RETRIES", "5")
	t.Setenv("EVENTS_ENABLED", "yes")
	t.Setenv("TRIP_TIMEZONE", "UTC")
	t.Setenv("DEFAULT_CURRENCY", "usd")
	t.Setenv("EXPIRY_INTERVAL", "not-a-duration")

	cfg := Load()
	assert.Equal(t, "db", cfg.DBHost)
	assert.Equal(t, 2*time.Hour, cfg.CancellationDeadline)
	assert.Equal(t, "12.5", cfg.CancellationFee)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.True(t, cfg.EventsEnabled)
	assert.Equal(t, time.UTC, cfg.TripLocation)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.Equal(t, 5*time.Minute, cfg.ExpiryInterval, "bad values fall back")
}

func TestRateLimitNormalize(t *testing.T) {
	cfg := RateLimitConfig{Capacity: 0, RefillTokens: -1, RefillInterval: 0, TTL: time.Second}.normalize()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, time.Second, cfg.RefillInterval)
	assert.Equal(t, 5*time.Second, cfg.TTL)
}

func TestLoadRedisAndCacheConfig(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("CACHE_METHODS", "get, head")

	rc := LoadRedisConfig()
	assert.Equal(t, "cache:6380", rc.Addr)
	assert.Equal(t, 2, rc.DB)

	cc := LoadCacheConfig()
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cc.Methods)
	assert.Equal(t, 2*time.Second, cc.TTL)
}
