package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SECRET_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, "HS256", cfg.Algorithm)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenExpire)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("SECRET_KEY", "")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{
		Algorithm:      "HS256",
		HistoryLimit:   50,
		MaxMessageSize: 1024,
		PongWait:       60 * time.Second,
		PingInterval:   54 * time.Second,
	}
	require.NoError(t, base.Validate())

	rsa := base
	rsa.Algorithm = "RS256"
	assert.Error(t, rsa.Validate())

	unknown := base
	unknown.Algorithm = "nope"
	assert.Error(t, unknown.Validate())

	slowPing := base
	slowPing.PingInterval = time.Minute
	assert.Error(t, slowPing.Validate())

	noPing := base
	noPing.PingInterval = 0
	assert.NoError(t, noPing.Validate())

	noHistory := base
	noHistory.HistoryLimit = 0
	assert.Error(t, noHistory.Validate())
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, Config{LogLevel: "DEBUG"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, Config{LogLevel: "warning"}.SlogLevel())
	assert.Equal(t, slog.LevelError, Config{LogLevel: "error"}.SlogLevel())
}
