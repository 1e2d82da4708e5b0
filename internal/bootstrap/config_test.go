package bootstrap

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhanmatrix/dhanmatrix/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("json honours level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, config.LoggingConfig{Level: "warn", Format: "json"})

		logger.Info("hidden")
		logger.Warn("role lookup timed out", "user_id", "u-1")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "role lookup timed out", line["msg"])
		assert.Equal(t, "u-1", line["user_id"])
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, config.LoggingConfig{Level: "debug", Format: "text"})

		logger.Debug("resolving role")

		assert.Contains(t, buf.String(), "msg=\"resolving role\"")
	})
}

func TestLoadConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GUARD_WAIT_BUDGET", "250ms")
	t.Setenv("APP_COOKIE_DOMAIN", "co.in")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "250ms", cfg.HTTP.GuardWaitBudget.String())
	assert.Empty(t, cfg.HTTP.CookieDomain, "public suffixes are rejected")
}

func TestLoadConfig_RejectsInvalidCombination(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_MODE", "mock")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "AUTH_MODE=mock requires APP_ENV=development")
}

func TestLoadConfig_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("APP_ENV=development\nAUTH_MODE=mock\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("APP_ENV")
		os.Unsetenv("AUTH_MODE")
	})

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, config.AuthModeMock, cfg.Auth.Mode)
}
