package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifuryst/herald/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "server:\n  port: 8080\n")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, 20, cfg.Queue.BatchSize)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 3, cfg.Queue.MaxVariantRetries)
	assert.Equal(t, "15m", cfg.Queue.StuckTimeout)
	assert.Equal(t, "https://graph.facebook.com", cfg.Publishers.Facebook.BaseURL)
	assert.Equal(t, 10, cfg.Publishers.Instagram.PollAttempts)

	table, err := cfg.Queue.BackoffTable()
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Minute, 15 * time.Minute, 30 * time.Minute}, table)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
queue:
  batch_size: 5
  stuck_timeout: 30m
  backoff: ["1m", "2m"]
alert:
  from: worker@example.com
  to: ops@example.com
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Queue.BatchSize)
	assert.Equal(t, 30*time.Minute, config.MustDuration(cfg.Queue.StuckTimeout))
	assert.Equal(t, "ops@example.com", cfg.Alert.To)

	table, err := cfg.Queue.BackoffTable()
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Minute, 2 * time.Minute}, table)
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "queue:\n  story_grace: soon\n")

	_, err := config.LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue.story_grace")
}

func TestLoadConfig_InvalidBackoff(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "queue:\n  backoff: [\"5m\", \"later\"]\n")

	_, err := config.LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue.backoff[1]")
}
