package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 7171, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "sqlite", cfg.Storage.StorageEngine)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 50, cfg.LLM.BatchSize)
	assert.Equal(t, 4*time.Second, cfg.LLM.FirstItemTimeout)
	assert.Equal(t, 30*time.Second, cfg.LLM.BatchTimeout)
	assert.Equal(t, 5, cfg.Engine.RefillThreshold)
	assert.Equal(t, 2, cfg.Engine.NumWorkers)
	assert.Equal(t, 32, cfg.Engine.QueueSize)
	assert.InDelta(t, 0.15, cfg.Engine.Epsilon, 1e-9)
	assert.Equal(t, 3, cfg.Engine.MaxRetries)
	assert.Equal(t, "development", cfg.Security.SecurityMode)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("PERSPECTIVE_PORT", "9191")
	t.Setenv("PERSPECTIVE_STORAGE_ENGINE", "postgres")
	t.Setenv("PERSPECTIVE_POSTGRES_DSN", "postgres://localhost/perspective")
	t.Setenv("PERSPECTIVE_LLM_PROVIDER", "anthropic")
	t.Setenv("PERSPECTIVE_BATCH_SIZE", "25")
	t.Setenv("PERSPECTIVE_FIRST_ITEM_TIMEOUT", "2s")
	t.Setenv("PERSPECTIVE_BANDIT_EPSILON", "0.25")
	t.Setenv("PERSPECTIVE_SECURITY_MODE", "production")
	t.Setenv("PERSPECTIVE_API_TOKEN", "secret-token")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.StorageEngine)
	assert.Equal(t, "postgres://localhost/perspective", cfg.Storage.PostgresDSN)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 25, cfg.LLM.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.LLM.FirstItemTimeout)
	assert.InDelta(t, 0.25, cfg.Engine.Epsilon, 1e-9)
	assert.Equal(t, "production", cfg.Security.SecurityMode)
	assert.Equal(t, "secret-token", cfg.Security.APIToken)
}

func TestLoadConfigIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("PERSPECTIVE_PORT", "not-a-number")
	t.Setenv("PERSPECTIVE_BATCH_TIMEOUT", "soon")
	t.Setenv("PERSPECTIVE_BANDIT_EPSILON", "lots")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 7171, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.LLM.BatchTimeout)
	assert.InDelta(t, 0.15, cfg.Engine.Epsilon, 1e-9)
}
