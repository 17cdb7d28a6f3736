package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "./data/qaforge.db", cfg.SQLite.Path)
	assert.False(t, cfg.Redis.Enabled)

	assert.Equal(t, 3, cfg.Scraper.MaxRetries)
	assert.Equal(t, 0.3, cfg.Scraper.BackoffFactor)
	assert.Equal(t, 200, cfg.Scraper.DelayMS)

	assert.Equal(t, 0.9, cfg.Dedup.SimilarityThreshold)
	assert.Equal(t, 0.95, cfg.Dedup.ContextThreshold)

	assert.Equal(t, "en", cfg.LLM.TargetLanguage)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("QAFORGE_SERVER_PORT", "9090")
	t.Setenv("QAFORGE_DEDUP_SIMILARITYTHRESHOLD", "0.8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 0.8, cfg.Dedup.SimilarityThreshold)
}
