package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SUPABASE_URL", "https://proj.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("GENERATION_API_URL", "https://api.example.com/")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "https://api.example.com", cfg.GenerationAPIURL, "trailing slash is stripped")
	assert.Equal(t, cfg.GenerationAPIURL, cfg.ChatAPIURL, "chat defaults to the generation base")
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.Len(t, cfg.ShortAdURLs, 2)
	assert.Len(t, cfg.LongAdURLs, 2)
	assert.False(t, cfg.ShareEnabled())
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")
	t.Setenv("GENERATION_API_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_URL")
	assert.Contains(t, err.Error(), "GENERATION_API_URL")
}

func TestHistoryLimitClamping(t *testing.T) {
	setRequired(t)

	t.Setenv("HISTORY_LIMIT", "3")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.HistoryLimit)

	t.Setenv("HISTORY_LIMIT", "50")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.HistoryLimit)
}

func TestAdPoolOverride(t *testing.T) {
	setRequired(t)
	t.Setenv("SHORT_AD_URLS", "https://ads.example/a.mp4, https://ads.example/b.mp4 ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://ads.example/a.mp4", "https://ads.example/b.mp4"}, cfg.ShortAdURLs)
}

func TestS3BlockValidation(t *testing.T) {
	setRequired(t)
	t.Setenv("S3_BUCKET", "exports")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_REGION")

	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("S3_ACCESS_KEY", "key")
	t.Setenv("S3_SECRET_KEY", "secret")
	t.Setenv("S3_PUBLIC_BASE_URL", "https://cdn.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.ShareEnabled())
	assert.Equal(t, "exports", cfg.S3Prefix)
}
