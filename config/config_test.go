package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "gradebook", cfg.App.Name)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.False(t, cfg.UsePostgres())
	assert.False(t, cfg.CollectNotifyErrors())
	assert.Equal(t, 30*time.Second, cfg.Evaluation.LockTTL)
	assert.Equal(t, 5*time.Minute, cfg.Evaluation.StandingCacheTTL)
	assert.Equal(t, []string{"*"}, cfg.HTTP.CORSOrigins)
	assert.Empty(t, cfg.HTTP.APIKeyHashes)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"STORAGE_BACKEND":       "postgres",
		"DATABASE_URL":          "postgres://u:p@localhost:5432/gradebook",
		"NOTIFY_FAILURE_POLICY": "collect",
		"HTTP_API_KEY_HASHES":   "h1,h2",
		"REDIS_ENABLED":         "true",
		"EVAL_LOCK_RETRY_DELAY": "50ms",
	})
	require.NoError(t, err)

	assert.True(t, cfg.UsePostgres())
	assert.True(t, cfg.CollectNotifyErrors())
	assert.Equal(t, []string{"h1", "h2"}, cfg.HTTP.APIKeyHashes)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 50*time.Millisecond, cfg.Evaluation.LockRetryDelay)
}

func TestLoadFrom_CollectsValidationErrors(t *testing.T) {
	_, err := LoadFrom(map[string]string{
		"STORAGE_BACKEND":       "postgres",
		"NOTIFY_FAILURE_POLICY": "best_effort",
		"LOG_LEVEL":             "trace",
	})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "DATABASE_URL is required")
	assert.Contains(t, msg, "NOTIFY_FAILURE_POLICY")
	assert.Contains(t, msg, "LOG_LEVEL")
}

func TestValidate_ProductionNeedsAPIKeys(t *testing.T) {
	_, err := LoadFrom(map[string]string{"APP_ENV": "production"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_API_KEY_HASHES")

	cfg, err := LoadFrom(map[string]string{"APP_ENV": "production", "HTTP_API_KEY_HASHES": "x"})
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestLoadFrom_TrustedProxies(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"HTTP_TRUSTED_PROXIES": "10.0.0.0/8, 192.168.1.7"})
	require.NoError(t, err)

	prefixes, err := cfg.HTTP.TrustedProxyPrefixes()
	require.NoError(t, err)
	require.Len(t, prefixes, 2)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "192.168.1.7/32", prefixes[1].String())

	_, err = LoadFrom(map[string]string{"HTTP_TRUSTED_PROXIES": "not-an-ip"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_TRUSTED_PROXIES")
}
