package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobpilot/orchestrator/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "career_docs_queue", cfg.CareerDocsQueue)
	assert.Equal(t, "career_docs_response_queue", cfg.CareerDocsResponseQueue)
	assert.Equal(t, "application_manager_queue", cfg.ApplicationManagerQueue)
	assert.Equal(t, "providers_queue", cfg.ProvidersQueue)
	assert.Equal(t, "skyvern_queue", cfg.SkyvernQueue)
	assert.Equal(t, 100, cfg.MaxInflight)
	assert.Equal(t, 10*time.Minute, cfg.RefillPeriod)
	assert.True(t, cfg.ProvidersEnabled)
	assert.False(t, cfg.SkyvernEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("MAX_INFLIGHT", "5")
	t.Setenv("REFILL_PERIOD", "30s")
	t.Setenv("SKYVERN_ENABLED", "true")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, 5, cfg.MaxInflight)
	assert.Equal(t, 30*time.Second, cfg.RefillPeriod)
	assert.True(t, cfg.SkyvernEnabled)
}

func TestLoad_RejectsNegativeMaxInflight(t *testing.T) {
	t.Setenv("MAX_INFLIGHT", "-1")
	_, err := config.Load()
	require.Error(t, err)
}

func TestProviderPortals_Default(t *testing.T) {
	set, err := config.ProviderPortals("")
	require.NoError(t, err)
	assert.Len(t, set, 12)
	assert.Contains(t, set, "workday")
	assert.Contains(t, set, "infojobs_net")
	assert.NotContains(t, set, "custom")
}

func TestProviderPortals_FileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portals.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider_portals:\n  - Workday\n  - lever\n"), 0o600))

	set, err := config.ProviderPortals(path)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.Contains(t, set, "workday")
	assert.Contains(t, set, "lever")
	assert.NotContains(t, set, "greenhouse")
}

func TestProviderPortals_EmptyFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portals.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider_portals: []\n"), 0o600))
	_, err := config.ProviderPortals(path)
	require.Error(t, err)
}
