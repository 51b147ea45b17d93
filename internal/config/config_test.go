package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 25, cfg.Agent.MaxIterations)
	assert.Equal(t, 5, cfg.Agent.PlanningRetries)
	assert.Equal(t, 3, cfg.Agent.ElementRetryCeiling)
	assert.Equal(t, 30*time.Second, cfg.Browser.NavigationTimeout)
	assert.False(t, cfg.Store.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := []byte(`
logger:
  level: debug
  format: json
browser:
  headless: false
  window_width: 1280
  window_height: 720
agent:
  max_iterations: 7
  element_retry_ceiling: 2
  llm:
    default_powerful_model: gemini-test
`)
	require.NoError(t, os.WriteFile(cfgPath, content, 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1280, cfg.Browser.WindowWidth)
	assert.Equal(t, 7, cfg.Agent.MaxIterations)
	assert.Equal(t, 2, cfg.Agent.ElementRetryCeiling)
	assert.Equal(t, "gemini-test", cfg.Agent.LLM.DefaultPowerfulModel)
	// Defaults survive a partial file.
	assert.Equal(t, 5, cfg.Agent.PlanningRetries)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	// Point at a directory with no config file at all.
	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(wd) })
	require.NoError(t, os.Chdir(t.TempDir()))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Agent.MaxIterations)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("WEBPILOT_AGENT_MAX_ITERATIONS", "3")

	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(wd) })
	require.NoError(t, os.Chdir(t.TempDir()))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Agent.MaxIterations)
}

func TestValidate_Rejections(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero iterations", func(c *Config) { c.Agent.MaxIterations = 0 }, "max_iterations"},
		{"zero planning retries", func(c *Config) { c.Agent.PlanningRetries = 0 }, "planning_retries"},
		{"zero retry ceiling", func(c *Config) { c.Agent.ElementRetryCeiling = 0 }, "element_retry_ceiling"},
		{"tiny snapshot budget", func(c *Config) { c.Agent.SnapshotByteBudget = 100 }, "snapshot_byte_budget"},
		{"bad window", func(c *Config) { c.Browser.WindowWidth = 0 }, "window size"},
		{"store without url", func(c *Config) { c.Store.Enabled = true; c.Store.URL = "" }, "store.url"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestNormalize_ExpandsStateDir(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Agent.StateDir = "~/.webpilot-test"
	require.NoError(t, cfg.normalize())
	assert.NotContains(t, cfg.Agent.StateDir, "~")
	assert.True(t, filepath.IsAbs(cfg.Agent.StateDir))
}
