package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Engine.PropagationCycles)
	assert.Equal(t, int64(10), cfg.Promotion.MinFrequency)
	assert.InDelta(t, 0.85, cfg.Promotion.MinStability, 1e-9)
	assert.InDelta(t, 0.5, cfg.Decay.Threshold, 1e-9)
	assert.InDelta(t, 5.0, cfg.Fold.StepDegrees, 1e-9)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("POLYLOG_PROPAGATION_CYCLES", "3")
	t.Setenv("POLYLOG_PROMOTION_MIN_FREQUENCY", "25")
	t.Setenv("POLYLOG_DECAY_THRESHOLD", "0.4")
	t.Setenv("POLYLOG_STORAGE_IN_MEMORY", "true")
	t.Setenv("POLYLOG_DATA_DIR", "/tmp/polylog-test")

	cfg := LoadFromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Engine.PropagationCycles)
	assert.Equal(t, int64(25), cfg.Promotion.MinFrequency)
	assert.InDelta(t, 0.4, cfg.Decay.Threshold, 1e-9)
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, "/tmp/polylog-test", cfg.Storage.DataDir)

	// Unset values keep their defaults.
	assert.InDelta(t, 0.85, cfg.Promotion.MinStability, 1e-9)
}

func TestLoad_YAMLLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "polylog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  propagation_cycles: 2
promotion:
  min_frequency: 50
decay:
  threshold: 0.3
`), 0o644))

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Engine.PropagationCycles)
		assert.Equal(t, int64(50), cfg.Promotion.MinFrequency)
		assert.InDelta(t, 0.3, cfg.Decay.Threshold, 1e-9)
		assert.InDelta(t, 0.85, cfg.Promotion.MinStability, 1e-9)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("POLYLOG_PROMOTION_MIN_FREQUENCY", "7")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, int64(7), cfg.Promotion.MinFrequency)
		assert.Equal(t, 2, cfg.Engine.PropagationCycles, "file value survives")
	})

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(dir, "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Engine.PropagationCycles)
	})

	t.Run("malformed file", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("engine: ["), 0o644))
		_, err := Load(bad)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero cycles", func(c *Config) { c.Engine.PropagationCycles = 0 }},
		{"zero budget", func(c *Config) { c.Engine.SamplingBudget = 0 }},
		{"stability above one", func(c *Config) { c.Engine.MinStability = 1.5 }},
		{"negative frequency", func(c *Config) { c.Promotion.MinFrequency = -1 }},
		{"decay threshold above one", func(c *Config) { c.Decay.Threshold = 2 }},
		{"zero fold step", func(c *Config) { c.Fold.StepDegrees = 0 }},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSectionBridges(t *testing.T) {
	cfg := Default()
	cfg.Engine.PropagationCycles = 7
	cfg.Decay.Threshold = 0.42
	cfg.Promotion.MinFrequency = 99
	cfg.Fold.StepDegrees = 2.5

	assert.Equal(t, 7, cfg.Constraint().MaxCycles)
	assert.InDelta(t, 0.42, cfg.Stability().DecayThreshold, 1e-9)
	assert.Equal(t, int64(99), cfg.Registry().MinFrequency)
	assert.InDelta(t, 2.5, cfg.Precompute().StepDegrees, 1e-9)
}
