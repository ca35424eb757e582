package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_dir: /tmp/out\nunits: imperial\nwrite_gpx: false\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, UnitsImperial, cfg.Units)
	assert.False(t, cfg.WriteGPX)
	assert.True(t, cfg.WriteCSV) // untouched fields keep their default
}

func TestUnitConversions(t *testing.T) {
	metric := Config{Units: UnitsMetric}
	assert.InDelta(t, 36.0, metric.MetersPerSecondToDisplay(10), 1e-9)
	assert.InDelta(t, 100.0, metric.MetersToDisplay(100), 1e-9)

	imperial := Config{Units: UnitsImperial}
	assert.InDelta(t, 22.36936, imperial.MetersPerSecondToDisplay(10), 1e-3)
	assert.InDelta(t, 328.084, imperial.MetersToDisplay(100), 1e-2)
}
