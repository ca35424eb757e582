package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGPXWriterWritesTrackpoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "track.gpx")

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	w := NewGPXWriter(path, start)

	require.NoError(t, w.AddPoint(0, 473000000, 85000000, 120.5))
	require.NoError(t, w.AddPoint(1_000_000, 473000050, 85000025, 121.0))
	assert.Equal(t, 2, w.Points())
	require.NoError(t, w.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	s := string(contents)
	assert.Contains(t, s, "<gpx")
	assert.Contains(t, s, "lat=\"47.3000000\" lon=\"8.5000000\"")
	assert.Contains(t, s, "2024-05-01T12:00:01")
	assert.Contains(t, s, "</gpx>")
}

func TestGPXWriterNoPointsWritesNoFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.gpx")

	w := NewGPXWriter(path, time.Time{})
	require.NoError(t, w.Close())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
