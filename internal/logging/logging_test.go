package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RoutesLevelsToFiles(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "nested", "global.log")
	summaryPath := filepath.Join(dir, "summary.log")
	var stdout bytes.Buffer

	logger, err := New(Options{
		GlobalPath:  globalPath,
		SummaryPath: summaryPath,
		Level:       "debug",
		Stdout:      &stdout,
	})
	require.NoError(t, err)

	logger.Debug("debug-line")
	logger.WithField("action", "auth").Info("info-line")
	logger.Warn("warn-line")
	require.NoError(t, logger.Close())

	global, err := os.ReadFile(globalPath)
	require.NoError(t, err)
	summary, err := os.ReadFile(summaryPath)
	require.NoError(t, err)

	assert.Contains(t, string(global), "debug-line")
	assert.Contains(t, string(global), "info-line")
	assert.Contains(t, string(global), "warn-line")

	assert.NotContains(t, string(summary), "debug-line")
	assert.Contains(t, string(summary), "info-line")
	assert.Contains(t, string(summary), `"action":"auth"`)
	assert.Contains(t, string(summary), "warn-line")

	assert.Contains(t, stdout.String(), "info-line")
}

func TestNew_RespectsLevel(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Options{
		GlobalPath:  filepath.Join(dir, "g.log"),
		SummaryPath: filepath.Join(dir, "s.log"),
		Level:       "warn",
		Stdout:      &bytes.Buffer{},
	})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Error("kept")
	require.NoError(t, logger.Close())

	global, err := os.ReadFile(filepath.Join(dir, "g.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(global), "dropped")
	assert.Contains(t, string(global), "kept")
}

func TestNew_InvalidLevel(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Options{
		GlobalPath:  filepath.Join(dir, "g.log"),
		SummaryPath: filepath.Join(dir, "s.log"),
		Level:       "chatty",
	})
	assert.Error(t, err)
}
