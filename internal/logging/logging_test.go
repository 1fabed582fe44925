package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	logger, closer, err := New(Options{Level: "info", Path: path, Quiet: true})
	require.NoError(t, err)

	logger.Info("index rebuilt", slog.String("library_id", "abc"), slog.Int("vectors", 3))
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "index rebuilt", entry["msg"])
	assert.Equal(t, "abc", entry["library_id"])
	assert.Equal(t, float64(3), entry["vectors"])
}

func TestNew_LevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	logger, closer, err := New(Options{Level: "warn", Path: path, Quiet: true})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("visible")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("bogus")
	assert.Error(t, err)
}

func TestFileSink_RollsOverAndPrunes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	sink, err := newFileSink(path, 64, 2)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	line := []byte(strings.Repeat("x", 40) + "\n")
	for i := 0; i < 5; i++ {
		_, err := sink.Write(line)
		require.NoError(t, err)
	}

	// The active file still exists and holds the latest line.
	_, err = os.Stat(path)
	require.NoError(t, err)

	backups, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.NotEmpty(t, backups, "rollover produced timestamped backups")
	assert.LessOrEqual(t, len(backups), 2, "old backups are pruned")
}

func TestFileSink_OversizedEntryStillWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	sink, err := newFileSink(path, 16, 1)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	big := []byte(strings.Repeat("y", 64))
	n, err := sink.Write(big)
	require.NoError(t, err)
	assert.Equal(t, len(big), n)
}
