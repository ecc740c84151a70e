package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mipt-srf/probe-station/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestNewWithWriter(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
		logger.Debug("hidden")
		logger.Info("datafile loaded", slog.String("mode", "PQPUND"))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1)
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
		assert.Equal(t, "datafile loaded", entry["msg"])
		assert.Equal(t, "PQPUND", entry["mode"])
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)
		logger.Debug("fit iteration", slog.Int("iter", 3))
		assert.Contains(t, buf.String(), "iter=3")
	})
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "probe.log")
	logger, closer, err := New(config.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: path,
	})
	require.NoError(t, err)
	logger.Warn("value not found within tolerance", slog.Float64("target", 0.5))
	require.NoError(t, closer.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"level":"WARN"`)
	assert.Contains(t, string(content), "value not found within tolerance")
}

func TestNewConsoleOutput(t *testing.T) {
	logger, closer, err := New(config.LoggingConfig{Level: "error", Format: "text", Output: "console"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.NoError(t, closer.Close())
}
