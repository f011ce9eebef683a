package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"unknown", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseLevel(tt.input), tt.input)
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(NewWithWriter(Config{Level: "info"}, &buf), "session")

	logger.Debugw("hidden")
	logger.Infow("request", "command", "launch")
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "session", entry["component"])
	assert.Equal(t, "launch", entry["command"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "ts")
}

func TestNewWithWriterConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "debug", Format: "console"}, &buf)

	logger.Debugw("tick", "delay", "50ms")
	require.NoError(t, logger.Sync())

	assert.Contains(t, buf.String(), "tick")
	assert.Contains(t, buf.String(), `"delay": "50ms"`)
}

func TestNewToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mipsdap.log")
	logger, err := New(Config{Level: "warn", Output: path})
	require.NoError(t, err)

	logger.Infow("dropped")
	logger.Warnw("kept")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Infow("nothing") })
}
