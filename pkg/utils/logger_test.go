package utils

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"TRACE":   LogLevelDebug,
		"info":    LogLevelInfo,
		"":        LogLevelInfo,
		"warning": LogLevelWarn,
		"error":   LogLevelError,
		"fatal":   LogLevelFatal,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
	assert.Equal(t, LogFormatJSON, ParseLogFormat(" JSON "))
	assert.Equal(t, LogFormatText, ParseLogFormat("text"))
}

func TestJSONLoggerCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: LogFormatJSON, Output: &buf})
	require.NoError(t, err)

	logger.WithField("run", "r1").WithFields(map[string]interface{}{"stage": "Merged"}).
		Info("merged %d entries", 3)
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "merged 3 entries", entry["msg"])
	assert.Equal(t, "r1", entry["run"])
	assert.Equal(t, "Merged", entry["stage"])
	assert.Equal(t, "info", entry["level"])
}

func TestLoggerLevelAndFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	logger, err := NewLogger(&LoggerConfig{Level: LogLevelWarn, Output: &buf, FilePath: path})
	require.NoError(t, err)
	defer logger.Close()

	logger.Info("skipped")
	logger.Warn("kept")
	logger.SetLevel(LogLevelDebug)
	logger.Debug("now visible")

	out := buf.String()
	assert.NotContains(t, out, "skipped")
	assert.Contains(t, out, "kept")
	assert.Contains(t, out, "now visible")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "kept")
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitGlobalLogger(&LoggerConfig{Level: LogLevelInfo, Output: &buf}))
	GetGlobalLogger().Info("hello")
	assert.Contains(t, buf.String(), "hello")
}
