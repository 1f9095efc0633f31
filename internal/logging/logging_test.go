package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartbulb/smartbulb-go/pkg/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), tt.input)
	}
}

func TestJSONDefaultAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "smartbulb-server", "1.0")

	logger.Debug("hidden")
	logger.Info("device registered", "device", "PRO_001")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "device registered", record["msg"])
	assert.Equal(t, "smartbulb-server", record["service"])
	assert.Equal(t, "1.0", record["version"])
	assert.Equal(t, "PRO_001", record["device"])
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LoggingConfig{Level: "debug", Format: "text"}, "smartbulb-client", "dev")

	logger.Debug("probe skipped", "ns", 3)
	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "service=smartbulb-client")
	assert.Contains(t, out, "ns=3")
}

func TestNewReturnsLogger(t *testing.T) {
	assert.NotNil(t, New(config.LoggingConfig{Output: "stdout"}, "svc", "v"))
	assert.NotNil(t, New(config.LoggingConfig{}, "svc", "v"))
}
