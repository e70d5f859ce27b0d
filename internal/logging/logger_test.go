package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", "json")

	Debug("hidden")
	Info("uploaded", "bucket", "b", "key", "out.zip")

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
	assert.Equal(t, "uploaded", record["msg"])
	assert.Equal(t, "b", record["bucket"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestInitText(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "text")

	Debug("walking", "dir", "/tmp/build")
	assert.Contains(t, buf.String(), "msg=walking")
	assert.Contains(t, buf.String(), "dir=/tmp/build")
}
