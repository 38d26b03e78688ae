package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"", InfoLevel},
		{"warning", WarnLevel},
		{"WARN", WarnLevel},
		{"error", ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("verbose")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestComponentLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLogLevel(DebugLevel)
	t.Cleanup(func() { SetOutput(&bytes.Buffer{}) })

	log := Component("scheduler")
	err := errors.New().New(errors.ErrTimeout)
	log.ErrorWithCode(err).Msg("cycle failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "operation_timeout", entry["error_code"])
	assert.Equal(t, "cycle failed", entry["message"])
	assert.Equal(t, "error", entry["level"])
}
