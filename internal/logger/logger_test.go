package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "json config", config: &Config{Level: "debug", Format: "json", Output: io.Discard}},
		{name: "console config", config: &Config{Level: "info", Format: "console", Output: io.Discard}},
		{name: "nil output falls back", config: &Config{Level: "warn"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, New(tt.config))
		})
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "info", Format: "json", Output: buf})

	log.Info("connected")

	entry := decode(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "connected", entry["message"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_Component(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "info", Format: "json", Output: buf})

	log.Component("session").With().Str("source", "sales").Logger().Info("ready")

	entry := decode(t, buf)
	assert.Equal(t, "session", entry["component"])
	assert.Equal(t, "sales", entry["source"])
}

func TestLogger_WarnWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "warn", Format: "json", Output: buf})

	log.WarnWith("batch handler declined", errors.New("bad row"), map[string]interface{}{
		"batch": 3,
	})

	entry := decode(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "bad row", entry["error"])
	assert.Equal(t, float64(3), entry["batch"])
}

func TestLogger_Context(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "info", Format: "json", Output: buf})

	ctx := log.WithContext(context.Background())
	FromContext(ctx).Info("from context")

	assert.Equal(t, "from context", decode(t, buf)["message"])
}

func TestLogger_FromContextFallsBackToGlobal(t *testing.T) {
	buf := &bytes.Buffer{}
	prev := global
	SetGlobal(New(&Config{Level: "info", Format: "json", Output: buf}))
	defer SetGlobal(prev)

	FromContext(context.Background()).Info("global")

	assert.Equal(t, "global", decode(t, buf)["message"])
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFunc  func(*Logger)
		expected bool
	}{
		{"debug level logs debug", "debug", func(l *Logger) { l.Debug("d") }, true},
		{"info level skips debug", "info", func(l *Logger) { l.Debug("d") }, false},
		{"error level logs error", "error", func(l *Logger) { l.Error("e") }, true},
		{"error level skips warn", "error", func(l *Logger) { l.Warn("w") }, false},
		{"unknown level means info", "loud", func(l *Logger) { l.Info("i") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.logFunc(New(&Config{Level: tt.level, Format: "json", Output: buf}))

			if tt.expected {
				assert.NotEmpty(t, buf.String(), "expected log output")
			} else {
				assert.Empty(t, buf.String(), "expected no log output")
			}
		})
	}
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Component("x").Error("dropped") })
}

func BenchmarkLogger_Info(b *testing.B) {
	log := New(&Config{Level: "info", Format: "json", Output: io.Discard})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		log.Info("benchmark message")
	}
}
