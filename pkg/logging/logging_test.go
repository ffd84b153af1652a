package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		level    string
		debug    bool
		info     bool
		warnings bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warn", false, false, true},
		{"", false, false, true},
		{"bogus", false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Level: tt.level, Output: &buf})

			log.Debug().Msg("debug message")
			log.Info().Msg("info message")
			log.Warn().Msg("warn message")

			out := buf.String()
			assert.Equal(t, tt.debug, bytes.Contains([]byte(out), []byte("debug message")))
			assert.Equal(t, tt.info, bytes.Contains([]byte(out), []byte("info message")))
			assert.Equal(t, tt.warnings, bytes.Contains([]byte(out), []byte("warn message")))
		})
	}
}

func TestPretty(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Pretty: true, Output: &buf})
	log.Info().Str("plugin", "pid").Msg("plugin loaded")
	assert.Contains(t, buf.String(), "plugin loaded")
	assert.Contains(t, buf.String(), "plugin=")
	assert.NotContains(t, buf.String(), `"message"`)
}
