package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/smilemakc/chessmate/internal/config"
)

func TestNew_LevelParsing(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		log := New(config.LoggingConfig{Level: tt.level, Format: "json"})
		assert.Equal(t, tt.expected, log.GetLevel())
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	log := New(config.LoggingConfig{Level: "info", Format: "console"})
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
