// Package logger constructs the process-wide zerolog.Logger.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/smilemakc/chessmate/internal/config"
)

// New builds a zerolog.Logger from LoggingConfig. Callers pass the result
// down explicitly (constructor injection); there is no package-level
// global here — cmd/chessmate wires a default and hands it to every
// component that needs one.
func New(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var writer = os.Stderr
	base := zerolog.New(writer).With().Timestamp()
	if cfg.Format != "json" {
		base = zerolog.New(zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}).With().Timestamp()
	}

	log := base.Logger().Level(parseLevel(cfg.Level))
	return log
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
