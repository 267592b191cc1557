package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so packages depend on infra for logging.
type Logger = zerolog.Logger

// NewLogger constructs the service logger. Development gets a console writer
// at debug level; every other environment logs JSON at info.
func NewLogger(appEnv string) Logger {
	return newLogger(appEnv, os.Stdout)
}

func newLogger(appEnv string, out io.Writer) Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "reelforge").
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	return logger
}

// Component returns a child logger tagged with the component name.
func Component(logger Logger, name string) Logger {
	return logger.With().Str("component", name).Logger()
}

// NopLogger discards everything. Used by tests and optional collaborators.
func NopLogger() Logger {
	return zerolog.Nop()
}
