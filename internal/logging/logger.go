package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New constructs the service logger. Development environments get a console writer.
func New(appEnv, service string) zerolog.Logger {
	return NewWithWriter(appEnv, service, os.Stdout)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(appEnv, service string, out io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "dev" || appEnv == "development" {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
