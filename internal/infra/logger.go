package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so packages can accept a logger without
// importing zerolog themselves.
type Logger = zerolog.Logger

// LoggerOptions configures NewLoggerWith. Zero values pick the defaults.
type LoggerOptions struct {
	AppEnv  string
	Level   string
	Service string
	Output  io.Writer
}

// NewLogger builds the process logger. Development gets debug level and
// console output; other environments log JSON at info. An explicit level
// ("debug", "warn", ...) overrides the environment default.
func NewLogger(appEnv, level string) zerolog.Logger {
	return NewLoggerWith(LoggerOptions{AppEnv: appEnv, Level: level})
}

func NewLoggerWith(opts LoggerOptions) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if opts.AppEnv == "development" {
		lvl = zerolog.DebugLevel
	}
	if opts.Level != "" {
		if parsed, err := zerolog.ParseLevel(opts.Level); err == nil {
			lvl = parsed
		}
	}
	if opts.Service == "" {
		opts.Service = "aistudio"
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.AppEnv == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", opts.Service).
		Logger()
}

// Component returns a child of l tagged with component. A nil l yields a
// discarding logger.
func Component(l *Logger, component string) *Logger {
	if l == nil {
		return DiscardLogger()
	}
	child := l.With().Str("component", component).Logger()
	return &child
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *Logger {
	l := zerolog.New(io.Discard)
	return &l
}
