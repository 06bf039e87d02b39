// Package log configures the process-wide zerolog logger and hands out
// component loggers.
package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the base logger.
type Config struct {
	Level   string    // "debug", "info", ...; falls back to LOG_LEVEL, then info
	Output  io.Writer // defaults to os.Stdout
	Service string    // attached to every entry
}

var (
	once sync.Once
	base zerolog.Logger
)

// Configure initialises the base logger exactly once. Later calls are ignored.
func Configure(cfg Config) {
	once.Do(func() {
		level := ParseLevel(cfg.Level, ParseLevel(os.Getenv("LOG_LEVEL"), zerolog.InfoLevel))
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = time.RFC3339

		writer := cfg.Output
		if writer == nil {
			writer = os.Stdout
		}
		service := strings.TrimSpace(cfg.Service)
		if service == "" {
			service = "botcall"
		}

		base = zerolog.New(writer).With().
			Timestamp().
			Str("service", service).
			Logger()
	})
}

// Base returns the configured base logger.
func Base() zerolog.Logger {
	Configure(Config{})
	return base
}

// WithComponent returns a child logger annotated with the component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}

// WithComponentLevel is WithComponent with its own minimum level. The global
// level still applies on top of it.
func WithComponentLevel(component, level string) zerolog.Logger {
	l := WithComponent(component)
	return l.Level(ParseLevel(level, zerolog.InfoLevel))
}

// ParseLevel parses a zerolog level name, returning fallback for blank or
// unknown input.
func ParseLevel(value string, fallback zerolog.Level) zerolog.Level {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(value))
	if err != nil {
		return fallback
	}
	return parsed
}
