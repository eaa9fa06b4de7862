// Package logging builds the zerolog logger used across dynaquery.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls log output.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	// Format is "json" (default) or "console".
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

// Configure builds a logger from cfg. JSON goes to stdout unless Format is
// "console"; a disabled logger discards everything.
func Configure(cfg Config) zerolog.Logger {
	return configure(cfg, os.Stdout)
}

func configure(cfg Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	output := out
	if !cfg.Enabled {
		output = io.Discard
	} else if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("component", "dynaquery").
		Logger()
}
