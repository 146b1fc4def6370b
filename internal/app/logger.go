package app

import (
	"io"
	"os"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/config"
	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Output is JSON in production and a
// console writer elsewhere.
func NewLogger(cfg config.ServerConfig, version string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if !cfg.IsProduction() {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("version", version).Logger()
}
