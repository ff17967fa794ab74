// Package logger builds the daemon's zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/urbanairship/connect-go/internal/config"
)

// New returns a logger honoring the configured level and, for local runs,
// the pretty console format. Production output is plain JSON on stdout.
func New(cfg config.LogConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil {
		level = l
	}

	var w io.Writer = os.Stdout
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", "connect-streamd").
		Logger()
}
