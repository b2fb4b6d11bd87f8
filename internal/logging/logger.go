package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/domains/internal/config"
)

// NewLogger creates a structured zerolog.Logger carrying the service name,
// platform root and mode from cfg. Empty fields are skipped.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp()

	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.PlatformRoot != "" {
		ctx = ctx.Str("platform_root", cfg.PlatformRoot)
	}
	if cfg.Mode != "" {
		ctx = ctx.Str("mode", cfg.Mode)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
