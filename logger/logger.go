package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/moasakthi/metering/config"
)

// New returns a configured zerolog.Logger. Level is driven by cfg.LogLevel
// (INFO unless LOG_LEVEL is set); an unrecognized value falls back to info,
// or to debug in development.
func New(cfg *config.Config) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr}

	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		lvl = zerolog.InfoLevel
		if cfg.IsDevelopment() {
			lvl = zerolog.DebugLevel
		}
	}
	zerolog.SetGlobalLevel(lvl)
	return zerolog.New(out).With().Timestamp().Logger()
}
