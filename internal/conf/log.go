package conf

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string // trace, debug, info, warn, error; default info
	Format string // "console" for human-readable output, anything else is JSON
}

// SetupLogging configures the global zerolog logger. Logs go to stderr so
// stdout stays free for the MCP stdio transport.
func SetupLogging(cfg LogConfig) {
	SetupLoggingTo(os.Stderr, cfg)
}

// SetupLoggingTo is SetupLogging with an explicit writer
func SetupLoggingTo(w io.Writer, cfg LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}
