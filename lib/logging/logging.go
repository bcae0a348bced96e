// Package logging configures zerolog for the command line tools.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FORMAT_CONSOLE = "console"
	FORMAT_JSON    = "json"
)

// Setup builds a logger writing to w and installs it as the global logger.
func Setup(w io.Writer, level string, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return log.Logger, fmt.Errorf("bad log level %q: %w", level, err)
	}
	out := w
	switch format {
	case FORMAT_CONSOLE:
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	case FORMAT_JSON:
	default:
		return log.Logger, fmt.Errorf("unknown log format %q", format)
	}
	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	log.Logger = logger
	return logger, nil
}
