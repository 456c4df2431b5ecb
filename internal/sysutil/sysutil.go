// Package sysutil holds process-level helpers shared by the entrypoint.
package sysutil

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogging configures the global zerolog output and level. Pretty
// console output is for development; production stays on JSON lines.
func SetupLogging(level string, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	SetLogLevel(level)
}

// SetLogLevel sets the global zerolog level from a string value. Unknown
// values fall back to info.
func SetLogLevel(lvl string) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
