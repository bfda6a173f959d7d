// Package logger provides the configured zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ServiceName is attached to every log line.
const ServiceName = "cardforge"

// New returns a logger writing JSON lines to w at the given level.
// An unknown or empty level means info.
func New(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Str("service", ServiceName).
		Timestamp().
		Logger()
}

// Init installs a stderr logger as the global zerolog logger. Stdout is reserved
// for command output and the MCP stdio transport.
func Init(level string) zerolog.Logger {
	l := New(os.Stderr, level)
	log.Logger = l
	return l
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
