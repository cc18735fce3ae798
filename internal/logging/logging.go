// Package logging builds the zerolog loggers used across epmgr.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ConsoleTimeFormat matches the timestamp layout of the desktop console.
const ConsoleTimeFormat = "15:04:05.000"

// Options selects level and output format.
type Options struct {
	Level  string // debug|info|warn|error|off
	Format string // console|json
	Out    io.Writer
}

// New returns a logger for the given options. Unknown levels fall back to info.
func New(o Options) zerolog.Logger {
	out := o.Out
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(o.Format, "json") {
		return zerolog.New(out).Level(ParseLevel(o.Level)).With().Timestamp().Logger()
	}
	cw := zerolog.ConsoleWriter{Out: out, TimeFormat: ConsoleTimeFormat, NoColor: !isTerminal(out)}
	return zerolog.New(cw).Level(ParseLevel(o.Level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "disabled":
		return zerolog.Disabled
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "info", "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
