// Package logging configures the logrus logger from the verbosity level.
//
// Levels follow the old console verbosity: 0 only critical errors, 1 run
// summaries, 2 per-event changes, 3 warnings and skipped events included,
// 4 debug, 5 everything.
package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// Level maps a verbosity level to a logrus level.
func Level(verbosity int) log.Level {
	switch {
	case verbosity <= 0:
		return log.ErrorLevel
	case verbosity == 1:
		return log.WarnLevel
	case verbosity == 2, verbosity == 3:
		return log.InfoLevel
	case verbosity == 4:
		return log.DebugLevel
	default:
		return log.TraceLevel
	}
}

// New returns a logger writing to out, stderr when nil.
func New(verbosity int, format string, out io.Writer) *log.Logger {
	if out == nil {
		out = os.Stderr
	}
	logger := log.New()
	logger.SetOutput(out)
	logger.SetLevel(Level(verbosity))
	if format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true, DisableLevelTruncation: true})
	}
	return logger
}
