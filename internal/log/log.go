// Package log configures the process-wide logrus logger used by every
// long-running component: the supervisor daemon's monitor loop, the
// election engine, the switchover orchestrator, and the operator command.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Loggers is the set of loggers that Configure applies formatting and level
// settings to; it holds only the logrus standard logger.
var Loggers = []*logrus.Logger{logrus.StandardLogger()}

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{})
}

// Configure applies format ("text" or "json") and level to every logger in
// Loggers. An empty format is treated as "text" (text formatter with full
// timestamps); any other unrecognised format leaves the formatter
// untouched. An empty or unparseable level defaults to "info".
func Configure(loggers []*logrus.Logger, format, level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}

	for _, l := range loggers {
		switch format {
		case "json":
			l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
		case "text", "":
			l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		}
		l.SetLevel(lvl)
	}
}

// Default returns the entry that non-component code (CLI error reporting,
// startup failures before a component-scoped logger exists) should log
// through.
func Default() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}

// WithOutput redirects the standard logger's output, used by the daemon
// after it has detached stdio (§4.H daemonize).
func WithOutput(w io.Writer) {
	logrus.SetOutput(w)
}

// DevNull reopens the standard logger onto the null device, used when the
// daemon closes its inherited stdio and logging is not configured to go to
// stderr.
func DevNull() error {
	f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	logrus.SetOutput(f)
	return nil
}
