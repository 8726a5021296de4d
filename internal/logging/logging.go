// Package logging sets up the process-wide logrus logger used by every
// other package; there is no per-package logger construction, matching the
// "global mutable state... process-wide singletons" note in spec.md §9.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger writing JSON lines to stdout at the given
// level ("debug", "info", "warn", "error"). An unknown level falls back to
// info rather than failing boot.
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// WithRequest returns an entry pre-populated with the request's
// correlation id, used by handlers and the reconciler to tie together log
// lines from a single upload or query.
func WithRequest(log *logrus.Logger, requestID string) *logrus.Entry {
	return log.WithField("request_id", requestID)
}
