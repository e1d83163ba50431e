// Package wharflog centralizes logrus setup for the frontend. The
// frontend's stdout is the gRPC wire to the daemon, so every log record
// must go to stderr.
package wharflog

import (
	"os"

	"github.com/sirupsen/logrus"
)

func init() {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if level := os.Getenv("WHARF_LOG"); level != "" {
		if parsed, err := logrus.ParseLevel(level); err == nil {
			logrus.SetLevel(parsed)
		}
	}
}

// For returns a component-scoped logging entry, mirroring the original's
// per-module `log::debug!`/`log::error!` call sites.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
