// Package logging configures the structured logger every other package
// pulls an *logrus.Entry from, matching the leveled, field-based logging
// convention exercised across the rclone backend corpus.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logrus.Entry scoped to component, writing to stderr in
// text format with the given level name ("debug", "info", "warn", "error").
func New(component, level string) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger.WithField("component", component)
}
