package viz

import (
	"github.com/sirupsen/logrus"
)

// DefaultLogger represents a default logging instance
var logger *logrus.Logger

// DefaultLogger returns an instance of the default logger
func DefaultLogger() *logrus.Logger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logger
}

// NewLogger returns a new instance of a logger
func NewLogger() *logrus.Logger {
	return logrus.New()
}

// moduleLogger scopes base to one component. A nil base falls back to the
// default logger.
func moduleLogger(base *logrus.Entry, module string) *logrus.Entry {
	if base == nil {
		base = logrus.NewEntry(DefaultLogger())
	}
	return base.WithField("module", module)
}
