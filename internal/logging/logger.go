package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Fields is an alias so callers don't import logrus directly.
type Fields = logrus.Fields

// New creates a configured logger instance.
func New() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if lvl, err := logrus.ParseLevel(os.Getenv("LINCON_LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger
}

// ForComponent returns an entry tagged with the component name.
func ForComponent(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("component", name)
}
