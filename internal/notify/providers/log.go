package providers

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSender writes outbound messages to the log. Used when no webhook is
// configured, mostly in development.
type LogSender struct {
	log *logrus.Entry
}

// NewLogSender creates a log-only sender.
func NewLogSender(log *logrus.Entry) *LogSender {
	return &LogSender{log: log}
}

// Send logs the message.
func (l *LogSender) Send(ctx context.Context, text string) error {
	l.log.WithField("outbound", true).Info(text)
	return nil
}
