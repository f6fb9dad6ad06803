// Package notify delivers outbound messages to the operator.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/linconhq/lincon/internal/notify/providers"
)

// Sender defines the interface for outbound message delivery.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Notifier wraps a sender with best-effort semantics: delivery failures are
// logged, never propagated into pipeline state.
type Notifier struct {
	sender Sender
	log    *logrus.Entry
}

// New creates a notifier with the given sender.
func New(sender Sender, log *logrus.Entry) *Notifier {
	return &Notifier{sender: sender, log: log}
}

// NewFromConfig picks a sender: a webhook when one is configured, otherwise
// log-only delivery.
func NewFromConfig(webhookURL string, log *logrus.Entry) *Notifier {
	var sender Sender
	if webhookURL != "" {
		sender = providers.NewWebhookSender(webhookURL)
	} else {
		sender = providers.NewLogSender(log)
	}
	return New(sender, log)
}

// Send delivers one message to the operator.
func (n *Notifier) Send(ctx context.Context, text string) {
	if err := n.sender.Send(ctx, text); err != nil {
		n.log.WithError(err).Warn("operator notification failed")
	}
}
