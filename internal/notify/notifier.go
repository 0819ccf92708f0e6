// Package notify delivers alerts and reports to external channels. The
// pipeline treats delivery as an injected collaborator with a single Send
// contract; implementations cover SMTP email and a RabbitMQ alert queue.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Notifier delivers one message to one recipient. A non-nil error means the
// message may not have arrived; callers decide whether and when to retry.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Multi fans a message out to several notifiers. Delivery is attempted on
// every channel; the first error is returned after all attempts.
type Multi struct {
	logger    *slog.Logger
	notifiers []Notifier
}

// NewMulti creates a fan-out notifier over the given channels.
func NewMulti(logger *slog.Logger, notifiers ...Notifier) (*Multi, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if len(notifiers) == 0 {
		return nil, errors.New("at least one notifier is required")
	}

	return &Multi{logger: logger, notifiers: notifiers}, nil
}

// Send implements Notifier.
func (m *Multi) Send(ctx context.Context, to, subject, body string) error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, to, subject, body); err != nil {
			m.logger.Error("notifier channel failed",
				"to", to,
				"subject", subject,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Ensure Multi implements Notifier.
var _ Notifier = (*Multi)(nil)
