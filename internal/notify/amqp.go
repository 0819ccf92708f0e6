package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gridwatt.dev/gridwatt/pkg/mq"
)

// AlertMessage is the wire format for alerts published to the queue.
type AlertMessage struct {
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// AMQPNotifier publishes alerts as JSON messages to a RabbitMQ queue so
// downstream consumers can deliver or archive them.
type AMQPNotifier struct {
	client  mq.ClientInterface
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewAMQPNotifier creates a queue-backed notifier.
func NewAMQPNotifier(client mq.ClientInterface, logger *slog.Logger) (*AMQPNotifier, error) {
	if client == nil {
		return nil, errors.New("mq client cannot be nil")
	}

	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &AMQPNotifier{
		client:  client,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Send implements Notifier.
func (a *AMQPNotifier) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return errors.New("recipient cannot be empty")
	}

	msg := AlertMessage{
		To:        to,
		Subject:   subject,
		Body:      body,
		Timestamp: a.nowFunc().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal alert message: %w", err)
	}

	if err := a.client.Push(ctx, data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	a.logger.Debug("alert published", "to", to, "subject", subject)

	return nil
}

var _ Notifier = (*AMQPNotifier)(nil)
