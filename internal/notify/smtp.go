package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// SMTPConfig holds the connection settings for the mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Validate checks that the config is usable.
func (c SMTPConfig) Validate() error {
	if c.Host == "" {
		return errors.New("smtp host cannot be empty")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid smtp port: %d", c.Port)
	}

	if c.From == "" {
		return errors.New("smtp from address cannot be empty")
	}

	return nil
}

// sendMailFunc matches smtp.SendMail and is swappable in tests.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier delivers messages as plain-text email through a relay.
type SMTPNotifier struct {
	config   SMTPConfig
	logger   *slog.Logger
	sendMail sendMailFunc
}

// NewSMTPNotifier creates an email notifier for the given relay.
func NewSMTPNotifier(config SMTPConfig, logger *slog.Logger) (*SMTPNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid smtp config: %w", err)
	}

	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &SMTPNotifier{
		config:   config,
		logger:   logger,
		sendMail: smtp.SendMail,
	}, nil
}

// Send implements Notifier. The context is checked before dialing; the
// underlying smtp package does not support mid-flight cancellation.
func (s *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if to == "" {
		return errors.New("recipient cannot be empty")
	}

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	msg := buildMessage(s.config.From, to, subject, body)

	if err := s.sendMail(addr, auth, s.config.From, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	s.logger.Debug("email sent", "to", to, "subject", subject)

	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

var _ Notifier = (*SMTPNotifier)(nil)
