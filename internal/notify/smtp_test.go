package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SMTPNotifier", func() {
	var (
		logger *slog.Logger
		config SMTPConfig
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		config = SMTPConfig{
			Host: "mail.example.com",
			Port: 587,
			From: "alerts@gridwatt.dev",
		}
	})

	Describe("NewSMTPNotifier", func() {
		It("creates a notifier with a valid config", func() {
			n, err := NewSMTPNotifier(config, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).NotTo(BeNil())
		})

		It("rejects an empty host", func() {
			config.Host = ""
			_, err := NewSMTPNotifier(config, logger)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("host"))
		})

		It("rejects an out-of-range port", func() {
			config.Port = 70000
			_, err := NewSMTPNotifier(config, logger)
			Expect(err).To(HaveOccurred())
		})

		It("rejects an empty from address", func() {
			config.From = ""
			_, err := NewSMTPNotifier(config, logger)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a nil logger", func() {
			_, err := NewSMTPNotifier(config, nil)
			Expect(err).To(MatchError("logger cannot be nil"))
		})
	})

	Describe("Send", func() {
		var (
			notifier *SMTPNotifier
			sentAddr string
			sentFrom string
			sentTo   []string
			sentMsg  []byte
			sendErr  error
		)

		BeforeEach(func() {
			sendErr = nil
			sentAddr = ""
			sentTo = nil
			sentMsg = nil

			var err error
			notifier, err = NewSMTPNotifier(config, logger)
			Expect(err).NotTo(HaveOccurred())

			notifier.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
				sentAddr = addr
				sentFrom = from
				sentTo = to
				sentMsg = msg
				return sendErr
			}
		})

		It("builds an RFC 822 style message and sends it", func() {
			err := notifier.Send(context.Background(), "owner@example.com", "Device offline", "No samples for 25h.")
			Expect(err).NotTo(HaveOccurred())

			Expect(sentAddr).To(Equal("mail.example.com:587"))
			Expect(sentFrom).To(Equal("alerts@gridwatt.dev"))
			Expect(sentTo).To(Equal([]string{"owner@example.com"}))

			body := string(sentMsg)
			Expect(body).To(ContainSubstring("Subject: Device offline\r\n"))
			Expect(body).To(ContainSubstring("To: owner@example.com\r\n"))
			Expect(strings.HasSuffix(body, "No samples for 25h.\r\n")).To(BeTrue())
		})

		It("wraps relay failures", func() {
			sendErr = errors.New("connection refused")
			err := notifier.Send(context.Background(), "owner@example.com", "s", "b")
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, sendErr)).To(BeTrue())
		})

		It("rejects an empty recipient", func() {
			err := notifier.Send(context.Background(), "", "s", "b")
			Expect(err).To(HaveOccurred())
			Expect(sentTo).To(BeNil())
		})

		It("honors an already-cancelled context", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
			defer cancel()
			time.Sleep(time.Millisecond)

			err := notifier.Send(ctx, "owner@example.com", "s", "b")
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(sentTo).To(BeNil())
		})
	})
})
