package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gridwatt.dev/gridwatt/internal/notify"
	"gridwatt.dev/gridwatt/internal/notify/mock"
)

var _ = Describe("Multi", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	})

	Describe("NewMulti", func() {
		It("rejects a nil logger", func() {
			_, err := notify.NewMulti(nil, &mock.MockNotifier{})
			Expect(err).To(MatchError("logger cannot be nil"))
		})

		It("rejects an empty channel list", func() {
			_, err := notify.NewMulti(logger)
			Expect(err).To(MatchError("at least one notifier is required"))
		})
	})

	Describe("Send", func() {
		It("delivers to every channel", func() {
			first := &mock.MockNotifier{}
			second := &mock.MockNotifier{}
			multi, err := notify.NewMulti(logger, first, second)
			Expect(err).NotTo(HaveOccurred())

			Expect(multi.Send(context.Background(), "owner@example.com", "subj", "body")).To(Succeed())

			Expect(first.Calls()).To(HaveLen(1))
			Expect(second.Calls()).To(HaveLen(1))
			Expect(first.Calls()[0].Subject).To(Equal("subj"))
		})

		It("still attempts the remaining channels after a failure", func() {
			failErr := errors.New("relay down")
			first := &mock.MockNotifier{SendError: failErr}
			second := &mock.MockNotifier{}
			multi, err := notify.NewMulti(logger, first, second)
			Expect(err).NotTo(HaveOccurred())

			err = multi.Send(context.Background(), "owner@example.com", "subj", "body")
			Expect(errors.Is(err, failErr)).To(BeTrue())
			Expect(second.Calls()).To(HaveLen(1))
		})
	})
})
