// Package mock provides a test double for the notify package.
package mock

import (
	"context"
	"sync"
)

// SendCall records one Send invocation.
type SendCall struct {
	To      string
	Subject string
	Body    string
}

// MockNotifier implements notify.Notifier for testing.
type MockNotifier struct {
	mu sync.Mutex

	// SendFunc overrides the default behavior when set.
	SendFunc func(ctx context.Context, to, subject, body string) error

	// SendError is returned by Send when SendFunc is nil.
	SendError error

	// SendCalls records every invocation.
	SendCalls []SendCall
}

// Send implements notify.Notifier.
func (m *MockNotifier) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	m.SendCalls = append(m.SendCalls, SendCall{To: to, Subject: subject, Body: body})
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, to, subject, body)
	}

	return m.SendError
}

// Calls returns a copy of the recorded invocations.
func (m *MockNotifier) Calls() []SendCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SendCall, len(m.SendCalls))
	copy(out, m.SendCalls)
	return out
}

// Reset clears recorded calls and configured errors.
func (m *MockNotifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SendCalls = nil
	m.SendFunc = nil
	m.SendError = nil
}
