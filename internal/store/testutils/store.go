// Package storetestutils provides a record store double for tests.
package storetestutils

import (
	"context"
	"sync"

	"github.com/ubuntu/insights-inventory/internal/inventory"
)

// Call is one command received by a MockClient.
type Call struct {
	Command string
	Awaited bool
}

// MockClient records the commands it receives and answers with the configured errors.
type MockClient struct {
	// SendErr is returned by Send.
	SendErr error
	// AwaitErr is returned by SendAndAwait.
	AwaitErr error
	// Response, when not empty and not "ok", makes SendAndAwait return a rejection carrying it.
	Response string

	mu    sync.Mutex
	calls []Call
}

// Send implements store.Sender.
func (m *MockClient) Send(_ context.Context, cmd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendErr != nil {
		return m.SendErr
	}
	m.calls = append(m.calls, Call{Command: cmd})
	return nil
}

// SendAndAwait implements store.AwaitSender.
func (m *MockClient) SendAndAwait(_ context.Context, cmd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AwaitErr != nil {
		return m.AwaitErr
	}
	m.calls = append(m.calls, Call{Command: cmd, Awaited: true})
	if m.Response != "" && m.Response != "ok" {
		return &inventory.RejectionError{Response: m.Response}
	}
	return nil
}

// Calls returns the commands successfully sent so far.
func (m *MockClient) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Call(nil), m.calls...)
}
