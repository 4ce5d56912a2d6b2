// Package testutils provides helpers shared by the tests of the inventory services.
package testutils

import (
	"context"
	"log/slog"
	"sync"
)

// MockHandler is a slog.Handler recording the records it handles.
type MockHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

// Enabled implements slog.Handler. Every level is enabled.
func (h *MockHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle implements slog.Handler.
func (h *MockHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, r.Clone())
	return nil
}

// WithAttrs implements slog.Handler. Attributes are dropped.
func (h *MockHandler) WithAttrs([]slog.Attr) slog.Handler {
	return h
}

// WithGroup implements slog.Handler. Groups are dropped.
func (h *MockHandler) WithGroup(string) slog.Handler {
	return h
}

// Messages returns the messages logged at level, in order.
func (h *MockHandler) Messages(level slog.Level) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var msgs []string
	for _, r := range h.records {
		if r.Level == level {
			msgs = append(msgs, r.Message)
		}
	}
	return msgs
}

// CaptureLogs makes a MockHandler the default logger until the returned function is called.
// Tests using it must not run in parallel.
func CaptureLogs() (h *MockHandler, restore func()) {
	prev := slog.Default()
	h = &MockHandler{}
	slog.SetDefault(slog.New(h))
	return h, func() { slog.SetDefault(prev) }
}
