// Package programs drives the software inventory scans of the endpoints against the record store.
//
// Every program of a scan is upserted and acknowledged by the record store. The completion marker then
// drops the programs the scan did not report.
package programs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ubuntu/insights-inventory/internal/inventory"
	"github.com/ubuntu/insights-inventory/internal/record"
	"github.com/ubuntu/insights-inventory/internal/store"
)

// State is the progress of the software inventory scan of an endpoint.
type State int

const (
	// Idle means no scan was seen for the endpoint.
	Idle State = iota
	// Scanning means programs of a scan are being received.
	Scanning
	// Finished means the last scan completed.
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Lifecycle tracks the software inventory scans and sends their commands.
type Lifecycle struct {
	client store.AwaitSender

	mu     sync.Mutex
	states map[string]State
}

// New returns a Lifecycle sending its commands through client.
func New(client store.AwaitSender) *Lifecycle {
	return &Lifecycle{
		client: client,
		states: make(map[string]State),
	}
}

// Handle processes one software inventory event.
//
// An event with a program is upserted and must be acknowledged. An event without program must be the completion
// marker, carrying the scan id: the programs of the endpoint which do not belong to that scan are deleted,
// without waiting for an acknowledgment.
func (l *Lifecycle) Handle(ctx context.Context, ev *inventory.Event) error {
	if ev.Program != nil {
		return l.upsert(ctx, ev)
	}

	if ev.Type != inventory.CompletionType(inventory.Programs) {
		return fmt.Errorf("%w: %q message without program", inventory.ErrDecode, ev.Type)
	}
	if ev.ScanID == nil {
		return fmt.Errorf("%w: scan id not found in %q message", inventory.ErrDecode, ev.Type)
	}
	return l.finish(ctx, ev.EndpointID, *ev.ScanID)
}

func (l *Lifecycle) upsert(ctx context.Context, ev *inventory.Event) error {
	cmd, err := record.Encode(record.Program, ev.EndpointID, ev.ScanID, ev.Fields(ev.Program))
	if err != nil {
		return err
	}

	if l.State(ev.EndpointID) != Scanning {
		slog.Debug("Software inventory scan started", "endpoint", ev.EndpointID)
	}
	l.setState(ev.EndpointID, Scanning)

	if err := l.client.SendAndAwait(ctx, cmd); err != nil {
		return fmt.Errorf("unable to send program information to the record store: %w", err)
	}
	return nil
}

func (l *Lifecycle) finish(ctx context.Context, endpointID string, scanID int64) error {
	cmd, err := record.EncodeDelete(record.Program, endpointID, scanID)
	if err != nil {
		return err
	}

	if prev := l.State(endpointID); prev != Scanning {
		slog.Debug("Software inventory scan finished without programs", "endpoint", endpointID, "scan", scanID, "state", prev)
	}

	if err := l.client.Send(ctx, cmd); err != nil {
		return fmt.Errorf("unable to send program deletion to the record store: %w", err)
	}
	l.setState(endpointID, Finished)
	return nil
}

// State returns the scan state of the endpoint.
func (l *Lifecycle) State(endpointID string) State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.states[endpointID]
}

func (l *Lifecycle) setState(endpointID string, s State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.states[endpointID] = s
}
