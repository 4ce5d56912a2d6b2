// Package decoder routes the inventory events of the endpoints.
//
// Each event is validated and classified, then its scan file is updated and, for the categories the record
// store keeps, its content is forwarded to the record store. Events are processed one at a time, to completion.
package decoder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ubuntu/insights-inventory/internal/inventory"
	"github.com/ubuntu/insights-inventory/internal/record"
	"github.com/ubuntu/insights-inventory/internal/store"
)

type scanFiles interface {
	Handle(category inventory.Category, endpointID, rawLine string, completed bool) error
}

type programLifecycle interface {
	Handle(ctx context.Context, ev *inventory.Event) error
}

// Decoder decodes inventory events.
type Decoder struct {
	scans    scanFiles
	programs programLifecycle
	client   store.Sender

	events *prometheus.CounterVec
}

type options struct {
	registerer prometheus.Registerer
}

// Options represents an optional function to override Decoder default values.
type Options func(*options)

// WithRegisterer registers the decoder metrics to reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Options {
	return func(o *options) {
		o.registerer = reg
	}
}

// New returns a Decoder updating scans and sending commands through client.
// programs handles the software inventory events.
func New(scans scanFiles, programs programLifecycle, client store.Sender, args ...Options) (*Decoder, error) {
	opts := options{
		registerer: prometheus.NewRegistry(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_decoder_events_total",
		Help: "Number of inventory events decoded, by category and result.",
	}, []string{"category", "result"})
	if err := opts.registerer.Register(events); err != nil {
		return nil, fmt.Errorf("failed to register events counter: %v", err)
	}

	return &Decoder{
		scans:    scans,
		programs: programs,
		client:   client,
		events:   events,
	}, nil
}

// Decode processes one raw event and reports whether it succeeded.
//
// Failures are logged and the event is dropped.
func (d *Decoder) Decode(ctx context.Context, raw inventory.RawEvent) bool {
	if err := d.DecodeEvent(ctx, raw); err != nil {
		slog.Error("Dropping inventory event", "endpoint", raw.EndpointID, "provenance", raw.Provenance, "kind", inventory.Kind(err), "err", err)
		return false
	}
	return true
}

// DecodeEvent processes one raw event, returning the reason of its failure.
// Work already done for a failed event, like a scan file append, is not undone.
func (d *Decoder) DecodeEvent(ctx context.Context, raw inventory.RawEvent) (err error) {
	category := "unknown"
	defer func() {
		d.events.WithLabelValues(category, inventory.Kind(err)).Inc()
	}()

	ev, err := inventory.Parse(raw)
	if err != nil {
		return err
	}
	category = string(ev.Category)

	if ev.Completed {
		slog.Debug("Scan finished message received", "endpoint", ev.EndpointID, "type", ev.Type)
	}

	if err := d.forward(ctx, ev); err != nil {
		return err
	}

	return d.scans.Handle(ev.Category, ev.EndpointID, ev.Raw, ev.Completed)
}

// forward sends the event content to the record store, for the categories it keeps.
func (d *Decoder) forward(ctx context.Context, ev *inventory.Event) error {
	var entity record.Entity
	switch ev.Category {
	case inventory.Programs:
		return d.programs.Handle(ctx, ev)
	case inventory.Hardware:
		entity = record.Hardware
	case inventory.OS:
		entity = record.OSInfo
	default:
		return nil
	}

	if ev.Inventory == nil {
		return nil
	}

	cmd, err := record.Encode(entity, ev.EndpointID, ev.ScanID, ev.Fields(ev.Inventory))
	if err != nil {
		return err
	}
	if err := d.client.Send(ctx, cmd); err != nil {
		return fmt.Errorf("unable to send %s information to the record store: %w", entity, err)
	}
	return nil
}
