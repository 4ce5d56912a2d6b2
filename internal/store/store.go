// Package store implements the client side of the record store wire protocol.
//
// Commands are text lines terminated by a NUL byte, written to a persistent stream connection owned by the
// caller. Only program upserts wait for an answer.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ubuntu/insights-inventory/internal/constants"
	"github.com/ubuntu/insights-inventory/internal/inventory"
)

// Sender sends commands without waiting for an answer.
type Sender interface {
	Send(ctx context.Context, cmd string) error
}

// AwaitSender sends commands and waits for the record store acknowledgment.
type AwaitSender interface {
	Sender
	SendAndAwait(ctx context.Context, cmd string) error
}

// Client exchanges commands with the record store over an already connected stream.
type Client struct {
	rw io.ReadWriter

	responseTimeout time.Duration
	bufSize         int

	// mu serializes exchanges so that an answer is always read by the sender of its command.
	mu sync.Mutex
}

type options struct {
	responseTimeout time.Duration
	bufSize         int
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// WithResponseTimeout bounds the wait for an acknowledgment if the stream supports read deadlines.
// The default, 0, waits forever.
func WithResponseTimeout(d time.Duration) Options {
	return func(o *options) {
		o.responseTimeout = d
	}
}

// New returns a client using rw as transport. rw lifecycle stays with the caller.
func New(rw io.ReadWriter, args ...Options) *Client {
	opts := options{
		bufSize: constants.ResponseBufferSize,
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Client{
		rw:              rw,
		responseTimeout: opts.responseTimeout,
		bufSize:         opts.bufSize,
	}
}

// Send writes cmd followed by the terminator. A failed or short write returns an error matching ErrTransport.
func (c *Client) Send(ctx context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.send(ctx, cmd)
}

// SendAndAwait sends cmd and reads the record store answer.
//
// It returns nil on "ok", an error matching ErrRejected carrying any other answer, ErrPeerClosed if the connection
// was closed without answer and ErrTransport on any other failure.
// The answer is read once into a bounded buffer: longer answers are truncated.
func (c *Client) SendAndAwait(ctx context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, cmd); err != nil {
		return err
	}

	if c.responseTimeout > 0 {
		if conn, ok := c.rw.(interface{ SetReadDeadline(time.Time) error }); ok {
			if err := conn.SetReadDeadline(time.Now().Add(c.responseTimeout)); err != nil {
				return fmt.Errorf("%w: could not set read deadline: %v", inventory.ErrTransport, err)
			}
			//nolint:errcheck // Resetting the deadline is best effort, the next exchange sets its own.
			defer conn.SetReadDeadline(time.Time{})
		}
	}

	buf := make([]byte, c.bufSize)
	n, err := c.rw.Read(buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			slog.Debug("Record store disconnected")
			return errors.Join(inventory.ErrTransport, inventory.ErrPeerClosed)
		}
		return fmt.Errorf("%w: could not read answer: %v", inventory.ErrTransport, err)
	}

	resp := string(bytes.TrimRight(buf[:n], "\x00"))
	if resp != constants.ResponseOK {
		return &inventory.RejectionError{Response: resp}
	}
	return nil
}

func (c *Client) send(ctx context.Context, cmd string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", inventory.ErrTransport, ctx.Err())
	default:
	}

	msg := make([]byte, 0, len(cmd)+1)
	msg = append(msg, cmd...)
	msg = append(msg, constants.CommandTerminator)

	n, err := c.rw.Write(msg)
	if err != nil {
		return fmt.Errorf("%w: could not send command: %v", inventory.ErrTransport, err)
	}
	if n < len(msg) {
		return fmt.Errorf("%w: short write of %d out of %d bytes", inventory.ErrTransport, n, len(msg))
	}
	return nil
}

// Dial connects to the record store. The returned connection is owned by the caller.
func Dial(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("could not connect to record store at %s://%s: %v", network, address, err)
	}
	slog.Info("Connected to record store", "network", network, "address", address)
	return conn, nil
}
