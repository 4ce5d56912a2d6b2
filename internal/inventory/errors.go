package inventory

import (
	"errors"
	"fmt"
)

// Error taxonomy of the decoder. Every error returned while decoding an event matches one of these with errors.Is.
var (
	// ErrValidation is returned when the event provenance or endpoint is not acceptable.
	ErrValidation = errors.New("invalid event")
	// ErrDecode is returned for malformed JSON, missing or unknown fields and unknown message types.
	ErrDecode = errors.New("could not decode event")
	// ErrProtocolViolation is returned when data is written to a sealed scan file.
	ErrProtocolViolation = errors.New("scan protocol violation")
	// ErrTransport is returned when the record store exchange fails.
	ErrTransport = errors.New("record store transport error")
	// ErrPeerClosed is returned when the record store closed the connection before answering.
	ErrPeerClosed = errors.New("record store closed the connection")
	// ErrRejected is returned when the record store answered anything but ok.
	ErrRejected = errors.New("record store rejected the command")
	// ErrIO is returned when a scan file cannot be opened, written or sealed.
	ErrIO = errors.New("scan file I/O error")
	// ErrEncoding is returned when a store command would exceed its maximum size.
	ErrEncoding = errors.New("could not encode store command")
)

// RejectionError carries the answer of a record store which rejected a command.
type RejectionError struct {
	Response string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%v: %q", ErrRejected, e.Response)
}

// Is makes any RejectionError match ErrRejected.
func (e *RejectionError) Is(target error) bool {
	return target == ErrRejected
}

// Kind returns a short label of the taxonomy entry err belongs to, for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrProtocolViolation):
		return "protocol_violation"
	case errors.Is(err, ErrPeerClosed):
		return "peer_closed"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrEncoding):
		return "encoding"
	default:
		return "unknown"
	}
}
