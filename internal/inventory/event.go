// Package inventory holds the model of the inventory events sent by monitored endpoints,
// how they are classified, and the error taxonomy shared by the decoding pipeline.
package inventory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/ubuntu/insights-inventory/internal/constants"
)

// RawEvent is one event as delivered by the upstream pipeline.
type RawEvent struct {
	// EndpointID identifies the monitored endpoint which emitted the event.
	EndpointID string `json:"endpoint_id"`
	// Provenance is the location tag of the event producer.
	Provenance string `json:"provenance"`
	// Body is the JSON text of the inventory report.
	Body string `json:"body"`
}

// Event is a decoded inventory report.
type Event struct {
	Type      string         `mapstructure:"type"`
	ScanID    *int64         `mapstructure:"ID"`
	Timestamp *string        `mapstructure:"timestamp"`
	Inventory map[string]any `mapstructure:"inventory"`
	Program   map[string]any `mapstructure:"program"`

	EndpointID string   `mapstructure:"-"`
	Category   Category `mapstructure:"-"`
	Completed  bool     `mapstructure:"-"`
	// Raw is the body the event was decoded from, as received.
	Raw string `mapstructure:"-"`
}

var endpointRE = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Parse validates the raw event and decodes its body.
//
// Provenance and endpoint errors match ErrValidation, anything wrong in the body matches ErrDecode.
func Parse(raw RawEvent) (*Event, error) {
	if err := ValidateProvenance(raw.Provenance); err != nil {
		return nil, err
	}
	if err := ValidateEndpoint(raw.EndpointID); err != nil {
		return nil, err
	}

	body, err := oneLine(raw.Body)
	if err != nil {
		return nil, err
	}

	// Numbers are kept as json.Number so that 64-bit ids survive decoding.
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: error parsing JSON event: %v", ErrDecode, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: error parsing JSON event: unexpected data after the event", ErrDecode)
	}

	ev := &Event{
		EndpointID: raw.EndpointID,
		Raw:        body,
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           ev,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %v", err)
	}
	if err := decoder.Decode(data); err != nil {
		return nil, errors.Join(fmt.Errorf("%w: event does not match expected structure", ErrDecode), err)
	}

	if ev.Type == "" {
		return nil, fmt.Errorf("%w: type not found", ErrDecode)
	}
	if ev.Category, ev.Completed, err = Classify(ev.Type); err != nil {
		return nil, err
	}

	return ev, nil
}

// oneLine compacts a body spread over several lines, as scan files keep one event per line.
func oneLine(body string) (string, error) {
	if !strings.ContainsAny(body, "\r\n") {
		return body, nil
	}

	var b bytes.Buffer
	if err := json.Compact(&b, []byte(body)); err != nil {
		return "", fmt.Errorf("%w: error parsing JSON event: %v", ErrDecode, err)
	}
	return b.String(), nil
}

// ValidateProvenance accepts the producer tag itself, or a remote location of the form "(name) ...> tag".
func ValidateProvenance(provenance string) error {
	if provenance == constants.ProducerTag {
		return nil
	}
	if strings.HasPrefix(provenance, "(") {
		_, after, found := strings.Cut(provenance, ">")
		if !found {
			return fmt.Errorf("%w: malformed location %q", ErrValidation, provenance)
		}
		if strings.TrimSpace(after) == constants.ProducerTag {
			return nil
		}
		return fmt.Errorf("%w: location %q is not %s", ErrValidation, provenance, constants.ProducerTag)
	}
	return fmt.Errorf("%w: unexpected location %q", ErrValidation, provenance)
}

// ValidateEndpoint checks that id can be used both as a file name and as a store command token.
func ValidateEndpoint(id string) error {
	if !endpointRE.MatchString(id) || id == "." || id == ".." {
		return fmt.Errorf("%w: invalid endpoint id %q", ErrValidation, id)
	}
	return nil
}

// Fields returns the fields of payload merged with the report level fields, ready for encoding.
func (e Event) Fields(payload map[string]any) map[string]any {
	fields := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		fields[k] = v
	}
	if e.Timestamp != nil {
		fields["timestamp"] = *e.Timestamp
	} else {
		delete(fields, "timestamp")
	}
	return fields
}
