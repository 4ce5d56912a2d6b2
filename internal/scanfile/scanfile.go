// Package scanfile keeps the per endpoint and per category scan files.
//
// A scan file accumulates the raw events of a scan until its completion marker seals it.
// A sealed scan file accepts no more data until it is consumed and removed by an external reader.
package scanfile

import (
	"fmt"
	"log/slog"

	"github.com/ubuntu/decorate"
	"github.com/ubuntu/insights-inventory/internal/inventory"
)

// State is the state of a scan file.
type State int

const (
	// Absent means no scan file exists.
	Absent State = iota
	// Active means the scan file accepts appended lines.
	Active
	// Sealed means the scan is complete and no line can be appended anymore.
	Sealed
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Active:
		return "active"
	case Sealed:
		return "sealed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Identity identifies a scan file.
type Identity struct {
	EndpointID string
	Category   inventory.Category
}

func (id Identity) String() string {
	return string(id.Category) + "/" + id.EndpointID
}

// StateStore persists scan files keyed by identity.
//
// When both an active and a sealed file exist, State reports Sealed.
type StateStore interface {
	State(id Identity) (State, error)
	// Append adds line, followed by a newline, to the active file, creating it if needed.
	Append(id Identity, line []byte) error
	// Seal turns the active file into the sealed one.
	Seal(id Identity) error
}

// Manager applies the scan events to their scan file.
type Manager struct {
	store StateStore
}

// New returns a Manager persisting scan files in store.
func New(store StateStore) *Manager {
	return &Manager{store: store}
}

// Handle records rawLine in the scan file of (endpointID, category), or seals it if completed is set.
//
// Writing to a sealed file returns an error matching ErrProtocolViolation.
// Sealing when no active file exists does nothing.
func (m *Manager) Handle(category inventory.Category, endpointID, rawLine string, completed bool) (err error) {
	id := Identity{EndpointID: endpointID, Category: category}
	defer decorate.OnError(&err, "could not update scan file %s", id)

	state, err := m.store.State(id)
	if err != nil {
		return err
	}

	if completed {
		if state != Active {
			slog.Warn("Scan finished without pending data, ignoring completion marker", "scan", id, "state", state)
			return nil
		}
		slog.Debug("Scan finished, sealing scan file", "scan", id)
		return m.store.Seal(id)
	}

	if state == Sealed {
		return fmt.Errorf("%w: scan %s is already sealed", inventory.ErrProtocolViolation, id)
	}
	return m.store.Append(id, []byte(rawLine))
}
