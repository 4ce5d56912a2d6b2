package scanfile

import (
	"fmt"
	"sync"

	"github.com/ubuntu/insights-inventory/internal/inventory"
)

// MemStore is an in-memory StateStore.
type MemStore struct {
	mu     sync.Mutex
	active map[Identity][]string
	sealed map[Identity][]string
}

// NewMemStore returns an empty in-memory StateStore.
func NewMemStore() *MemStore {
	return &MemStore{
		active: make(map[Identity][]string),
		sealed: make(map[Identity][]string),
	}
}

// State implements StateStore.
func (s *MemStore) State(id Identity) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sealed[id]; ok {
		return Sealed, nil
	}
	if _, ok := s.active[id]; ok {
		return Active, nil
	}
	return Absent, nil
}

// Append implements StateStore.
func (s *MemStore) Append(id Identity, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active[id] = append(s.active[id], string(line))
	return nil
}

// Seal implements StateStore.
func (s *MemStore) Seal(id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, ok := s.active[id]
	if !ok {
		return fmt.Errorf("%w: no active scan file for %s", inventory.ErrIO, id)
	}
	s.sealed[id] = lines
	delete(s.active, id)
	return nil
}

// Lines returns the lines of the active, or else sealed, scan file of id.
func (s *MemStore) Lines(id Identity) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lines, ok := s.sealed[id]; ok {
		return append([]string(nil), lines...)
	}
	return append([]string(nil), s.active[id]...)
}

// Release drops the sealed scan file of id, as its consumer does once it has read it.
func (s *MemStore) Release(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sealed, id)
}
