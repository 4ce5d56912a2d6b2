package scanfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ubuntu/insights-inventory/internal/constants"
	"github.com/ubuntu/insights-inventory/internal/inventory"
)

// FSStore keeps scan files on disk, under <root>/<category>/<endpoint>.
// Sealing renames the file to its sealed sibling, which makes the transition atomic.
type FSStore struct {
	root string
}

// NewFSStore returns a StateStore rooted at root, creating one directory per category.
func NewFSStore(root string) (*FSStore, error) {
	for _, cat := range inventory.Categories {
		if err := os.MkdirAll(filepath.Join(root, string(cat)), 0750); err != nil {
			return nil, fmt.Errorf("%w: could not create scan directory: %v", inventory.ErrIO, err)
		}
	}
	return &FSStore{root: root}, nil
}

// Path returns the path of the active scan file of id.
func (s FSStore) Path(id Identity) string {
	return filepath.Join(s.root, string(id.Category), id.EndpointID)
}

// SealedPath returns the path of the sealed scan file of id.
func (s FSStore) SealedPath(id Identity) string {
	return s.Path(id) + constants.SealedSuffix
}

// State implements StateStore.
func (s FSStore) State(id Identity) (State, error) {
	sealed, err := exists(s.SealedPath(id))
	if err != nil {
		return Absent, err
	}
	if sealed {
		return Sealed, nil
	}

	active, err := exists(s.Path(id))
	if err != nil {
		return Absent, err
	}
	if active {
		return Active, nil
	}
	return Absent, nil
}

// Append implements StateStore.
func (s FSStore) Append(id Identity, line []byte) (err error) {
	p := s.Path(id)
	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("%w: %v", inventory.ErrIO, err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("%w: %v", inventory.ErrIO, cErr)
		}
	}()

	data := make([]byte, 0, len(line)+1)
	data = append(data, line...)
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("%w: %v", inventory.ErrIO, err)
	}
	return nil
}

// Seal implements StateStore.
func (s FSStore) Seal(id Identity) error {
	if err := os.Rename(s.Path(id), s.SealedPath(id)); err != nil {
		return fmt.Errorf("%w: %v", inventory.ErrIO, err)
	}
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", inventory.ErrIO, err)
}
