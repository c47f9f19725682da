package bandit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// StateStore persists a policy's (dim, A, b) snapshot.
type StateStore interface {
	// Load returns the persisted snapshot, or (nil, nil) when none exists.
	Load() (*State, error)
	// Save durably writes the snapshot, replacing any previous one.
	Save(s *State) error
}

// FileStore persists state as a single JSON document. Writes go through a
// temporary file and rename so a crash mid-write never leaves a truncated
// snapshot behind.
type FileStore struct {
	path string
}

// NewFileStore creates a file store at path. Parent directories are created
// on first save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("bandit: state path cannot be empty")
	}
	return &FileStore{path: path}, nil
}

// Load reads and validates the persisted snapshot.
func (f *FileStore) Load() (*State, error) {
	content, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(content, &state); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", f.path, err)
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("state file %s: %w", f.path, err)
	}
	return &state, nil
}

// Save atomically replaces the snapshot on disk.
func (f *FileStore) Save(s *State) error {
	if err := s.Validate(); err != nil {
		return err
	}

	content, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
