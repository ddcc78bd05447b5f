package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrStore marks I/O failures while reading or writing the session
// file (permissions, disk space). The conversation can continue
// in-memory when a save fails.
var ErrStore = errors.New("session store failure")

// FileStore owns the on-disk representation of a session: one JSON
// document per user under the config directory. It provides no
// cross-process locking; concurrent runs against the same file are a
// documented limitation.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the persisted session. A missing file yields
// (zero, false, nil) so the caller starts fresh without an error.
// Content that fails to parse or violates the session invariants
// yields an error wrapping ErrCorruptState.
func (s *FileStore) Load() (Session, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("%w: read %s: %v", ErrStore, s.path, err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, false, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if err := session.Validate(); err != nil {
		return Session{}, false, err
	}
	return session, true, nil
}

// Save atomically replaces the session file. The new state is written
// to a temporary file in the same directory and renamed over the old
// one, so an interrupted save leaves either the prior or the new
// complete state, never a partial file. Invalid sessions are rejected
// before anything touches the disk.
func (s *FileStore) Save(session Session) error {
	session.UpdatedAt = time.Now().UTC()
	if err := session.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode session: %v", ErrStore, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrStore, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "session-*.json")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrStore, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write temp file: %v", ErrStore, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close temp file: %v", ErrStore, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod temp file: %v", ErrStore, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replace %s: %v", ErrStore, s.path, err)
	}
	return nil
}
