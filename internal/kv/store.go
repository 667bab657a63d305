// Package kv provides the local key-value backends that hold client state
// (login throttle records and the session token) across restarts.
package kv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store is a byte-oriented key-value backend scoped to one local installation.
type Store interface {
	// Get returns the value for key. The boolean is false when the key is absent.
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// ErrUnknownBackend is returned by Open for an unrecognised backend name.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Open creates the named backend rooted in dir. The returned close function
// releases any resources held by the backend and is safe to call once.
func Open(backend, dir string) (Store, func() error, error) {
	noop := func() error { return nil }

	switch backend {
	case BackendMemory:
		return NewMemory(), noop, nil
	case BackendFile:
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		s, err := NewFile(filepath.Join(dir, "state.json"))
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case BackendSQLite:
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		s, err := NewSQLite(filepath.Join(dir, "state.db"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
