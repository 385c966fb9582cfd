package kvfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/kjk/flatkv/atomicfile"
	"github.com/kjk/flatkv/log"
)

// Store is an in-memory key/value mapping bound to a file.
// Mutations only change memory, Flush rewrites the whole file.
// Not safe for concurrent use and only one Store should be open
// for a given path at a time.
type Store struct {
	// called when the flush done by Close fails.
	// if nil, the error is logged as a warning and as an event
	OnImplicitFlushError func(s *Store, err error)

	path   string
	m      map[string]string
	dirty  bool
	closed bool
}

// Open loads the store from path. A missing file is an empty store
// and is not created until the first Flush.
func Open(path string) (*Store, error) {
	d, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, ioError("read", path, err)
	}
	m, err := Decode(d)
	if err != nil {
		return nil, fmt.Errorf("load '%s': %w", path, err)
	}
	log.Verbosef("kvfile: opened '%s', %d records\n", path, len(m))
	return &Store{
		path: path,
		m:    m,
	}, nil
}

// WithStore opens the store at path, calls fn and releases the store
// with Close, also when fn returns an error or panics.
// Only errors from Open and fn are returned.
func WithStore(path string, fn func(s *Store) error) error {
	s, err := Open(path)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func (s *Store) Path() string {
	return s.path
}

// Dirty returns true if there are changes not yet written to disk
func (s *Store) Dirty() bool {
	return s.dirty
}

func (s *Store) Len() int {
	return len(s.m)
}

// Keys returns all keys, sorted
func (s *Store) Keys() []string {
	return SortedKeys(s.m)
}

// Snapshot returns a copy of all records
func (s *Store) Snapshot() map[string]string {
	res := make(map[string]string, len(s.m))
	for k, v := range s.m {
		res[k] = v
	}
	return res
}

func (s *Store) Lookup(key string) (string, bool) {
	v, ok := s.m[key]
	return v, ok
}

// Insert sets value for key, over-writing previous value.
// Keys and values with tabs or newlines are accepted here
// and rejected by Flush.
func (s *Store) Insert(key, value string) {
	s.m[key] = value
	s.dirty = true
}

// Remove deletes key and returns true if it was present
func (s *Store) Remove(key string) bool {
	if _, ok := s.m[key]; !ok {
		return false
	}
	delete(s.m, key)
	s.dirty = true
	return true
}

// Flush atomically rewrites the file with current records.
// It's a no-op if there were no changes since last Flush.
// The file is not touched if encoding fails.
func (s *Store) Flush() error {
	if !s.dirty {
		return nil
	}
	d, err := Encode(s.m)
	if err != nil {
		return fmt.Errorf("flush '%s': %w", s.path, err)
	}
	if err = atomicfile.WriteFile(s.path, d); err != nil {
		return ioError("write", s.path, err)
	}
	s.dirty = false
	log.Verbosef("kvfile: flushed '%s', %d records, %d bytes\n", s.path, len(s.m), len(d))
	log.Event("flush", "path", s.path, "records", len(s.m), "size", len(d))
	return nil
}

// Close releases the store. Unsaved changes are flushed once;
// a failure of that flush goes to OnImplicitFlushError, not to the caller.
// Calling Close more than once is a no-op.
func (s *Store) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if !s.dirty {
		return
	}
	err := s.Flush()
	if err == nil {
		return
	}
	if s.OnImplicitFlushError != nil {
		s.OnImplicitFlushError(s, err)
		return
	}
	log.Warnf("kvfile: unsaved changes to '%s' lost: %s", s.path, err)
	log.Event("implicit_flush_failed", "path", s.path, "error", err)
}
