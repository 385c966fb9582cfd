package kvfile

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/flatkv/log"
)

func readFile(t *testing.T, path string) string {
	d, err := os.ReadFile(path)
	assert.NoError(t, err)
	return string(d)
}

func assertFileNotExists(t *testing.T, path string) {
	_, err := os.Stat(path)
	if err == nil {
		t.Fatalf("file '%s' exist, expected to not exist", path)
	}
}

func TestExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := Open(path)
	assert.NoError(t, err)
	s.Insert("color", "blue")
	assert.NoError(t, s.Flush())
	assert.Equal(t, "color\tblue\n", readFile(t, path))

	m, err := Decode([]byte(readFile(t, path)))
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{"color": "blue"}, m)
}

func TestOpenAbsentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := Open(path)
	assert.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Dirty())
	assert.Equal(t, path, s.Path())
	assertFileNotExists(t, path)

	// flush without changes doesn't create the file
	assert.NoError(t, s.Flush())
	s.Close()
	assertFileNotExists(t, path)
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	// directory instead of a file
	s, err := Open(dir)
	assert.Error(t, err)
	assert.True(t, s == nil)
	assert.Equal(t, IoFailure, KindOf(err))

	path := filepath.Join(dir, "kv.db")
	assert.NoError(t, os.WriteFile(path, []byte("a\t1\ngarbage\n"), 0644))
	s, err = Open(path)
	assert.Error(t, err)
	assert.True(t, s == nil)
	assert.True(t, errors.Is(err, ErrMalformedRecord))
}

func TestInsertLookupRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := Open(path)
	assert.NoError(t, err)

	_, ok := s.Lookup("k")
	assert.False(t, ok)

	s.Insert("k", "v1")
	s.Insert("k", "v2")
	assert.True(t, s.Dirty())
	v, ok := s.Lookup("k")
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
	assert.Equal(t, 1, s.Len())

	assert.NoError(t, s.Flush())
	assert.False(t, s.Dirty())

	// removing missing key doesn't make store dirty
	assert.False(t, s.Remove("missing"))
	assert.False(t, s.Dirty())

	assert.True(t, s.Remove("k"))
	assert.True(t, s.Dirty())
	_, ok = s.Lookup("k")
	assert.False(t, ok)
	assert.NoError(t, s.Flush())
	assert.Equal(t, "", readFile(t, path))
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	m := genRandomMap(100)
	s, err := Open(path)
	assert.NoError(t, err)
	for k, v := range m {
		s.Insert(k, v)
	}
	assert.NoError(t, s.Flush())
	s.Close()

	s, err = Open(path)
	assert.NoError(t, err)
	assert.Equal(t, m, s.Snapshot())
	assert.Equal(t, SortedKeys(m), s.Keys())
}

func TestFlushIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := Open(path)
	assert.NoError(t, err)
	s.Insert("b", "2")
	s.Insert("a", "1")
	assert.NoError(t, s.Flush())
	d1 := readFile(t, path)
	assert.NoError(t, s.Flush())
	d2 := readFile(t, path)
	assert.Equal(t, d1, d2)

	// re-inserting forces a rewrite that must produce the same bytes
	s.Insert("a", "1")
	assert.NoError(t, s.Flush())
	assert.Equal(t, d1, readFile(t, path))
}

func TestFlushEncodingConflictKeepsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	orig := "color\tblue\n"
	assert.NoError(t, os.WriteFile(path, []byte(orig), 0644))

	s, err := Open(path)
	assert.NoError(t, err)
	s.Insert("color", "dark\tblue")
	err = s.Flush()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncodingConflict))
	assert.Equal(t, orig, readFile(t, path))
	assert.True(t, s.Dirty())

	var implicitErr error
	s.OnImplicitFlushError = func(s *Store, err error) {
		implicitErr = err
	}
	s.Close()
	assert.True(t, errors.Is(implicitErr, ErrEncodingConflict))
	assert.Equal(t, orig, readFile(t, path))

	// no temporary files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(entries))
}

func TestFlushIOFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "kv.db")
	s, err := Open(path)
	assert.NoError(t, err)
	s.Insert("a", "1")
	err = s.Flush()
	assert.Error(t, err)
	assert.Equal(t, IoFailure, KindOf(err))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.True(t, s.Dirty())
}

func TestCloseFlushesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := Open(path)
	assert.NoError(t, err)
	s.Insert("a", "1")
	s.Close()
	assert.Equal(t, "a\t1\n", readFile(t, path))

	// the handle is released, a second Close doesn't write again
	assert.NoError(t, os.Remove(path))
	s.Close()
	assertFileNotExists(t, path)
}

func TestCloseLogsImplicitFlushError(t *testing.T) {
	var stderr bytes.Buffer
	prev := log.Stderr
	log.Stderr = &stderr
	defer func() { log.Stderr = prev }()

	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := Open(path)
	assert.NoError(t, err)
	s.Insert("bad\nkey", "v")
	s.Close()

	assertFileNotExists(t, path)
	out := stderr.String()
	assert.True(t, strings.HasPrefix(out, "warning: kvfile: unsaved changes to"), out)
	assert.True(t, strings.Contains(out, "encoding conflict"), out)
}

func TestWithStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	err := WithStore(path, func(s *Store) error {
		s.Insert("color", "blue")
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "color\tblue\n", readFile(t, path))

	// changes are persisted also when fn fails
	errFn := errors.New("fn failed")
	err = WithStore(path, func(s *Store) error {
		s.Insert("size", "xl")
		return errFn
	})
	assert.Equal(t, errFn, err)
	assert.Equal(t, "color\tblue\nsize\txl\n", readFile(t, path))
}

func withStorePanics(t *testing.T, path string) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected to panic")
		}
	}()
	_ = WithStore(path, func(s *Store) error {
		s.Insert("k", "v")
		panic("simulating a crash")
	})
}

func TestWithStorePanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	withStorePanics(t, path)
	assert.Equal(t, "k\tv\n", readFile(t, path))
}

func TestWithStoreOpenError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	assert.NoError(t, os.WriteFile(path, []byte("nope\n"), 0644))
	called := false
	err := WithStore(path, func(s *Store) error {
		called = true
		return nil
	})
	assert.Equal(t, MalformedRecord, KindOf(err))
	assert.False(t, called)
}
