// Package snapshot exports, imports and compares copies of a kvfile store.
//
// A snapshot is the store file content, optionally compressed. Compression
// is picked from the extension: .gz, .zst (.zstd), .br, anything else is
// stored as-is and is a valid store file on its own.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/carlmjohnson/requests"
	"github.com/kjk/flatkv/atomicfile"
	"github.com/kjk/flatkv/kvfile"
	"github.com/kjk/flatkv/log"
	"github.com/kjk/flatkv/u"
	"github.com/pmezard/go-difflib/difflib"
)

// Marshal encodes m and compresses it for a snapshot named name
func Marshal(name string, m map[string]string) ([]byte, error) {
	d, err := kvfile.Encode(m)
	if err != nil {
		return nil, err
	}
	return u.CompressData(u.CompressionForPath(name), d)
}

// Unmarshal decompresses and decodes a snapshot named name
func Unmarshal(name string, d []byte) (map[string]string, error) {
	c := u.CompressionForPath(name)
	d, err := u.DecompressData(c, d)
	if err != nil {
		return nil, fmt.Errorf("decompress (%s) '%s': %w", c, name, err)
	}
	m, err := kvfile.Decode(d)
	if err != nil {
		return nil, fmt.Errorf("snapshot '%s': %w", name, err)
	}
	return m, nil
}

// Write atomically writes m as a snapshot to path
func Write(path string, m map[string]string) error {
	d, err := Marshal(path, m)
	if err != nil {
		return err
	}
	if err = atomicfile.WriteFile(path, d); err != nil {
		return err
	}
	log.Verbosef("snapshot: wrote %d records to '%s' (%s)\n", len(m), path, u.FormatSize(int64(len(d))))
	log.Event("snapshot_write", "path", path, "records", len(m), "size", len(d))
	return nil
}

// Read reads a snapshot from path
func Read(path string) (map[string]string, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(path, d)
}

// IsURL returns true if src should be fetched with Fetch instead of Read
func IsURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// Fetch downloads a snapshot from uri. Compression is picked
// from the extension of uri's path.
func Fetch(ctx context.Context, uri string) (map[string]string, error) {
	var buf bytes.Buffer
	err := requests.
		URL(uri).
		ToBytesBuffer(&buf).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch '%s': %w", uri, err)
	}
	name := uri
	if idx := strings.IndexAny(name, "?#"); idx >= 0 {
		name = name[:idx]
	}
	log.Verbosef("snapshot: fetched '%s', %s\n", uri, u.FormatSize(int64(buf.Len())))
	return Unmarshal(name, buf.Bytes())
}

// Load reads a snapshot from a local path or an http(s) URL
func Load(ctx context.Context, src string) (map[string]string, error) {
	if IsURL(src) {
		return Fetch(ctx, src)
	}
	return Read(src)
}

// Restore replaces all records of the store at dbPath with m.
// The current content of dbPath is never read so a corrupted store
// can be restored. m is fully encoded before dbPath is touched.
func Restore(dbPath string, m map[string]string) error {
	d, err := kvfile.Encode(m)
	if err != nil {
		return err
	}
	if err = atomicfile.WriteFile(dbPath, d); err != nil {
		return fmt.Errorf("write '%s': %w: %w", dbPath, kvfile.ErrIO, err)
	}
	log.Verbosef("snapshot: restored %d records to '%s'\n", len(m), dbPath)
	log.Event("snapshot_restore", "path", dbPath, "records", len(m))
	return nil
}

// Diff returns a unified diff between encoded a and b,
// empty string if they are the same
func Diff(a, b map[string]string, nameA, nameB string) (string, error) {
	da, err := kvfile.Encode(a)
	if err != nil {
		return "", err
	}
	db, err := kvfile.Encode(b)
	if err != nil {
		return "", err
	}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(da)),
		B:        difflib.SplitLines(string(db)),
		FromFile: nameA,
		ToFile:   nameB,
		Context:  1,
	}
	return difflib.GetUnifiedDiffString(ud)
}
