package kvfile

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

const (
	fieldSep = '\t'
	lineSep  = '\n'
)

// ValidateRecord returns ErrEncodingConflict if key or value
// contains a tab or a newline
func ValidateRecord(key, value string) error {
	if strings.ContainsAny(key, "\t\n") {
		return fmt.Errorf("key %q contains tab or newline: %w", key, ErrEncodingConflict)
	}
	if strings.ContainsAny(value, "\t\n") {
		return fmt.Errorf("value of key %q contains tab or newline: %w", key, ErrEncodingConflict)
	}
	return nil
}

// SortedKeys returns keys of m in ascending order
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Encode serializes m as one "key\tvalue\n" line per record.
// Lines are sorted by key so the same map always encodes to the same bytes.
// Nothing is returned if any record fails ValidateRecord.
func Encode(m map[string]string) ([]byte, error) {
	keys := SortedKeys(m)
	size := 0
	for _, k := range keys {
		v := m[k]
		if err := ValidateRecord(k, v); err != nil {
			return nil, err
		}
		size += len(k) + len(v) + 2
	}
	var buf bytes.Buffer
	buf.Grow(size)
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte(fieldSep)
		buf.WriteString(m[k])
		buf.WriteByte(lineSep)
	}
	return buf.Bytes(), nil
}

// ParseLine splits a non-empty line on the first tab.
// Value can contain more tabs.
func ParseLine(line []byte) (key string, value string, ok bool) {
	idx := bytes.IndexByte(line, fieldSep)
	if idx < 0 {
		return "", "", false
	}
	return string(line[:idx]), string(line[idx+1:]), true
}

// Decode parses content written by Encode. Empty lines are skipped,
// a line without a tab fails the whole decode with ErrMalformedRecord.
// When a key repeats, the last line wins.
// Final newline is optional. '\r' is not a line separator.
func Decode(d []byte) (map[string]string, error) {
	m := map[string]string{}
	lineNo := 0
	for len(d) > 0 {
		lineNo++
		var line []byte
		idx := bytes.IndexByte(d, lineSep)
		if idx < 0 {
			line, d = d, nil
		} else {
			line, d = d[:idx], d[idx+1:]
		}
		if len(line) == 0 {
			continue
		}
		k, v, ok := ParseLine(line)
		if !ok {
			return nil, fmt.Errorf("line %d: no tab in %q: %w", lineNo, truncate(line, 64), ErrMalformedRecord)
		}
		m[k] = v
	}
	return m, nil
}

func truncate(d []byte, n int) string {
	if len(d) <= n {
		return string(d)
	}
	return string(d[:n]) + "..."
}
