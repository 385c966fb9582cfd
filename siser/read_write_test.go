package siser

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert"
)

func TestMarshalLine(t *testing.T) {
	fixedTime := time.Date(2024, 1, 15, 10, 30, 45, 123000000, time.UTC)
	fixedTimeMs := strconv.FormatInt(TimeToUnixMillisecond(fixedTime), 10)

	tests := []struct {
		name     string
		dataName string
		t        time.Time
		d        []byte
		expected string
	}{
		{"all fields", "flush", fixedTime, []byte("path: kv.db"), "--- 11 " + fixedTimeMs + " flush\npath: kv.db\n"},
		{"trailing newline", "flush", fixedTime, []byte("n: 1\n"), "--- 5 " + fixedTimeMs + " flush\nn: 1\n"},
		{"empty name", "", fixedTime, []byte("x"), "--- 1 " + fixedTimeMs + "\nx\n"},
		{"zero time", "open", time.Time{}, []byte("x"), "--- 1 open\nx\n"},
		{"nil data", "open", fixedTime, nil, "--- 0 " + fixedTimeMs + " open\n"},
		{"bare", "", time.Time{}, nil, "--- 0\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := MarshalLine(tc.dataName, tc.t, tc.d, nil)
			assert.Equal(t, tc.expected, string(got))
		})
	}
}

func TestWriteRead(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	now := time.Now()
	payloads := []string{"path: kv.db\nrecords: 3", "", "error: boom\n", strings.Repeat("z", 4096)}
	for i, p := range payloads {
		_, err := w.Write([]byte(p), now, "event"+strconv.Itoa(i))
		assert.NoError(t, err)
	}

	r := NewReader(bufio.NewReader(bytes.NewReader(buf.Bytes())))
	n := 0
	for r.ReadNext() {
		assert.Equal(t, payloads[n], string(r.Data))
		assert.Equal(t, "event"+strconv.Itoa(n), r.Name)
		assert.Equal(t, TimeToUnixMillisecond(now), TimeToUnixMillisecond(r.Timestamp))
		n++
	}
	assert.NoError(t, r.Err())
	assert.Equal(t, len(payloads), n)
	assert.Equal(t, int64(buf.Len()), r.NextRecordPos)
}

func TestNoTimestamp(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.NoTimestamp = true
	_, err := w.Write([]byte("a"), time.Now(), "name")
	assert.NoError(t, err)
	assert.Equal(t, "--- 1 name\na\n", buf.String())

	r := NewReader(bufio.NewReader(&buf))
	assert.True(t, r.ReadNext())
	assert.True(t, r.Timestamp.IsZero())
	assert.Equal(t, "name", r.Name)
}

func TestInvalidName(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})
	_, err := w.Write(nil, time.Time{}, "two words")
	assert.Error(t, err)

	// would be read back as a timestamp
	w.NoTimestamp = true
	_, err = w.Write([]byte("a"), time.Time{}, "404")
	assert.Error(t, err)
	assert.False(t, ValidName("2024"))
	assert.True(t, ValidName("e404"))
	assert.True(t, ValidName(""))
}

func TestReadHugeSize(t *testing.T) {
	// header claims far more data than there is
	s := "--- 9000000000000000000 event\nshort\n"
	r := NewReader(bufio.NewReader(strings.NewReader(s)))
	assert.False(t, r.ReadNext())
	assert.Error(t, r.Err())
	assert.Equal(t, 0, len(r.Data))

	// big records that are really there are read fine
	d := strings.Repeat("x", 3*maxPreallocSize)
	r = NewReader(bufio.NewReader(strings.NewReader(string(MarshalLine("big", time.Time{}, []byte(d), nil)))))
	assert.True(t, r.ReadNext())
	assert.Equal(t, "big", r.Name)
	assert.Equal(t, d, string(r.Data))
	assert.False(t, r.ReadNext())
	assert.NoError(t, r.Err())
}

func TestReadErrors(t *testing.T) {
	inputs := []string{
		"--- x\n",
		"--- 10 123 name\nshort",
		"--- 3",
	}
	for _, s := range inputs {
		r := NewReader(bufio.NewReader(strings.NewReader(s)))
		for r.ReadNext() {
		}
		assert.Error(t, r.Err(), "input: %q", s)
	}
}
