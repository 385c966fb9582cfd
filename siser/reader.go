package siser

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"
)

var hdrPrefix = []byte("--- ")

// records up to this size are read into a buffer allocated upfront
const maxPreallocSize = 1024 * 1024

// Reader reads records written by Writer / MarshalLine
type Reader struct {
	r *bufio.Reader

	// Data / Name / Timestamp are available after ReadNext.
	// They are over-written in next ReadNext.
	Data      []byte
	Name      string
	Timestamp time.Time

	// position of the current record within the reader
	CurrRecordPos int64
	// position of the next record within the reader
	NextRecordPos int64

	err  error
	done bool
}

// NewReader creates a new reader
func NewReader(r *bufio.Reader) *Reader {
	return &Reader{
		r: r,
	}
}

// Done returns true if we're finished reading
func (r *Reader) Done() bool {
	return r.err != nil || r.done
}

// Err returns the read error, io.EOF is not an error
func (r *Reader) Err() error {
	return r.err
}

func isDigits(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ReadNext reads next record. Returns false when there are no more
// records, check Err() to tell end of data from an error.
func (r *Reader) ReadNext() bool {
	if r.Done() {
		return false
	}
	r.Name = ""
	r.Timestamp = time.Time{}
	r.CurrRecordPos = r.NextRecordPos

	hdr, err := r.r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(hdr) == 0 {
			r.done = true
		} else if err == io.EOF {
			r.err = fmt.Errorf("siser: truncated header at offset %d", r.CurrRecordPos)
		} else {
			r.err = err
		}
		return false
	}
	recSize := len(hdr)

	rest := bytes.TrimPrefix(hdr[:len(hdr)-1], hdrPrefix)
	parts := bytes.SplitN(rest, []byte{' '}, 3)
	size, err := strconv.ParseInt(string(parts[0]), 10, 64)
	if err != nil || size < 0 {
		r.err = fmt.Errorf("siser: unexpected header '%s'", string(hdr))
		return false
	}
	parts = parts[1:]
	// timestamp is optional so a numeric second field is a timestamp
	if len(parts) > 0 && isDigits(parts[0]) {
		ms, _ := strconv.ParseInt(string(parts[0]), 10, 64)
		r.Timestamp = TimeFromUnixMillisecond(ms)
		parts = parts[1:]
	}
	if len(parts) > 0 {
		r.Name = string(bytes.Join(parts, []byte{' '}))
	}

	// re-use r.Data as long as it doesn't grow too much
	if cap(r.Data) > maxPreallocSize {
		r.Data = nil
	}
	var n int
	if size <= int64(cap(r.Data)) {
		r.Data = r.Data[:size]
		n, err = io.ReadFull(r.r, r.Data)
	} else if size <= maxPreallocSize {
		r.Data = make([]byte, size)
		n, err = io.ReadFull(r.r, r.Data)
	} else {
		// size comes from the file, don't trust it for allocation.
		// buffer only grows as much as there is data
		var buf bytes.Buffer
		var n64 int64
		n64, err = io.CopyN(&buf, r.r, size)
		r.Data = buf.Bytes()
		n = int(n64)
	}
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = fmt.Errorf("siser: truncated record at offset %d", r.CurrRecordPos)
		}
		r.Data = nil
		r.err = err
		return false
	}
	recSize += n

	// MarshalLine pads data that doesn't end with '\n'
	if n > 0 && r.Data[n-1] != '\n' {
		if _, err = r.r.Discard(1); err != nil {
			r.err = err
			return false
		}
		recSize++
	}
	r.NextRecordPos += int64(recSize)
	return true
}
