package kvfile

import (
	"errors"
	"fmt"
)

var (
	// ErrIO is a file system read or write failure
	ErrIO = errors.New("i/o failure")
	// ErrMalformedRecord is a line without the key/value separator
	ErrMalformedRecord = errors.New("malformed record")
	// ErrEncodingConflict is a key or value containing a tab or a newline
	ErrEncodingConflict = errors.New("encoding conflict")
)

type ErrorKind int

const (
	UnknownKind ErrorKind = iota
	IoFailure
	MalformedRecord
	EncodingConflict
)

func (k ErrorKind) String() string {
	switch k {
	case IoFailure:
		return "IoFailure"
	case MalformedRecord:
		return "MalformedRecord"
	case EncodingConflict:
		return "EncodingConflict"
	}
	return "Unknown"
}

// KindOf returns the kind of error returned by this package
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return UnknownKind
	case errors.Is(err, ErrEncodingConflict):
		return EncodingConflict
	case errors.Is(err, ErrMalformedRecord):
		return MalformedRecord
	case errors.Is(err, ErrIO):
		return IoFailure
	}
	return UnknownKind
}

func ioError(op string, path string, err error) error {
	return fmt.Errorf("%s '%s': %w: %w", op, path, ErrIO, err)
}
