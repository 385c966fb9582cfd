// Package kvfile is a key/value store kept in a single text file.
//
// # File format
//
// One record per line:
//
//	key<TAB>value<LF>
//
// The last newline is optional and empty lines are ignored. Keys and
// values can't contain TAB or LF: [Encode] (and so [Store.Flush]) fails
// with [ErrEncodingConflict] instead of writing a file that would read
// back differently. [Decode] fails with [ErrMalformedRecord] on a line
// without a TAB. If a key is repeated, the last line wins.
//
// # Basic Usage
//
//	err := kvfile.WithStore("kv.db", func(s *kvfile.Store) error {
//	    s.Insert("color", "blue")
//	    return s.Flush()
//	})
//
// A missing file opens as an empty store. Changes stay in memory until
// [Store.Flush], which rewrites the whole file atomically (see package
// atomicfile). [Store.Close] flushes unsaved changes one more time and
// reports a failure through a logged warning since there's no caller
// to return it to.
package kvfile
