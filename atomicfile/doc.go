/*
Package atomicfile replaces the content of a file so that readers
(and a crash) see either the old content or the new content, never
a mix of both.

To write to files in a robust way we should:

- handle error returned by `Write()` and `Close()`

- fsync before rename, rename over the destination, fsync the directory

- remove the partially written temporary file on any error

Flushing a store uses it like this:

	func flush(path string, data []byte) error {
		f, err := atomicfile.New(path)
		if err != nil {
			return err
		}
		// no-op after Close()
		defer f.RemoveIfNotClosed()

		if _, err = f.Write(data); err != nil {
			return err
		}
		return f.Close()
	}

which is what WriteFile does.
*/
package atomicfile
