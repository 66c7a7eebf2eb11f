// Low-level positioned I/O.
//
// Every helper here wraps the underlying *os.File error in an ioError
// carrying the offset and length of the failed access, so a caller
// logging the error has enough to reproduce it without re-deriving
// which read or write inside a larger operation actually failed. None
// of these helpers interpret the bytes they move — interpretation is
// record.go's and header.go's job.
package archive

import (
	"io"
	"os"
)

// readAt reads exactly n bytes at offset. A short read (including one
// caused by EOF) is reported as an ioError rather than returned
// partially, since every caller in this package needs the full region
// to decode a fixed structure.
func readAt(f *os.File, offset int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(io.NewSectionReader(f, offset, int64(n)), buf); err != nil {
		return nil, &ioError{op: "read", offset: offset, length: n, err: err}
	}
	return buf, nil
}

// writeAt writes data at offset.
func writeAt(f *os.File, offset int64, data []byte) error {
	if _, err := f.WriteAt(data, offset); err != nil {
		return &ioError{op: "write", offset: offset, length: len(data), err: err}
	}
	return nil
}

// syncFile fsyncs f.
func syncFile(f *os.File) error {
	if err := f.Sync(); err != nil {
		return &ioError{op: "fsync", offset: -1, err: err}
	}
	return nil
}

// fileSize returns the current length of f.
func fileSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, &ioError{op: "stat", offset: -1, err: err}
	}
	return info.Size(), nil
}
