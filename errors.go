// Package archive implements a single-file object store: named binary
// objects with fixed-size user metadata, a crash-safe write discipline,
// and concurrent lookups against a single writer.
//
// A file holds a 152-byte header, an open-addressed hash index, and a
// set of variable-length records threaded together by a free list. See
// Create and Open for the two ways to obtain an *Archive.
package archive

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Archive methods. Callers match them with
// errors.Is; CorruptError and ConsistencyError carry additional
// structured context and should be matched with errors.As.
var (
	// ErrAlreadyInitialized is returned by Create when the target file
	// already carries the archive magic.
	ErrAlreadyInitialized = errors.New("archive: already initialized")

	// ErrNotAnArchive is returned by Open when the file's magic does
	// not match.
	ErrNotAnArchive = errors.New("archive: not an archive file")

	// ErrVersionMismatch is returned by Open when the header's version
	// is not one this build understands.
	ErrVersionMismatch = errors.New("archive: version mismatch")

	// ErrMetaSizeMismatch is returned by Open when the header's
	// recorded meta size does not match the codec the caller supplied.
	ErrMetaSizeMismatch = errors.New("archive: meta size mismatch")

	// ErrLocked is returned by Open when the advisory lock could not
	// be acquired.
	ErrLocked = errors.New("archive: locked by another process")

	// ErrAlreadyExists is returned by Publish when the name is already
	// live in the archive.
	ErrAlreadyExists = errors.New("archive: object already exists")

	// ErrNotFound is returned by Update, Delete, and Fetch when the
	// name has no live object.
	ErrNotFound = errors.New("archive: object not found")

	// ErrEmptyName is returned by any operation given a zero-length
	// name.
	ErrEmptyName = errors.New("archive: name must not be empty")

	// ErrClosed is returned by any operation on a closed Archive.
	ErrClosed = errors.New("archive: closed")

	// ErrDecompress is returned when a record flagged as compressed
	// fails to decode as a valid zstd frame.
	ErrDecompress = errors.New("archive: decompress failed")

	// ErrReadOnly is returned by Publish, Update, Delete, and Repair
	// when called on an Archive opened with Config.ReadOnly.
	ErrReadOnly = errors.New("archive: opened read-only")

	// ErrDirtyReadOnly is returned by Open when Config.ReadOnly is set
	// and the header's dirty flag is already set: repairing it requires
	// a writable handle, so a read-only caller must reopen read-write
	// instead.
	ErrDirtyReadOnly = errors.New("archive: dirty; reopen read-write to repair")
)

// CorruptKind identifies the structural check a Corrupt error failed.
type CorruptKind int

const (
	_ CorruptKind = iota
	// BadMagic: the header's magic bytes do not match.
	BadMagic
	// BadVersion: the header's version field is unrecognised.
	BadVersion
	// LengthOverflow: a record's declared name_len/data_len runs past
	// the end of the file.
	LengthOverflow
	// DigestMismatch: a record's stored digest does not match the
	// recomputed digest of name‖meta‖data.
	DigestMismatch
	// FlagOffsetConflict: a record's flags and next_free_offset
	// disagree (flags.freed=0 but next_free_offset != 0).
	FlagOffsetConflict
	// DanglingIndex: an index slot references an offset that does not
	// classify as live in the record pass.
	DanglingIndex
	// FreedLiveConflict: a record classified as free is also
	// referenced as live by an index slot, or vice versa.
	FreedLiveConflict
	// FreeListCycle: walking a free-list bucket revisited an offset.
	FreeListCycle
	// CoverageGap: a byte range in [0, file length) is not accounted
	// for by the header, index, or any classified record.
	CoverageGap
	// CoverageOverlap: two classified regions (records, index, header)
	// overlap.
	CoverageOverlap
	// NameMismatch: the name stored in a record does not match the
	// name hashed into the index slot that references it.
	NameMismatch
)

func (k CorruptKind) String() string {
	switch k {
	case BadMagic:
		return "bad magic"
	case BadVersion:
		return "bad version"
	case LengthOverflow:
		return "length overflow"
	case DigestMismatch:
		return "digest mismatch"
	case FlagOffsetConflict:
		return "flag/offset conflict"
	case DanglingIndex:
		return "dangling index entry"
	case FreedLiveConflict:
		return "freed/live conflict"
	case FreeListCycle:
		return "free-list cycle"
	case CoverageGap:
		return "coverage gap"
	case CoverageOverlap:
		return "coverage overlap"
	case NameMismatch:
		return "name mismatch"
	default:
		return "unknown"
	}
}

// CorruptError reports a structural inconsistency found while reading
// a record, walking the index, or verifying the archive. Offset is the
// byte position of the failing record or slot, or -1 when the failure
// is not tied to a single offset (e.g. an index table with no free
// slot left for an insert).
type CorruptError struct {
	Kind   CorruptKind
	Offset int64
}

func (e *CorruptError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("archive: corrupt: %s", e.Kind)
	}
	return fmt.Sprintf("archive: corrupt: %s at offset %d", e.Kind, e.Offset)
}

// ConsistencyError wraps the error returned by a caller-supplied check
// callback passed to Update or Delete. The archive does not interpret
// Err; it only propagates it verbatim to the caller of Update/Delete.
type ConsistencyError struct {
	Err error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("archive: consistency check rejected operation: %v", e.Err)
}

func (e *ConsistencyError) Unwrap() error {
	return e.Err
}

// ioError wraps an underlying I/O failure with the offset and length
// of the access that failed, so callers can log enough to reproduce
// the failure without the archive parsing its own error messages.
type ioError struct {
	op     string
	offset int64
	length int
	err    error
}

func (e *ioError) Error() string {
	return fmt.Sprintf("archive: io: %s at offset %d (len %d): %v", e.op, e.offset, e.length, e.err)
}

func (e *ioError) Unwrap() error {
	return e.err
}
