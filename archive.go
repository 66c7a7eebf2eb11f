// Core archive type and lifecycle operations.
//
// Archive is the main entry point: it owns the file handles, the
// cached header, the advisory lock, and the state machine that gates
// readers and writers against each other. CRUD operations live in
// publish.go, update.go, delete.go, fetch.go; free-space bookkeeping in
// freelist.go; the hash index in index.go; snapshot enumeration in
// iterate.go; consistency checking in verify.go.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Concurrency states, generalized from a single global read/write gate
// to the three-way gate Repair's exclusive pass needs: normal
// operation allows any number of readers or one writer; Repair needs
// to exclude everyone, including readers, while it rebuilds the index
// and free list from scratch.
const (
	stateAll    = 0 // readers and the writer both allowed
	stateRead   = 1 // only readers allowed (unused for now; reserved for a future online-compact pass)
	stateNone   = 2 // nothing allowed (Repair holds this)
	stateClosed = 3
)

// Config holds the options of one Archive handle. It is passed to
// Create and Open and is not stored in the file.
type Config struct {
	// Compress enables zstd compression of payload bytes on newly
	// written records. Existing records keep decoding correctly
	// whichever way they were written; toggling this does not
	// retroactively recompress anything.
	Compress bool

	// ReadOnly opens the archive for reads only: Open takes a shared
	// (LockShared) advisory lock instead of an exclusive one, so any
	// number of processes may hold it concurrently, matching spec.md
	// §5's "multiple processes may open read-only." Publish, Update,
	// Delete, and Repair all fail with ErrReadOnly on an Archive opened
	// this way.
	ReadOnly bool
}

// Object is a single archived item as returned by Fetch and Objects.
type Object[M any] struct {
	Name string
	Meta M
	Data []byte
}

// CheckFunc is an optional caller-supplied veto for Update and Delete.
// It receives the object's current metadata and data before the
// mutation is applied; a non-nil return aborts the operation and is
// reported to the caller wrapped in a ConsistencyError.
type CheckFunc[M any] func(meta M, data []byte) error

// Archive is a single open archive file. The zero value is not usable;
// obtain one with Create or Open.
type Archive[M any] struct {
	root   *os.Root
	name   string
	reader *os.File
	writer *os.File
	lock   *fileLock
	header *Header
	codec  Codec[M]
	config Config
	tail   int64 // current end-of-file offset, for append allocation

	negLookup *negLookup // in-memory only; rebuilt on Open/growth/Repair

	state atomic.Int32
	cond  *sync.Cond
	mu    sync.RWMutex
}

// Create initializes a new archive file at dir/name. codec.Size() is
// the fixed size every object's metadata will encode to; it is written
// into the header and checked by every subsequent Open. Create fails
// with ErrAlreadyInitialized if the file already carries the archive
// magic.
func Create[M any](dir, name string, codec Codec[M], config Config) (*Archive[M], error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}

	if _, err := root.Stat(name); err == nil {
		f, err := root.OpenFile(name, os.O_RDONLY, 0)
		if err == nil {
			buf := make([]byte, len(magic))
			_, readErr := f.ReadAt(buf, 0)
			f.Close()
			if readErr == nil && string(buf) == string(magic[:]) {
				root.Close()
				return nil, ErrAlreadyInitialized
			}
		}
	}

	file, err := root.Create(name)
	if err != nil {
		root.Close()
		return nil, err
	}

	hdr := &Header{
		Version:       currentVersion,
		MetaSize:      uint32(codec.Size()),
		HashSeed:      randomSeed(),
		IndexOffset:   uint64(HeaderSize),
		IndexCapacity: initialIndexCapacity,
	}
	if _, err := file.WriteAt(hdr.encode(), 0); err != nil {
		file.Close()
		root.Close()
		return nil, err
	}
	if _, err := file.WriteAt(make([]byte, initialIndexCapacity*indexSlotSize), int64(HeaderSize)); err != nil {
		file.Close()
		root.Close()
		return nil, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		root.Close()
		return nil, err
	}
	file.Close()

	return Open(dir, name, codec, config)
}

// Open opens an existing archive file. It fails with ErrLocked if
// another handle (in this process or another) already holds a
// conflicting lock, ErrNotAnArchive/ErrVersionMismatch if the file's
// header is not one this build recognises, and ErrMetaSizeMismatch if
// codec's size disagrees with the size recorded at Create time.
//
// If the header's dirty flag is set — meaning a Publish, Update,
// Delete or Repair was interrupted before it committed — Open runs
// Repair before returning,
// unless config.ReadOnly is set, in which case it fails with
// ErrDirtyReadOnly: repairing requires a writable handle.
//
// config.ReadOnly also changes the lock mode from LockExclusive to
// LockShared, per spec.md §5: one process may write, many may read
// concurrently. The writer handle is still opened (read-only callers
// never use it for writes, since Publish/Update/Delete/Repair all
// reject on a read-only Archive before touching it), kept only so the
// internal write-path helpers don't need a second code path.
func Open[M any](dir, name string, codec Codec[M], config Config) (*Archive[M], error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}

	reader, err := root.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		root.Close()
		return nil, err
	}
	writerFlag := os.O_RDWR
	lockMode := LockExclusive
	if config.ReadOnly {
		writerFlag = os.O_RDONLY
		lockMode = LockShared
	}
	writer, err := root.OpenFile(name, writerFlag, 0)
	if err != nil {
		reader.Close()
		root.Close()
		return nil, err
	}

	lock := &fileLock{f: writer}
	ok, err := lock.TryLock(lockMode)
	if err != nil {
		reader.Close()
		writer.Close()
		root.Close()
		return nil, err
	}
	if !ok {
		reader.Close()
		writer.Close()
		root.Close()
		return nil, ErrLocked
	}

	hbuf := make([]byte, HeaderSize)
	if _, err := reader.ReadAt(hbuf, 0); err != nil {
		lock.Unlock()
		reader.Close()
		writer.Close()
		root.Close()
		return nil, err
	}
	hdr, err := decodeHeader(hbuf)
	if err != nil {
		lock.Unlock()
		reader.Close()
		writer.Close()
		root.Close()
		return nil, err
	}
	if int(hdr.MetaSize) != codec.Size() {
		lock.Unlock()
		reader.Close()
		writer.Close()
		root.Close()
		return nil, ErrMetaSizeMismatch
	}

	info, err := writer.Stat()
	if err != nil {
		lock.Unlock()
		reader.Close()
		writer.Close()
		root.Close()
		return nil, err
	}

	a := &Archive[M]{
		root:   root,
		name:   name,
		reader: reader,
		writer: writer,
		lock:   lock,
		header: hdr,
		codec:  codec,
		config: config,
		tail:   info.Size(),
		cond:   sync.NewCond(&sync.Mutex{}),
	}

	if hdr.Dirty {
		if config.ReadOnly {
			a.lock.Unlock()
			a.reader.Close()
			a.writer.Close()
			a.root.Close()
			return nil, ErrDirtyReadOnly
		}
		if err := a.Repair(); err != nil {
			a.lock.Unlock()
			a.reader.Close()
			a.writer.Close()
			a.root.Close()
			return nil, fmt.Errorf("archive: repair on open: %w", err)
		}
	} else if err := a.rescanNegLookup(); err != nil {
		a.lock.Unlock()
		a.reader.Close()
		a.writer.Close()
		a.root.Close()
		return nil, err
	}

	return a, nil
}

// Close releases the archive's file handles and advisory lock. A
// clean Close clears the header's dirty flag so the next Open skips
// Repair.
func (a *Archive[M]) Close() error {
	a.cond.L.Lock()
	a.state.Store(stateClosed)
	a.cond.Broadcast()
	a.cond.L.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.header.Dirty {
		a.header.Dirty = false
		if _, err := a.writer.WriteAt(a.header.encode(), 0); err == nil {
			a.writer.Sync()
		}
	}

	var errs []error
	if err := a.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	if err := a.reader.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.root.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// blockWrite gates exclusive access for Publish/Update/Delete/Repair.
func (a *Archive[M]) blockWrite() error {
	if a.state.Load() == stateClosed {
		return ErrClosed
	}
	a.cond.L.Lock()
	for a.state.Load() != stateAll {
		if a.state.Load() == stateClosed {
			a.cond.L.Unlock()
			return ErrClosed
		}
		a.cond.Wait()
	}
	a.mu.Lock()
	a.cond.L.Unlock()
	return nil
}

func (a *Archive[M]) unblockWrite() {
	a.mu.Unlock()
}

// blockRead gates shared access for Fetch/Objects/Verify.
func (a *Archive[M]) blockRead() error {
	if a.state.Load() == stateClosed {
		return ErrClosed
	}
	a.cond.L.Lock()
	for a.state.Load() == stateNone || a.state.Load() == stateClosed {
		if a.state.Load() == stateClosed {
			a.cond.L.Unlock()
			return ErrClosed
		}
		a.cond.Wait()
	}
	a.mu.RLock()
	a.cond.L.Unlock()
	return nil
}

func (a *Archive[M]) unblockRead() {
	a.mu.RUnlock()
}

// blockExclusive gates Repair, which must run with no readers and no
// writer active.
func (a *Archive[M]) blockExclusive() error {
	if a.state.Load() == stateClosed {
		return ErrClosed
	}
	a.cond.L.Lock()
	for a.state.Load() != stateAll {
		if a.state.Load() == stateClosed {
			a.cond.L.Unlock()
			return ErrClosed
		}
		a.cond.Wait()
	}
	a.state.Store(stateNone)
	a.cond.L.Unlock()
	a.mu.Lock()
	return nil
}

func (a *Archive[M]) unblockExclusive() {
	a.mu.Unlock()
	a.cond.L.Lock()
	a.state.Store(stateAll)
	a.cond.Broadcast()
	a.cond.L.Unlock()
}

// markDirty sets the header's dirty flag and persists it durably
// before any data mutation begins, so a crash between here and the
// matching clearDirty leaves a header that forces Repair on next Open.
func (a *Archive[M]) markDirty() error {
	if a.header.Dirty {
		return nil
	}
	a.header.Dirty = true
	if err := writeAt(a.writer, 0, a.header.encode()); err != nil {
		return err
	}
	return syncFile(a.writer)
}

func (a *Archive[M]) writeHeader() error {
	if err := writeAt(a.writer, 0, a.header.encode()); err != nil {
		return err
	}
	return syncFile(a.writer)
}

// checkWritable rejects mutating operations up front on a read-only
// Archive, before any locking or I/O is attempted.
func (a *Archive[M]) checkWritable() error {
	if a.config.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	return nil
}

func archivePath(dir, name string) string {
	return filepath.Join(dir, name)
}
