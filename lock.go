// OS-level file locking for cross-process coordination.
//
// fileLock wraps flock(2) / LockFileEx with a mutex that guards the file
// handle's lifetime. The mutex is held for the entire duration of the flock
// syscall so that Fd() cannot race with Close() on the same *os.File.
//
// Open acquires LockExclusive for a read-write archive and LockShared
// for one opened with Config.ReadOnly, matching spec.md §5: one
// process may write, many may read concurrently. The lock is
// non-blocking — Open fails fast with ErrLocked rather than waiting,
// since spec.md §4.1 lists
// Locked as an Open failure mode, not a condition Open blocks through.
// The lock is held for the Archive's entire lifetime and released by
// Close.
//
// setFile(nil) blocks until any in-flight flock completes, then makes
// subsequent Lock/Unlock calls no-ops; setFile(f) restores normal
// operation on a new handle. The archive itself does not call it:
// Close unlocks and then closes the handle directly.
package archive

import (
	"os"
	"sync"
)

// LockMode selects shared (read) or exclusive (write) locking.
type LockMode int

const (
	LockShared LockMode = iota
	LockExclusive
)

// fileLock coordinates OS-level file locks with safe handle teardown.
// The mu field serialises flock syscalls against setFile so that a
// concurrent Close cannot invalidate the fd mid-syscall.
type fileLock struct {
	mu sync.Mutex
	f  *os.File
}

// TryLock attempts to acquire a shared or exclusive flock without
// blocking. Returns false, nil if another process (or lock domain)
// already holds a conflicting lock. Returns true, nil immediately if
// the handle has been cleared via setFile(nil) — there is nothing to
// lock.
func (l *fileLock) TryLock(mode LockMode) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return true, nil
	}
	return l.tryLock(mode)
}

// Unlock releases the flock. Returns nil immediately if the handle
// has been cleared via setFile(nil).
func (l *fileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.unlock()
}

// setFile swaps the underlying file handle. Passing nil drains any
// in-flight flock (blocks until the mutex is available) and disables
// further locking.
func (l *fileLock) setFile(f *os.File) {
	l.mu.Lock()
	l.f = f
	l.mu.Unlock()
}
