package archive

import (
	"os"
	"testing"
)

func TestFileLockExclusiveThenExclusiveFails(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/lock.dat"
	f1 := mustOpenForLocking(t, path)
	defer f1.Close()
	f2 := mustOpenForLocking(t, path)
	defer f2.Close()

	l1 := &fileLock{f: f1}
	l2 := &fileLock{f: f2}

	ok, err := l1.TryLock(LockExclusive)
	if err != nil || !ok {
		t.Fatalf("first exclusive lock: ok=%v err=%v", ok, err)
	}
	ok, err = l2.TryLock(LockExclusive)
	if err != nil {
		t.Fatalf("second exclusive lock attempt: %v", err)
	}
	if ok {
		t.Errorf("second exclusive lock succeeded while the first is still held")
	}

	if err := l1.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	ok, err = l2.TryLock(LockExclusive)
	if err != nil || !ok {
		t.Errorf("exclusive lock after release: ok=%v err=%v", ok, err)
	}
}

func TestFileLockSharedAllowsMultipleReaders(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/lock.dat"
	f1 := mustOpenForLocking(t, path)
	defer f1.Close()
	f2 := mustOpenForLocking(t, path)
	defer f2.Close()

	l1 := &fileLock{f: f1}
	l2 := &fileLock{f: f2}

	ok, err := l1.TryLock(LockShared)
	if err != nil || !ok {
		t.Fatalf("first shared lock: ok=%v err=%v", ok, err)
	}
	ok, err = l2.TryLock(LockShared)
	if err != nil || !ok {
		t.Errorf("second shared lock while first held: ok=%v err=%v", ok, err)
	}
}

func TestFileLockClearedHandleIsNoop(t *testing.T) {
	l := &fileLock{}
	l.setFile(nil)
	ok, err := l.TryLock(LockExclusive)
	if err != nil || !ok {
		t.Errorf("TryLock on a cleared fileLock: ok=%v err=%v, want true, nil", ok, err)
	}
	if err := l.Unlock(); err != nil {
		t.Errorf("Unlock on a cleared fileLock: %v", err)
	}
}

func mustOpenForLocking(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	return f
}
