// On-disk corruption and crash-recovery tests.
//
// Every test writes valid data through the normal API, then
// surgically damages specific bytes or flags before calling the
// operation under test — the same technique the teacher's own
// corruption suite uses, adapted to this format's fixed binary layout
// instead of JSON text.
package archive

import (
	"errors"
	"os"
	"testing"
)

func TestVerifyDetectsDigestCorruption(t *testing.T) {
	a := openTestArchive(t)
	if err := a.Publish("alpha", meta8(1), []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	_, offset, found, err := a.indexLookup([]byte("alpha"))
	if err != nil || !found {
		t.Fatalf("indexLookup: found=%v err=%v", found, err)
	}

	// Flip a byte inside the stored payload: prefix(24) + name("alpha",
	// 5 bytes) + meta(8 bytes) puts "hello"'s bytes at offset+37.
	corrupt := []byte{0xFF}
	if err := writeAt(a.writer, offset+recordPrefixSize+5+8+1, corrupt); err != nil {
		t.Fatalf("corrupting payload: %v", err)
	}

	_, _, err = a.Fetch("alpha")
	var corruptErr *CorruptError
	if !errors.As(err, &corruptErr) || corruptErr.Kind != DigestMismatch {
		t.Errorf("Fetch after payload corruption: got %v, want DigestMismatch", err)
	}

	err = a.Verify()
	if !errors.As(err, &corruptErr) || corruptErr.Kind != DigestMismatch {
		t.Errorf("Verify after payload corruption: got %v, want DigestMismatch", err)
	}
}

func TestVerifyDetectsDanglingIndex(t *testing.T) {
	a := openTestArchive(t)
	if err := a.Publish("alpha", meta8(1), []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	slotIdx, offset, found, err := a.indexLookup([]byte("alpha"))
	if err != nil || !found {
		t.Fatalf("indexLookup: found=%v err=%v", found, err)
	}

	// Directly free the record's bytes without touching the index slot,
	// simulating an index slot left pointing at a reclaimed record.
	if err := a.freeRecord(offset, len("alpha"), len("hello")); err != nil {
		t.Fatalf("freeRecord: %v", err)
	}
	_ = slotIdx

	err = a.Verify()
	var corruptErr *CorruptError
	if !errors.As(err, &corruptErr) || corruptErr.Kind != DanglingIndex {
		t.Errorf("Verify after orphaning index slot: got %v, want DanglingIndex", err)
	}
}

func TestOpenAfterDirtyFlagRunsRepair(t *testing.T) {
	dir := t.TempDir()
	a, err := Create(dir, "d.rtrarch", FixedBytes{N: 4}, Config{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := a.Publish("alpha", meta8(1)[:4], []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// Simulate a crash mid-write: Publish clears the dirty flag once it
	// commits, so set it again the way an interrupted mutation leaves
	// it, then skip the normal Close path.
	if err := a.markDirty(); err != nil {
		t.Fatalf("markDirty: %v", err)
	}
	a.lock.Unlock()
	a.reader.Close()
	a.writer.Close()
	a.root.Close()

	b, err := Open(dir, "d.rtrarch", FixedBytes{N: 4}, Config{})
	if err != nil {
		t.Fatalf("Open after unclean shutdown: %v", err)
	}
	defer b.Close()

	if b.header.Dirty {
		t.Errorf("Open left the dirty flag set after running Repair")
	}
	if err := b.Verify(); err != nil {
		t.Errorf("Verify after Repair-on-Open: %v", err)
	}

	_, data, err := b.Fetch("alpha")
	if err != nil {
		t.Fatalf("Fetch after Repair-on-Open: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("data after Repair-on-Open = %q, want %q", data, "hello")
	}
}

func TestRepairReclaimsFreedSpace(t *testing.T) {
	a := openTestArchive(t)
	for i := 0; i < 20; i++ {
		name := objName(i)
		if err := a.Publish(name, meta8(byte(i)), []byte(name)); err != nil {
			t.Fatalf("Publish(%s): %v", name, err)
		}
	}
	for i := 0; i < 20; i += 2 {
		if err := a.Delete(objName(i), nil); err != nil {
			t.Fatalf("Delete(%s): %v", objName(i), err)
		}
	}

	if err := a.Repair(); err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if err := a.Verify(); err != nil {
		t.Errorf("Verify after Repair: %v", err)
	}

	for i := 1; i < 20; i += 2 {
		if _, _, err := a.Fetch(objName(i)); err != nil {
			t.Errorf("Fetch(%s) after Repair: %v", objName(i), err)
		}
	}
	for i := 0; i < 20; i += 2 {
		if _, _, err := a.Fetch(objName(i)); !errors.Is(err, ErrNotFound) {
			t.Errorf("Fetch(%s) after Repair: got %v, want ErrNotFound", objName(i), err)
		}
	}
}

func TestNotAnArchiveFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/junk.rtrarch"
	if err := writeJunkFile(path); err != nil {
		t.Fatalf("writing junk file: %v", err)
	}
	if _, err := Open(dir, "junk.rtrarch", FixedBytes{N: 4}, Config{}); !errors.Is(err, ErrNotAnArchive) {
		t.Errorf("Open on non-archive file: got %v, want ErrNotAnArchive", err)
	}
}

// writeJunkFile writes a file at least HeaderSize bytes long (so the
// header read itself succeeds) but with the wrong magic, exercising
// decodeHeader's magic check rather than a short-read error.
func writeJunkFile(path string) error {
	buf := make([]byte, HeaderSize)
	copy(buf, []byte("not an archive, just plain text padded out to length\n"))
	return os.WriteFile(path, buf, 0o644)
}
