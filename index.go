// Open-addressed hash index.
//
// The index is a contiguous array of fixed 20-byte slots living at
// header.IndexOffset, one of three states each:
//
//	empty     offset == 0
//	tombstone offset == tombstoneOffset (max uint64)
//	live      hash, name_len, offset of a record — name_len and the
//	          record's own stored name disambiguate hash collisions
//
// Probing is linear from hash % capacity, skipping tombstones, and
// terminates at the first empty slot, or after every slot has been
// visited once. Growth keeps the live count under 0.75 of capacity;
// tombstones do not count toward it and are reused by inserts.
//
// Growth relocates the whole table to a fresh region at EOF rather
// than resizing in place (the table's position is a header field
// specifically so it can move), then hands the vacated region to the
// free-space manager framed as a single free record spanning its
// entire length — the same accounting every other reclaimed byte
// range uses, so Verify's coverage pass never needs to know about
// index growth as a special case.
package archive

import (
	"crypto/rand"
	"encoding/binary"
)

const (
	indexSlotSize = 20 // hash(8) + name_len(4) + offset(8)

	slotHash    = 0
	slotNameLen = 8
	slotOffset  = 12

	initialIndexCapacity = 64

	growthLoadFactorNum = 3
	growthLoadFactorDen = 4
)

const tombstoneOffset = ^uint64(0)

func randomSeed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable for the
		// process; fall back to a fixed seed rather than panicking so
		// Create still produces a usable, if less adversary-resistant,
		// archive.
		return 0x9e3779b97f4a7c15
	}
	return binary.BigEndian.Uint64(buf[:])
}

type indexSlot struct {
	hash    uint64
	nameLen uint32
	offset  uint64 // 0 = empty, tombstoneOffset = tombstone
}

func encodeSlot(s indexSlot) []byte {
	buf := make([]byte, indexSlotSize)
	binary.BigEndian.PutUint64(buf[slotHash:], s.hash)
	binary.BigEndian.PutUint32(buf[slotNameLen:], s.nameLen)
	binary.BigEndian.PutUint64(buf[slotOffset:], s.offset)
	return buf
}

func decodeSlot(buf []byte) indexSlot {
	return indexSlot{
		hash:    binary.BigEndian.Uint64(buf[slotHash:]),
		nameLen: binary.BigEndian.Uint32(buf[slotNameLen:]),
		offset:  binary.BigEndian.Uint64(buf[slotOffset:]),
	}
}

func (a *Archive[M]) slotOffsetAt(i uint64) int64 {
	return int64(a.header.IndexOffset) + int64(i)*indexSlotSize
}

func (a *Archive[M]) readSlot(i uint64) (indexSlot, error) {
	buf, err := readAt(a.reader, a.slotOffsetAt(i), indexSlotSize)
	if err != nil {
		return indexSlot{}, err
	}
	return decodeSlot(buf), nil
}

func (a *Archive[M]) writeSlot(i uint64, s indexSlot) error {
	return writeAt(a.writer, a.slotOffsetAt(i), encodeSlot(s))
}

// probeSequence invokes visit for each slot index starting at
// hash%capacity, in linear-probe order, until visit returns true
// (stop) or every slot has been visited once.
func (a *Archive[M]) probeSequence(hash uint64, visit func(i uint64, s indexSlot) (stop bool, err error)) error {
	tableCap := a.header.IndexCapacity
	start := hash % tableCap
	for step := uint64(0); step < tableCap; step++ {
		i := (start + step) % tableCap
		s, err := a.readSlot(i)
		if err != nil {
			return err
		}
		stop, err := visit(i, s)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

// indexLookup returns the slot index and offset of the live record
// named name, or found=false if none exists. It disambiguates hash
// collisions by reading the candidate record's stored name.
func (a *Archive[M]) indexLookup(name []byte) (slotIdx uint64, offset int64, found bool, err error) {
	h := indexHash(a.header.HashSeed, name)
	if a.negLookup != nil && !a.negLookup.mightContain(h) {
		return 0, 0, false, nil
	}
	err = a.probeSequence(h, func(i uint64, s indexSlot) (bool, error) {
		if s.offset == 0 {
			return true, nil // empty: probe sequence ends
		}
		if s.offset == tombstoneOffset {
			return false, nil
		}
		if s.hash != h || int(s.nameLen) != len(name) {
			return false, nil
		}
		candidateName, nerr := readAt(a.reader, int64(s.offset)+recordPrefixSize, len(name))
		if nerr != nil {
			return false, nerr
		}
		if string(candidateName) != string(name) {
			return false, nil
		}
		slotIdx, offset, found = i, int64(s.offset), true
		return true, nil
	})
	return
}

// indexInsert places a new live slot for (name, offset) in the first
// empty or tombstoned slot of its probe sequence. Caller must already
// have established that name has no existing live slot.
func (a *Archive[M]) indexInsert(name []byte, offset int64) error {
	if err := a.maybeGrow(); err != nil {
		return err
	}
	h := indexHash(a.header.HashSeed, name)
	var placed bool
	var firstFree uint64
	err := a.probeSequence(h, func(i uint64, s indexSlot) (bool, error) {
		if s.offset == 0 || s.offset == tombstoneOffset {
			firstFree = i
			placed = true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if !placed {
		return &CorruptError{Kind: CoverageGap, Offset: -1}
	}
	if err := a.writeSlot(firstFree, indexSlot{hash: h, nameLen: uint32(len(name)), offset: uint64(offset)}); err != nil {
		return err
	}
	a.header.IndexLiveCount++
	if a.negLookup != nil {
		a.negLookup.add(h)
	}
	return a.writeHeader()
}

// indexDelete tombstones the slot at slotIdx.
func (a *Archive[M]) indexDelete(slotIdx uint64) error {
	if err := a.writeSlot(slotIdx, indexSlot{offset: tombstoneOffset}); err != nil {
		return err
	}
	a.header.IndexLiveCount--
	return a.writeHeader()
}

// indexUpdateOffset repoints an existing live slot at a record that
// moved (Update allocating a new slot for grown content).
func (a *Archive[M]) indexUpdateOffset(slotIdx uint64, h uint64, nameLen int, offset int64) error {
	return a.writeSlot(slotIdx, indexSlot{hash: h, nameLen: uint32(nameLen), offset: uint64(offset)})
}

func (a *Archive[M]) loadFactor() (num, den uint64) {
	return a.header.IndexLiveCount + 1, a.header.IndexCapacity
}

func (a *Archive[M]) maybeGrow() error {
	num, den := a.loadFactor()
	if num*growthLoadFactorDen < growthLoadFactorNum*den {
		return nil
	}
	return a.growIndex()
}

// growIndex doubles the index's capacity. It writes the new table at
// EOF, repopulating it from every currently-live slot (tombstones are
// dropped in the process), then atomically repoints the header at the
// new table, then hands the old table's byte range to the free-space
// manager as a single reclaimed span.
func (a *Archive[M]) growIndex() error {
	oldOffset := int64(a.header.IndexOffset)
	oldCapacity := a.header.IndexCapacity
	newCapacity := oldCapacity * 2

	newOffset := a.tail
	newBytes := make([]byte, newCapacity*indexSlotSize)
	for i := uint64(0); i < newCapacity; i++ {
		binary.BigEndian.PutUint64(newBytes[i*indexSlotSize+slotOffset:], 0)
	}

	var live []indexEntry
	for i := uint64(0); i < oldCapacity; i++ {
		s, err := a.readSlot(i)
		if err != nil {
			return err
		}
		if s.offset != 0 && s.offset != tombstoneOffset {
			live = append(live, indexEntry{s.hash, s.nameLen, s.offset})
		}
	}

	placeInNew := func(h uint64) uint64 {
		start := h % newCapacity
		for step := uint64(0); step < newCapacity; step++ {
			i := (start + step) % newCapacity
			off := binary.BigEndian.Uint64(newBytes[i*indexSlotSize+slotOffset:])
			if off == 0 {
				return i
			}
		}
		return 0
	}
	for _, e := range live {
		i := placeInNew(e.hash)
		binary.BigEndian.PutUint64(newBytes[i*indexSlotSize+slotHash:], e.hash)
		binary.BigEndian.PutUint32(newBytes[i*indexSlotSize+slotNameLen:], e.nameLen)
		binary.BigEndian.PutUint64(newBytes[i*indexSlotSize+slotOffset:], e.offset)
	}

	if err := writeAt(a.writer, newOffset, newBytes); err != nil {
		return err
	}
	if err := syncFile(a.writer); err != nil {
		return err
	}
	a.tail = newOffset + int64(len(newBytes))

	a.header.IndexOffset = uint64(newOffset)
	a.header.IndexCapacity = newCapacity
	a.header.IndexLiveCount = uint64(len(live))
	if err := a.writeHeader(); err != nil {
		return err
	}

	a.rebuildNegLookup(live)

	oldSize := int64(oldCapacity) * indexSlotSize
	return a.reclaimRaw(oldOffset, oldSize)
}

// indexEntry is a live slot's payload, used when rehashing the table
// during growth or a full Repair rebuild.
type indexEntry struct {
	hash    uint64
	nameLen uint32
	offset  uint64
}

// rescanNegLookup walks the whole current table and rebuilds the
// in-memory filter from scratch. Called once at Open (Repair rebuilds
// it again itself, since Repair replaces the table wholesale).
func (a *Archive[M]) rescanNegLookup() error {
	tableCap := a.header.IndexCapacity
	var live []indexEntry
	for i := uint64(0); i < tableCap; i++ {
		s, err := a.readSlot(i)
		if err != nil {
			return err
		}
		if s.offset != 0 && s.offset != tombstoneOffset {
			live = append(live, indexEntry{s.hash, s.nameLen, s.offset})
		}
	}
	a.rebuildNegLookup(live)
	return nil
}

func (a *Archive[M]) rebuildNegLookup(live []indexEntry) {
	nl := newNegLookup(len(live))
	for _, e := range live {
		nl.add(e.hash)
	}
	a.negLookup = nl
}
