// Consistency checking and crash recovery.
//
// Verify is the pure, read-only counterpart of spec.md §4.2's fsck:
// three passes over the on-disk structures (records, index, free
// lists), reporting the first CorruptError found. The record pass also
// serves as the coverage check: it steps record by record from the end
// of the header to EOF and fails if a record or the index region runs
// past the end of the file. Repair is the mutating counterpart
// — given that a record pass alone can reconstruct the index and free
// list (every live/freed record already carries its own name and
// length), Repair rebuilds both from scratch rather than trying to
// patch whatever state Verify found broken, the same all-or-nothing
// strategy the teacher's temp-file Repair uses for its own
// reorganisation.
package archive

import "encoding/binary"

// recordWalkFn is called once per record found on a full sequential
// walk of the heap. Returning a non-nil error stops the walk.
type recordWalkFn func(offset, size int64, freed bool, name []byte) error

// walkRecords scans [HeaderSize, EOF) in file order, skipping the
// current index region (which may sit anywhere in that range — growth
// relocates it to EOF, leaving earlier records in place before it) and
// decoding everything else as a record. It never checks digests; that
// is Verify's job specifically, so a plain walk stays cheap.
func (a *Archive[M]) walkRecords(visit recordWalkFn) error {
	size, err := fileSize(a.writer)
	if err != nil {
		return err
	}
	indexStart := int64(a.header.IndexOffset)
	indexEnd := indexStart + int64(a.header.IndexCapacity)*indexSlotSize

	cursor := int64(HeaderSize)
	for cursor < size {
		if cursor == indexStart {
			cursor = indexEnd
			continue
		}
		prefix, err := readAt(a.reader, cursor, recordPrefixSize)
		if err != nil {
			return err
		}
		nameLen, dataLen := peekLengths(prefix)
		freed := prefix[prefFlags]&flagFreed != 0
		total := recordSize(nameLen, int(a.header.MetaSize), dataLen)
		if total <= 0 || cursor+total > size {
			return &CorruptError{Kind: LengthOverflow, Offset: cursor}
		}
		var name []byte
		if nameLen > 0 {
			name, err = readAt(a.reader, cursor+recordPrefixSize, nameLen)
			if err != nil {
				return err
			}
		}
		if err := visit(cursor, total, freed, name); err != nil {
			return err
		}
		cursor += total
	}
	if cursor != size {
		return &CorruptError{Kind: CoverageGap, Offset: cursor}
	}
	return nil
}

// Verify performs a full consistency check without modifying the
// file. It returns the first CorruptError found, or nil if the
// archive is structurally sound. Verify does not require exclusive
// access — it runs under the same read lock Fetch and Objects use —
// but a concurrent writer can make it observe a torn intermediate
// state, so a failure returned by Verify while writes are in flight is
// not necessarily evidence of a genuine on-disk defect.
func (a *Archive[M]) Verify() error {
	if err := a.blockRead(); err != nil {
		return err
	}
	defer a.unblockRead()

	type recordInfo struct {
		size  int64
		freed bool
		name  []byte
	}
	records := make(map[int64]recordInfo)

	if err := a.walkRecords(func(offset, size int64, freed bool, name []byte) error {
		if !freed {
			if _, err := a.readFrameAt(offset); err != nil {
				return err // readFrameAt's decodeRecord already checks the digest
			}
		}
		records[offset] = recordInfo{size: size, freed: freed, name: name}
		return nil
	}); err != nil {
		return err
	}

	// Index pass: every non-empty, non-tombstone slot must reference a
	// live record whose stored name hashes to the slot's own hash.
	liveFromIndex := make(map[int64]bool)
	tableCap := a.header.IndexCapacity
	for i := uint64(0); i < tableCap; i++ {
		s, err := a.readSlot(i)
		if err != nil {
			return err
		}
		if s.offset == 0 || s.offset == tombstoneOffset {
			continue
		}
		info, ok := records[int64(s.offset)]
		if !ok || info.freed {
			return &CorruptError{Kind: DanglingIndex, Offset: int64(s.offset)}
		}
		if indexHash(a.header.HashSeed, info.name) != s.hash {
			return &CorruptError{Kind: NameMismatch, Offset: int64(s.offset)}
		}
		liveFromIndex[int64(s.offset)] = true
	}
	for offset, info := range records {
		if !info.freed && !liveFromIndex[offset] {
			return &CorruptError{Kind: FreedLiveConflict, Offset: offset}
		}
	}

	// Free-list pass: every bucket's chain must terminate without
	// revisiting an offset, and every node it visits must be classified
	// as freed by the record pass.
	for classIdx := 0; classIdx < numSizeClasses; classIdx++ {
		visited := make(map[int64]bool)
		cur := a.header.FreeListHeads[classIdx]
		for cur != 0 {
			if visited[int64(cur)] {
				return &CorruptError{Kind: FreeListCycle, Offset: int64(cur)}
			}
			visited[int64(cur)] = true
			info, ok := records[int64(cur)]
			if !ok || !info.freed {
				return &CorruptError{Kind: FreedLiveConflict, Offset: int64(cur)}
			}
			node, err := a.peekFreeNode(int64(cur))
			if err != nil {
				return err
			}
			cur = node.nextFree
		}
	}

	return nil
}

// Repair rebuilds the index and free lists from scratch by re-running
// the record pass and discarding whatever the header's index pointer
// and free-list heads previously claimed. It runs with exclusive
// access (blocking readers too), matching the teacher's
// BlockReaders-on-crash-recovery behaviour, since a half-built index
// read concurrently would be worse than blocking briefly.
func (a *Archive[M]) Repair() error {
	if err := a.checkWritable(); err != nil {
		return err
	}
	if err := a.blockExclusive(); err != nil {
		return err
	}
	defer a.unblockExclusive()

	type liveRec struct {
		offset  int64
		nameLen int
		name    []byte
	}
	var liveRecs []liveRec
	type freeRec struct {
		offset int64
		size   int64
	}
	var freeRecs []freeRec

	if err := a.walkRecords(func(offset, size int64, freed bool, name []byte) error {
		if freed {
			freeRecs = append(freeRecs, freeRec{offset, size})
		} else {
			liveRecs = append(liveRecs, liveRec{offset, len(name), name})
		}
		return nil
	}); err != nil {
		return err
	}

	// The table being replaced is not a record: frame it as free space so
	// later record walks can step over it.
	freeRecs = append(freeRecs, freeRec{int64(a.header.IndexOffset), int64(a.header.IndexCapacity) * indexSlotSize})

	newCapacity := uint64(initialIndexCapacity)
	for uint64(len(liveRecs))*growthLoadFactorDen >= uint64(newCapacity)*growthLoadFactorNum {
		newCapacity *= 2
	}

	newOffset := a.tail
	slots := make([]byte, newCapacity*indexSlotSize)
	place := func(h uint64) uint64 {
		start := h % newCapacity
		for step := uint64(0); step < newCapacity; step++ {
			i := (start + step) % newCapacity
			if binary.BigEndian.Uint64(slots[i*indexSlotSize+slotOffset:]) == 0 {
				return i
			}
		}
		return 0
	}
	entries := make([]indexEntry, 0, len(liveRecs))
	for _, r := range liveRecs {
		h := indexHash(a.header.HashSeed, r.name)
		i := place(h)
		binary.BigEndian.PutUint64(slots[i*indexSlotSize+slotHash:], h)
		binary.BigEndian.PutUint32(slots[i*indexSlotSize+slotNameLen:], uint32(r.nameLen))
		binary.BigEndian.PutUint64(slots[i*indexSlotSize+slotOffset:], uint64(r.offset))
		entries = append(entries, indexEntry{hash: h, nameLen: uint32(r.nameLen), offset: uint64(r.offset)})
	}

	if err := writeAt(a.writer, newOffset, slots); err != nil {
		return err
	}
	if err := syncFile(a.writer); err != nil {
		return err
	}
	a.tail = newOffset + int64(len(slots))

	a.header.IndexOffset = uint64(newOffset)
	a.header.IndexCapacity = newCapacity
	a.header.IndexLiveCount = uint64(len(liveRecs))
	for i := range a.header.FreeListHeads {
		a.header.FreeListHeads[i] = 0
	}
	a.header.Dirty = true
	if err := a.writeHeader(); err != nil {
		return err
	}

	for _, fr := range freeRecs {
		classIdx := floorClass(fr.size)
		if classIdx < 0 {
			continue
		}
		head := a.header.FreeListHeads[classIdx]
		if err := a.writeFreeNode(fr.offset, fr.size, head, int(a.header.MetaSize)); err != nil {
			return err
		}
		a.header.FreeListHeads[classIdx] = uint64(fr.offset)
	}
	if err := syncFile(a.writer); err != nil {
		return err
	}
	if err := a.writeHeader(); err != nil {
		return err
	}

	a.rebuildNegLookup(entries)

	a.header.Dirty = false
	return a.writeHeader()
}
