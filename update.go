// Object replacement.
package archive

// Update replaces the metadata and data of an existing object. It
// returns ErrNotFound if no live object has that name. If check is
// non-nil, it is called with the object's current metadata and data
// before the replacement is applied; a non-nil return aborts the
// update and is reported wrapped in a ConsistencyError.
//
// spec.md §4.4: "replacement may reuse the same record slot if the
// new size class fits; otherwise it allocates a new slot and frees
// the old." This reuses in place whenever the new encoding is no
// larger than the old slot's footprint and either matches it exactly
// or leaves a remainder big enough to stand alone as a free record;
// any other case — grows, or leaves an unsplittable sliver — takes the
// allocate-new/free-old path, always in that order so a crash mid-
// update never loses the prior value.
func (a *Archive[M]) Update(name string, meta M, data []byte, check CheckFunc[M]) error {
	if err := a.checkWritable(); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}
	metaBuf := make([]byte, a.codec.Size())
	if err := a.codec.Encode(metaBuf, meta); err != nil {
		return err
	}

	if err := a.blockWrite(); err != nil {
		return err
	}
	defer a.unblockWrite()

	slotIdx, offset, found, err := a.indexLookup([]byte(name))
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	old, err := a.readFrameAt(offset)
	if err != nil {
		return err
	}

	if check != nil {
		oldMeta, derr := a.codec.Decode(old.meta)
		if derr != nil {
			return derr
		}
		oldData, derr := old.data()
		if derr != nil {
			return derr
		}
		if cerr := check(oldMeta, oldData); cerr != nil {
			return &ConsistencyError{Err: cerr}
		}
	}

	if err := a.markDirty(); err != nil {
		return err
	}

	buf, err := encodeRecord([]byte(name), metaBuf, data, a.codec.Size(), a.config.Compress)
	if err != nil {
		return err
	}

	if a.fitsInPlace(old.size, int64(len(buf))) {
		if err := a.writeInPlace(offset, old.size, buf); err != nil {
			return err
		}
		return a.clearDirtyIfQuiescent()
	}

	newOffset, err := a.allocate(int64(len(buf)))
	if err != nil {
		return err
	}
	if err := writeAt(a.writer, newOffset, buf); err != nil {
		return err
	}
	if err := syncFile(a.writer); err != nil {
		return err
	}

	if err := a.indexUpdateOffset(slotIdx, indexHash(a.header.HashSeed, []byte(name)), len(name), newOffset); err != nil {
		return err
	}
	if err := syncFile(a.writer); err != nil {
		return err
	}

	if err := a.freeRecord(offset, len(old.name), len(old.storedData)); err != nil {
		return err
	}

	return a.clearDirtyIfQuiescent()
}

// fitsInPlace reports whether a record of newLen bytes can occupy a
// slot whose current footprint is oldCapacity without leaving an
// unsplittable sliver behind.
func (a *Archive[M]) fitsInPlace(oldCapacity, newLen int64) bool {
	if newLen > oldCapacity {
		return false
	}
	leftover := oldCapacity - newLen
	return leftover == 0 || leftover >= minFreeBlockSize(int(a.header.MetaSize))
}

// writeInPlace writes buf (length <= oldCapacity, pre-checked by
// fitsInPlace) at offset and, if there is room left over, frames the
// remainder as a free record of its own.
func (a *Archive[M]) writeInPlace(offset, oldCapacity int64, buf []byte) error {
	if err := writeAt(a.writer, offset, buf); err != nil {
		return err
	}
	if err := syncFile(a.writer); err != nil {
		return err
	}

	leftover := oldCapacity - int64(len(buf))
	if leftover <= 0 {
		return nil
	}

	remOffset := offset + int64(len(buf))
	remClass := floorClass(leftover)
	if remClass < 0 {
		remClass = 0
	}
	head := a.header.FreeListHeads[remClass]
	if err := a.writeFreeNode(remOffset, leftover, head, int(a.header.MetaSize)); err != nil {
		return err
	}
	if err := syncFile(a.writer); err != nil {
		return err
	}
	a.header.FreeListHeads[remClass] = uint64(remOffset)
	return a.writeHeader()
}
