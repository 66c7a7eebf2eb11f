// Object removal.
package archive

// Delete removes the live object named name, reclaiming its record
// into the free-space manager. It returns ErrNotFound if no live
// object has that name. If check is non-nil, it is called with the
// object's current metadata and data before the deletion is applied; a
// non-nil return aborts it and is reported wrapped in a
// ConsistencyError.
func (a *Archive[M]) Delete(name string, check CheckFunc[M]) error {
	if err := a.checkWritable(); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
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

	f, err := a.readFrameAt(offset)
	if err != nil {
		return err
	}

	if check != nil {
		meta, derr := a.codec.Decode(f.meta)
		if derr != nil {
			return derr
		}
		data, derr := f.data()
		if derr != nil {
			return derr
		}
		if cerr := check(meta, data); cerr != nil {
			return &ConsistencyError{Err: cerr}
		}
	}

	if err := a.markDirty(); err != nil {
		return err
	}

	// Tombstone the index slot before reclaiming the record: the other
	// order would briefly let a fresh Publish or a growth rehash find
	// the record's bytes through a stale index slot while freeRecord is
	// still mid-flight.
	if err := a.indexDelete(slotIdx); err != nil {
		return err
	}
	if err := a.freeRecord(offset, len(f.name), len(f.storedData)); err != nil {
		return err
	}

	return a.clearDirtyIfQuiescent()
}
