// Object creation.
package archive

// Publish creates a new object named name. It returns ErrAlreadyExists
// if a live object already has that name.
func (a *Archive[M]) Publish(name string, meta M, data []byte) error {
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

	_, _, found, err := a.indexLookup([]byte(name))
	if err != nil {
		return err
	}
	if found {
		return ErrAlreadyExists
	}

	if err := a.markDirty(); err != nil {
		return err
	}

	buf, err := encodeRecord([]byte(name), metaBuf, data, a.codec.Size(), a.config.Compress)
	if err != nil {
		return err
	}

	offset, err := a.allocate(int64(len(buf)))
	if err != nil {
		return err
	}
	if err := writeAt(a.writer, offset, buf); err != nil {
		return err
	}
	if err := syncFile(a.writer); err != nil {
		return err
	}

	if err := a.indexInsert([]byte(name), offset); err != nil {
		return err
	}

	return a.clearDirtyIfQuiescent()
}

// clearDirtyIfQuiescent clears the header's dirty flag once a mutation
// has fully committed. Each public CRUD method sets it at the start
// (markDirty) and clears it here at the end, so a crash mid-operation
// always leaves it set and forces Repair on the next Open.
func (a *Archive[M]) clearDirtyIfQuiescent() error {
	if !a.header.Dirty {
		return nil
	}
	a.header.Dirty = false
	return a.writeHeader()
}
