// Object retrieval.
package archive

// Fetch returns the metadata and data currently stored under name. It
// returns ErrNotFound if no live object has that name, or a
// CorruptError if the stored record fails its digest check.
func (a *Archive[M]) Fetch(name string) (M, []byte, error) {
	var zero M
	if err := validateName(name); err != nil {
		return zero, nil, err
	}
	if err := a.blockRead(); err != nil {
		return zero, nil, err
	}
	defer a.unblockRead()

	_, offset, found, err := a.indexLookup([]byte(name))
	if err != nil {
		return zero, nil, err
	}
	if !found {
		return zero, nil, ErrNotFound
	}

	f, err := a.readFrameAt(offset)
	if err != nil {
		return zero, nil, err
	}

	meta, err := a.codec.Decode(f.meta)
	if err != nil {
		return zero, nil, err
	}
	data, err := f.data()
	if err != nil {
		return zero, nil, err
	}
	return meta, data, nil
}

// Exists reports whether name currently has a live object, without
// reading or verifying its payload.
func (a *Archive[M]) Exists(name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	if err := a.blockRead(); err != nil {
		return false, err
	}
	defer a.unblockRead()

	_, _, found, err := a.indexLookup([]byte(name))
	return found, err
}

// readFrameAt decodes the record at offset, reading only as many
// bytes as its own declared lengths call for. It reads the 24-byte
// prefix first to learn the lengths, then the full record, then
// verifies the digest.
func (a *Archive[M]) readFrameAt(offset int64) (*frame, error) {
	prefix, err := readAt(a.reader, offset, recordPrefixSize)
	if err != nil {
		return nil, err
	}
	nameLen, dataLen := peekLengths(prefix)
	total := recordSize(nameLen, int(a.header.MetaSize), dataLen)
	buf, err := readAt(a.reader, offset, int(total))
	if err != nil {
		return nil, err
	}
	return decodeRecord(buf, offset, int(a.header.MetaSize), true)
}
