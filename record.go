// Record framing: the 24-byte fixed prefix plus name/meta/data/digest,
// per spec.md §4.3.
//
//	 0 .. 7  next_free_offset : u64   (0 = live)
//	 8 ..11  name_len         : u32
//	12 ..19  data_len         : u64   (length of the stored payload —
//	                                   may be the zstd-compressed length;
//	                                   see compress.go)
//	20       flags            : u8    (bit0 = freed, bit1 = compressed)
//	21 ..23  reserved/pad     : u8 × 3
//
// followed by name_len bytes of name, MetaSize bytes of metadata,
// data_len bytes of stored payload, then a 32-byte BLAKE2b-256 digest
// of name‖meta‖data — always the original, uncompressed data, so the
// digest is independent of whether compression is in use.
package archive

import (
	"encoding/binary"
)

const (
	recordPrefixSize = 24

	prefNextFree = 0
	prefNameLen  = 8
	prefDataLen  = 12
	prefFlags    = 20
)

const (
	flagFreed      = 1 << 0
	flagCompressed = 1 << 1
)

// recordSize returns the total on-disk size of a record given the
// lengths of its three variable sections.
func recordSize(nameLen, metaSize, storedDataLen int) int64 {
	return int64(recordPrefixSize) + int64(nameLen) + int64(metaSize) + int64(storedDataLen) + int64(DigestSize)
}

// frame is a fully decoded record: everything needed by the index,
// free-space manager, and verify to reason about it without re-reading
// the file.
type frame struct {
	offset     int64  // position of this record in the file
	size       int64  // total bytes occupied on disk
	freed      bool   // flags.bit0
	compressed bool   // flags.bit1
	nextFree   uint64 // valid only when freed
	name       []byte
	meta       []byte
	storedData []byte // on-disk bytes: compressed if compressed==true
	digest     [DigestSize]byte
}

// data returns the record's logical payload, decompressing it if
// necessary. For freed records the stored bytes are whatever was left
// behind at free time and callers must not interpret them as live data.
func (f *frame) data() ([]byte, error) {
	if !f.compressed {
		return f.storedData, nil
	}
	return decompressPayload(f.storedData)
}

// encodeRecord builds the on-disk bytes for a live record. meta must be
// exactly metaSize bytes — the archive layer enforces this before
// calling in, but encodeRecord re-checks because a caller-supplied
// Codec bug here would otherwise corrupt the file rather than fail
// loudly.
func encodeRecord(name, meta, data []byte, metaSize int, compress bool) ([]byte, error) {
	if len(meta) != metaSize {
		return nil, &metaSizeError{got: len(meta), want: metaSize}
	}

	stored := data
	flags := byte(0)
	if compress {
		stored = compressPayload(data)
		flags |= flagCompressed
	}

	digest := recordDigest(name, meta, data)

	total := recordSize(len(name), metaSize, len(stored))
	buf := make([]byte, total)

	binary.BigEndian.PutUint64(buf[prefNextFree:], 0)
	binary.BigEndian.PutUint32(buf[prefNameLen:], uint32(len(name)))
	binary.BigEndian.PutUint64(buf[prefDataLen:], uint64(len(stored)))
	buf[prefFlags] = flags

	off := recordPrefixSize
	off += copy(buf[off:], name)
	off += copy(buf[off:], meta)
	off += copy(buf[off:], stored)
	copy(buf[off:], digest[:])

	return buf, nil
}

// decodeRecord parses a record whose prefix begins at buf[0]. metaSize
// is supplied by the caller (it is fixed per-archive, from the header)
// since it is not itself encoded in the prefix. verifyDigest controls
// whether the digest is recomputed and checked — verify() always
// checks it; hot-path lookups that already trust the file (e.g. after
// a successful index probe match) may skip it for speed, at the cost
// of not catching bit rot on that particular read.
func decodeRecord(buf []byte, offset int64, metaSize int, verifyDigest bool) (*frame, error) {
	if len(buf) < recordPrefixSize {
		return nil, &CorruptError{Kind: LengthOverflow, Offset: offset}
	}

	nextFree := binary.BigEndian.Uint64(buf[prefNextFree:])
	nameLen := binary.BigEndian.Uint32(buf[prefNameLen:])
	dataLen := binary.BigEndian.Uint64(buf[prefDataLen:])
	flags := buf[prefFlags]
	freed := flags&flagFreed != 0
	compressed := flags&flagCompressed != 0

	if !freed && nextFree != 0 {
		return nil, &CorruptError{Kind: FlagOffsetConflict, Offset: offset}
	}

	total := recordSize(int(nameLen), metaSize, int(dataLen))
	if total < 0 || int64(len(buf)) < total {
		return nil, &CorruptError{Kind: LengthOverflow, Offset: offset}
	}

	pos := recordPrefixSize
	name := buf[pos : pos+int(nameLen)]
	pos += int(nameLen)
	meta := buf[pos : pos+metaSize]
	pos += metaSize
	stored := buf[pos : pos+int(dataLen)]
	pos += int(dataLen)

	var digest [DigestSize]byte
	copy(digest[:], buf[pos:pos+DigestSize])

	f := &frame{
		offset:     offset,
		size:       total,
		freed:      freed,
		compressed: compressed,
		nextFree:   nextFree,
		name:       name,
		meta:       meta,
		storedData: stored,
		digest:     digest,
	}

	if verifyDigest && !freed {
		data, err := f.data()
		if err != nil {
			return nil, err
		}
		got := recordDigest(name, meta, data)
		if got != digest {
			return nil, &CorruptError{Kind: DigestMismatch, Offset: offset}
		}
	}

	return f, nil
}

// peekLengths reads name_len and data_len out of a 24-byte prefix
// without fully decoding the record — enough to know how many more
// bytes to read before calling decodeRecord.
func peekLengths(prefix []byte) (nameLen, dataLen int) {
	return int(binary.BigEndian.Uint32(prefix[prefNameLen:])), int(binary.BigEndian.Uint64(prefix[prefDataLen:]))
}

// metaSizeError is a programmer error: the consumer's Codec wrote a
// meta blob of the wrong length. It is not one of the archive's
// documented Access/Archive errors because it signals a bug in the
// caller's own Codec, not a runtime condition the archive expects
// callers to handle.
type metaSizeError struct {
	got, want int
}

func (e *metaSizeError) Error() string {
	return "archive: meta codec wrote wrong length"
}
