// Header layout and (de)serialization.
//
// The header is a fixed-size binary region at offset 0. Every
// structural change — index growth, a free-list head update, an index
// region swap — re-encodes and fsyncs the whole header, so readers
// never observe a torn mix of old and new section boundaries.
//
// The wire map in spec.md §6 lays out magic, version, meta_size,
// hash_seed, index_offset, index_capacity, index_live_count, and 12
// free-list heads at fixed offsets ending at byte 144 — 16 bytes past
// the "(fixed 128 bytes)" figure quoted earlier in the same section.
// This build treats the explicit byte map as authoritative (the 128
// figure predates the 12-bucket free list being pinned down) and sizes
// the header to cover it, plus the reserved byte at offset 144 used as
// a dirty flag and seven bytes of zero padding (152 bytes in all). The
// dirty flag is a fast crash-detection signal on Open so a full
// Verify is only required when the flag was left set. This is an
// additive use of the spec's own "reserved/zeros" tail, not a change to
// any field the wire format names.
package archive

import (
	"encoding/binary"
	"fmt"
)

// numSizeClasses is the number of free-list buckets, spanning 64B to
// 1GiB (class sizes are listed in freelist.go's sizeClassExponents).
const numSizeClasses = 12

const (
	offMagic     = 0
	offVersion   = 8
	offMetaSize  = 12
	offHashSeed  = 16
	offIndexOff  = 24
	offIndexCap  = 32
	offIndexLive = 40
	offFreeHeads = 48
	offDirty     = offFreeHeads + numSizeClasses*8 // 144

	// HeaderSize is the total on-disk size of the header region,
	// including the one-byte dirty flag and trailing zero padding.
	HeaderSize = offDirty + 8
)

// magic identifies a file as an archive. version is the only format
// this build understands.
var magic = [8]byte{'R', 'T', 'R', 'A', 'R', 'C', 'H', 0}

const currentVersion uint32 = 1

// Header is the in-memory view of the file's fixed-size prologue.
type Header struct {
	Version        uint32
	MetaSize       uint32
	HashSeed       uint64
	IndexOffset    uint64
	IndexCapacity  uint64
	IndexLiveCount uint64
	FreeListHeads  [numSizeClasses]uint64
	Dirty          bool
}

// encode serializes h into exactly HeaderSize bytes.
func (h *Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[offMagic:], magic[:])
	binary.BigEndian.PutUint32(buf[offVersion:], h.Version)
	binary.BigEndian.PutUint32(buf[offMetaSize:], h.MetaSize)
	binary.BigEndian.PutUint64(buf[offHashSeed:], h.HashSeed)
	binary.BigEndian.PutUint64(buf[offIndexOff:], h.IndexOffset)
	binary.BigEndian.PutUint64(buf[offIndexCap:], h.IndexCapacity)
	binary.BigEndian.PutUint64(buf[offIndexLive:], h.IndexLiveCount)
	for i, head := range h.FreeListHeads {
		binary.BigEndian.PutUint64(buf[offFreeHeads+i*8:], head)
	}
	if h.Dirty {
		buf[offDirty] = 1
	}
	return buf
}

// decodeHeader parses a HeaderSize-byte buffer. It validates the magic
// and version but not meta_size, so callers can distinguish
// ErrNotAnArchive/ErrVersionMismatch from ErrMetaSizeMismatch.
func decodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("archive: short header read (%d bytes)", len(buf))
	}
	if string(buf[offMagic:offMagic+8]) != string(magic[:]) {
		return nil, ErrNotAnArchive
	}
	version := binary.BigEndian.Uint32(buf[offVersion:])
	if version != currentVersion {
		return nil, ErrVersionMismatch
	}

	h := &Header{
		Version:        version,
		MetaSize:       binary.BigEndian.Uint32(buf[offMetaSize:]),
		HashSeed:       binary.BigEndian.Uint64(buf[offHashSeed:]),
		IndexOffset:    binary.BigEndian.Uint64(buf[offIndexOff:]),
		IndexCapacity:  binary.BigEndian.Uint64(buf[offIndexCap:]),
		IndexLiveCount: binary.BigEndian.Uint64(buf[offIndexLive:]),
		Dirty:          buf[offDirty] != 0,
	}
	for i := range h.FreeListHeads {
		h.FreeListHeads[i] = binary.BigEndian.Uint64(buf[offFreeHeads+i*8:])
	}
	return h, nil
}
