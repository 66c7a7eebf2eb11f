// Metadata capability: spec.md §9 models the archive as parameterized
// by "{META_SIZE: const usize, encode(&self, &mut Writer), decode(&mut
// Reader) -> Self}" and notes generics suffice for it. Codec[M] is that
// capability as a Go interface.
package archive

// Codec turns a metadata value of type M into the fixed-size blob the
// archive stores alongside every object, and back. Size() must be
// constant for a given Codec instance — the archive records it once in
// the header at Create time and rejects Open calls whose Codec
// disagrees (ErrMetaSizeMismatch).
type Codec[M any] interface {
	// Size is the exact number of bytes Encode writes and Decode reads.
	Size() int
	// Encode writes exactly Size() bytes to dst. dst is guaranteed to
	// have length Size().
	Encode(dst []byte, m M) error
	// Decode parses exactly Size() bytes from src into an M. src is
	// guaranteed to have length Size().
	Decode(src []byte) (M, error)
}

// FixedBytes is a Codec for the common case where metadata is itself
// just a fixed-size raw byte blob with no further structure — the
// archive copies it in and out verbatim.
type FixedBytes struct {
	N int
}

func (f FixedBytes) Size() int { return f.N }

func (f FixedBytes) Encode(dst []byte, m []byte) error {
	if len(m) != f.N {
		return &metaSizeError{got: len(m), want: f.N}
	}
	copy(dst, m)
	return nil
}

func (f FixedBytes) Decode(src []byte) ([]byte, error) {
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}
