package archive

import "testing"

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := &Header{
		Version:        currentVersion,
		MetaSize:       16,
		HashSeed:       0xdeadbeefcafef00d,
		IndexOffset:    uint64(HeaderSize),
		IndexCapacity:  128,
		IndexLiveCount: 7,
		Dirty:          true,
	}
	for i := range h.FreeListHeads {
		h.FreeListHeads[i] = uint64(i) * 4096
	}

	got, err := decodeHeader(h.encode())
	if err != nil {
		t.Fatalf("decodeHeader: %v", err)
	}
	if *got != *h {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", *got, *h)
	}
}

func TestHeaderEncodeIsFixedSize(t *testing.T) {
	h := &Header{Version: currentVersion}
	if len(h.encode()) != HeaderSize {
		t.Errorf("encode() length = %d, want HeaderSize %d", len(h.encode()), HeaderSize)
	}
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	copy(buf, []byte("NOTVALID"))
	if _, err := decodeHeader(buf); err != ErrNotAnArchive {
		t.Errorf("decodeHeader with bad magic: got %v, want ErrNotAnArchive", err)
	}
}

func TestDecodeHeaderRejectsBadVersion(t *testing.T) {
	h := &Header{Version: currentVersion + 1}
	buf := h.encode()
	if _, err := decodeHeader(buf); err != ErrVersionMismatch {
		t.Errorf("decodeHeader with future version: got %v, want ErrVersionMismatch", err)
	}
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	if _, err := decodeHeader(make([]byte, HeaderSize-1)); err == nil {
		t.Error("decodeHeader accepted a short buffer")
	}
}
