package archive

import "testing"

func TestEncodeDecodeRecordRoundTrip(t *testing.T) {
	name := []byte("cert/ca1.cer")
	meta := []byte{1, 2, 3, 4}
	data := []byte("some certificate bytes, arbitrary length")

	buf, err := encodeRecord(name, meta, data, len(meta), false)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}

	f, err := decodeRecord(buf, 0, len(meta), true)
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if string(f.name) != string(name) {
		t.Errorf("name = %q, want %q", f.name, name)
	}
	if string(f.meta) != string(meta) {
		t.Errorf("meta = %q, want %q", f.meta, meta)
	}
	got, err := f.data()
	if err != nil {
		t.Fatalf("f.data(): %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("data = %q, want %q", got, data)
	}
	if f.freed {
		t.Errorf("freshly encoded record reports freed=true")
	}
}

func TestEncodeRecordRejectsWrongMetaSize(t *testing.T) {
	_, err := encodeRecord([]byte("n"), []byte{1, 2, 3}, []byte("d"), 4, false)
	if err == nil {
		t.Error("encodeRecord accepted a meta blob of the wrong length")
	}
}

func TestDecodeRecordDetectsDigestMismatch(t *testing.T) {
	buf, err := encodeRecord([]byte("n"), []byte{1, 2, 3, 4}, []byte("original"), 4, false)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	buf[len(buf)-1] ^= 0xFF // flip a digest byte directly

	if _, err := decodeRecord(buf, 0, 4, true); err == nil {
		t.Error("decodeRecord accepted a record with a corrupted digest")
	}
}

func TestDecodeRecordSkipsDigestWhenNotRequested(t *testing.T) {
	buf, err := encodeRecord([]byte("n"), []byte{1, 2, 3, 4}, []byte("original"), 4, false)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	// Corrupt the payload but ask decodeRecord not to verify — this
	// should succeed even though the digest no longer matches.
	buf[recordPrefixSize+1+4] ^= 0xFF
	if _, err := decodeRecord(buf, 0, 4, false); err != nil {
		t.Errorf("decodeRecord with verifyDigest=false: %v", err)
	}
}

func TestDecodeRecordRejectsShortBuffer(t *testing.T) {
	if _, err := decodeRecord(make([]byte, recordPrefixSize-1), 0, 4, false); err == nil {
		t.Error("decodeRecord accepted a buffer shorter than the prefix")
	}
}

func TestRecordSizeMatchesEncodedLength(t *testing.T) {
	name, meta, data := []byte("abc"), []byte{0, 0, 0, 0}, []byte("xyz123")
	buf, err := encodeRecord(name, meta, data, len(meta), false)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	want := recordSize(len(name), len(meta), len(data))
	if int64(len(buf)) != want {
		t.Errorf("len(buf) = %d, recordSize() = %d", len(buf), want)
	}
}

func TestPeekLengthsMatchesDecodedRecord(t *testing.T) {
	name, meta, data := []byte("peek-me"), []byte{9, 9, 9, 9}, []byte("payload-bytes")
	buf, err := encodeRecord(name, meta, data, len(meta), false)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	nameLen, dataLen := peekLengths(buf[:recordPrefixSize])
	if nameLen != len(name) {
		t.Errorf("peekLengths nameLen = %d, want %d", nameLen, len(name))
	}
	if dataLen != len(data) {
		t.Errorf("peekLengths dataLen = %d, want %d", dataLen, len(data))
	}
}

func TestCompressedRecordFlagAndRoundTrip(t *testing.T) {
	name, meta := []byte("z"), []byte{1, 1, 1, 1}
	data := make([]byte, 2000)
	for i := range data {
		data[i] = byte(i % 7)
	}
	buf, err := encodeRecord(name, meta, data, len(meta), true)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	f, err := decodeRecord(buf, 0, len(meta), true)
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if !f.compressed {
		t.Error("compressed record did not decode with compressed=true")
	}
	got, err := f.data()
	if err != nil {
		t.Fatalf("f.data(): %v", err)
	}
	if string(got) != string(data) {
		t.Error("decompressed data does not match original")
	}
}
