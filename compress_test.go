package archive

import (
	"bytes"
	"testing"
)

func TestCompressPayloadRoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)
	compressed := compressPayload(original)
	if len(compressed) >= len(original) {
		t.Errorf("compressed size %d not smaller than original %d for highly repetitive input", len(compressed), len(original))
	}
	decompressed, err := decompressPayload(compressed)
	if err != nil {
		t.Fatalf("decompressPayload: %v", err)
	}
	if !bytes.Equal(decompressed, original) {
		t.Errorf("round trip mismatch: got %d bytes, want %d", len(decompressed), len(original))
	}
}

func TestDecompressPayloadRejectsGarbage(t *testing.T) {
	_, err := decompressPayload([]byte{0x00, 0x01, 0x02, 0x03})
	if err == nil {
		t.Errorf("decompressPayload accepted garbage input without error")
	}
}

func TestCompressedRecordFetchAndVerify(t *testing.T) {
	dir := t.TempDir()
	a, err := Create(dir, "mixed.rtrarch", FixedBytes{N: 4}, Config{Compress: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer a.Close()

	payload := bytes.Repeat([]byte("aaaa"), 500)
	if err := a.Publish("compressed", meta8(1)[:4], payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	_, data, err := a.Fetch("compressed")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("fetched data does not match original payload")
	}
	if err := a.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
}
