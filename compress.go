// Optional transparent payload compression.
//
// Compress is a per-handle option (Config.Compress, given to Create or
// Open).
// When set, Publish/Update zstd-compress the payload before framing it
// into the record, and Fetch/Objects/Verify transparently decompress it
// back. The flags.compressed bit on the record (see record.go) records
// which codec a given record used, so toggling Config.Compress on an
// existing archive only changes newly written records — old ones keep
// decoding correctly either way.
//
// Compression never touches name, meta, or the digest: recordDigest is
// always computed over the original, uncompressed data, so an archive
// opened with Compress off still verifies records written with it on.
package archive

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Shared encoder/decoder — both are documented as safe for concurrent
// use. Allocated once because constructing either is expensive (internal
// state tables). SpeedFastest is deliberate: compression runs on every
// Publish/Update (write path, latency-sensitive) while decompression
// only runs on Fetch/Objects/Verify of a compressed record.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compressPayload(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)))
}

func decompressPayload(stored []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(stored, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	return out, nil
}
