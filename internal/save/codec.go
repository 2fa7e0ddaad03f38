package save

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// Compress wraps an encoded envelope in a zstd frame.
func Compress(blob []byte) []byte {
	return encoder.EncodeAll(blob, make([]byte, 0, len(blob)/2))
}

// Decompress unwraps a zstd frame. Blobs without the zstd magic are
// returned unchanged so plain JSON saves still load.
func Decompress(blob []byte) ([]byte, error) {
	if !bytes.HasPrefix(blob, zstdMagic) {
		return blob, nil
	}
	out, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
	}
	return out, nil
}
