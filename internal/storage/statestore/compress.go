package statestore

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4"
)

// Stored values carry a one-byte format tag. Compressed payloads keep the
// plain length so decompression allocates exactly once.
const (
	formatRaw = 0x00
	formatLZ4 = 0x01

	// minCompressSize skips compression for values too small to benefit.
	minCompressSize = 128
)

// pack encodes a plain value for storage, compressing when worthwhile.
func pack(plain []byte) []byte {
	if len(plain) < minCompressSize {
		out := make([]byte, 1+len(plain))
		out[0] = formatRaw
		copy(out[1:], plain)
		return out
	}

	buf := make([]byte, 1+4+lz4.CompressBlockBound(len(plain)))
	buf[0] = formatLZ4
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(plain)))
	n, err := lz4.CompressBlock(plain, buf[5:], nil)
	if err != nil || n == 0 || n >= len(plain) {
		// Incompressible: store raw.
		out := make([]byte, 1+len(plain))
		out[0] = formatRaw
		copy(out[1:], plain)
		return out
	}
	return buf[:5+n]
}

// unpack decodes a stored value back to its plain form.
func unpack(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, fmt.Errorf("empty stored value")
	}
	switch stored[0] {
	case formatRaw:
		out := make([]byte, len(stored)-1)
		copy(out, stored[1:])
		return out, nil
	case formatLZ4:
		if len(stored) < 5 {
			return nil, fmt.Errorf("truncated lz4 header")
		}
		plainLen := binary.BigEndian.Uint32(stored[1:5])
		out := make([]byte, plainLen)
		n, err := lz4.UncompressBlock(stored[5:], out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return out[:n], nil
	default:
		return nil, fmt.Errorf("unknown storage format 0x%02x", stored[0])
	}
}
