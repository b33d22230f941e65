package volume

import (
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects how brick payloads are compressed in a BRK file.
type Codec uint16

const (
	// CodecRaw stores bricks uncompressed.
	CodecRaw Codec = iota
	// CodecLZ4 stores bricks as LZ4 blocks.
	CodecLZ4
	// CodecZstd stores bricks as zstd frames.
	CodecZstd
)

// String returns the codec name.
func (c Codec) String() string {
	switch c {
	case CodecRaw:
		return "raw"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("Codec(%d)", uint16(c))
	}
}

// ParseCodec parses a codec name.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(s) {
	case "raw", "none", "":
		return CodecRaw, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, fmt.Errorf("volume: unknown codec %q", s)
	}
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

// zstdCoders returns process-wide coders. EncodeAll and DecodeAll are safe
// for concurrent use.
func zstdCoders() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

// compress encodes src. Incompressible data is returned unchanged; the
// reader recognizes it by its stored length equalling the raw length.
func (c Codec) compress(src []byte) ([]byte, error) {
	var out []byte
	switch c {
	case CodecRaw:
		return src, nil
	case CodecLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(src)))
		n, err := lz4.CompressBlock(src, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("volume: lz4 compress: %w", err)
		}
		out = dst[:n]
	case CodecZstd:
		enc, _, err := zstdCoders()
		if err != nil {
			return nil, fmt.Errorf("volume: zstd: %w", err)
		}
		out = enc.EncodeAll(src, nil)
	default:
		return nil, fmt.Errorf("%w: codec %d", ErrFormat, uint16(c))
	}
	if len(out) == 0 || len(out) >= len(src) {
		return src, nil
	}
	return out, nil
}

// decompress decodes a stored payload of rawLen bytes.
func (c Codec) decompress(src []byte, rawLen int) ([]byte, error) {
	if len(src) == rawLen {
		return src, nil
	}
	switch c {
	case CodecLZ4:
		dst := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %w", ErrFormat, err)
		}
		if n != rawLen {
			return nil, fmt.Errorf("%w: lz4 produced %d bytes, want %d", ErrFormat, n, rawLen)
		}
		return dst, nil
	case CodecZstd:
		_, dec, err := zstdCoders()
		if err != nil {
			return nil, fmt.Errorf("volume: zstd: %w", err)
		}
		dst, err := dec.DecodeAll(src, make([]byte, 0, rawLen))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", ErrFormat, err)
		}
		if len(dst) != rawLen {
			return nil, fmt.Errorf("%w: zstd produced %d bytes, want %d", ErrFormat, len(dst), rawLen)
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("%w: %s payload of %d bytes, want %d", ErrFormat, c, len(src), rawLen)
	}
}
