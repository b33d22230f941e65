package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// BytesPerTexel returns the size of one texel of format f.
func BytesPerTexel(f gputypes.TextureFormat) (int, error) {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1, nil
	case gputypes.TextureFormatR16Unorm, gputypes.TextureFormatR16Float, gputypes.TextureFormatRG8Unorm:
		return 2, nil
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatR32Float, gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth32Float:
		return 4, nil
	case gputypes.TextureFormatRGBA16Float:
		return 8, nil
	case gputypes.TextureFormatRGBA32Float:
		return 16, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedFormat, f)
	}
}

// FormatForBits returns the RGBA color format with the given bits per
// channel: 8, 16 or 32.
func FormatForBits(bits int) (gputypes.TextureFormat, error) {
	switch bits {
	case 8:
		return gputypes.TextureFormatRGBA8Unorm, nil
	case 16:
		return gputypes.TextureFormatRGBA16Float, nil
	case 32:
		return gputypes.TextureFormatRGBA32Float, nil
	default:
		return gputypes.TextureFormatUndefined, fmt.Errorf("%w: %d bits per channel", ErrUnsupportedFormat, bits)
	}
}
