// Package imageio decodes 2D images into tightly packed RGBA8 pixel
// buffers ready for texture upload.
//
// PNG, JPEG, BMP and TIFF are recognized by content. Images larger than
// a Decoder's MaxSize are downscaled with Catmull-Rom filtering.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG
	"io"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"  // register BMP
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF
)

// I/O errors.
var (
	// ErrEmptyData is returned when image data is empty.
	ErrEmptyData = errors.New("imageio: empty data")

	// ErrEmptyImage is returned for images with no pixels.
	ErrEmptyImage = errors.New("imageio: image has no pixels")
)

// Pixels is a decoded image in straight-alpha RGBA8, row-major without
// padding.
type Pixels struct {
	Width, Height int
	Data          []byte
}

// SizeBytes returns the size of the pixel data.
func (p *Pixels) SizeBytes() uint64 {
	return uint64(len(p.Data))
}

// Decoder loads images, optionally bounding their size.
type Decoder struct {
	// MaxSize bounds the larger side of a decoded image. Larger images are
	// scaled down preserving aspect ratio. Zero means no bound.
	MaxSize int
}

// Load decodes the image file at path.
func (d Decoder) Load(path string) (*Pixels, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("imageio: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return d.Decode(f)
}

// Decode decodes an image from r, detecting the format from its content.
func (d Decoder) Decode(r io.Reader) (*Pixels, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("imageio: decode: %w", err)
	}
	return d.FromImage(img)
}

// FromImage converts img to RGBA8, scaling it down if it exceeds MaxSize.
func (d Decoder) FromImage(img image.Image) (*Pixels, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, ErrEmptyImage
	}
	w, h := fit(b.Dx(), b.Dy(), d.MaxSize)

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	}
	return &Pixels{Width: w, Height: h, Data: dst.Pix}, nil
}

// fit returns the size of a w x h image scaled so its larger side is at
// most limit.
func fit(w, h, limit int) (int, int) {
	if limit <= 0 || (w <= limit && h <= limit) {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}

// Load decodes the image file at path without a size bound.
func Load(path string) (*Pixels, error) {
	return Decoder{}.Load(path)
}

// Decode decodes an image from r without a size bound.
func Decode(r io.Reader) (*Pixels, error) {
	return Decoder{}.Decode(r)
}

// LoadBytes decodes an image held in memory.
func LoadBytes(data []byte) (*Pixels, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	return Decode(bytes.NewReader(data))
}
