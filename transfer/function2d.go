package transfer

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Function2D maps (value, gradient magnitude) to a color.
type Function2D struct {
	width, height int
	entries       []Color
}

// New2D returns a transparent black function of width x height entries.
func New2D(width, height int) (*Function2D, error) {
	if width <= 0 || height <= 0 || width > MaxEntries/height {
		return nil, fmt.Errorf("%w: %dx%d", ErrSize, width, height)
	}
	return &Function2D{width: width, height: height, entries: make([]Color, width*height)}, nil
}

// Width returns the number of value bins.
func (f *Function2D) Width() int { return f.width }

// Height returns the number of gradient bins.
func (f *Function2D) Height() int { return f.height }

// At returns the entry at (x, y).
func (f *Function2D) At(x, y int) Color { return f.entries[y*f.width+x] }

// Set replaces the entry at (x, y).
func (f *Function2D) Set(x, y int, c Color) { f.entries[y*f.width+x] = c }

// SetDefault fills the function with a gray ramp along the value axis whose
// opacity also grows with the gradient magnitude.
func (f *Function2D) SetDefault() {
	for y := 0; y < f.height; y++ {
		g := float32(1)
		if f.height > 1 {
			g = float32(y) / float32(f.height-1)
		}
		for x := 0; x < f.width; x++ {
			v := float32(0)
			if f.width > 1 {
				v = float32(x) / float32(f.width-1)
			}
			f.entries[y*f.width+x] = Color{R: v, G: v, B: v, A: v * g}
		}
	}
}

// Resize changes the size of the function, resetting it to the default.
func (f *Function2D) Resize(width, height int) error {
	g, err := New2D(width, height)
	if err != nil {
		return err
	}
	g.SetDefault()
	*f = *g
	return nil
}

// CopyFrom replaces the contents of f with those of src, resizing f to
// match.
func (f *Function2D) CopyFrom(src *Function2D) {
	f.width, f.height = src.width, src.height
	f.entries = append(f.entries[:0], src.entries...)
}

// Bytes returns the RGBA8 encoding uploaded to the GPU, row-major.
func (f *Function2D) Bytes() []byte {
	b := make([]byte, len(f.entries)*4)
	for i, c := range f.entries {
		c.encode(b[i*4:])
	}
	return b
}

// CPUSize returns the memory held by the function on the CPU.
func (f *Function2D) CPUSize() uint64 {
	return uint64(len(f.entries)) * BytesPerEntry
}

// Load2D reads a function in the 2D text format.
func Load2D(r io.Reader) (*Function2D, error) {
	tok := newTokens(r)
	w, err := tok.int()
	if err != nil {
		return nil, err
	}
	h, err := tok.int()
	if err != nil {
		return nil, err
	}
	f, err := New2D(w, h)
	if err != nil {
		return nil, err
	}
	for i := range f.entries {
		if f.entries[i], err = tok.color(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Load2DFile reads a 2D function from path.
func Load2DFile(path string) (*Function2D, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transfer: open file: %w", err)
	}
	defer file.Close()
	return Load2D(file)
}

// Save writes the function in the 2D text format.
func (f *Function2D) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d\n", f.width, f.height)
	for _, c := range f.entries {
		writeColor(bw, c)
	}
	return bw.Flush()
}

// SaveFile writes the function to path.
func (f *Function2D) SaveFile(path string) error {
	return createFile(path, f.Save)
}
