package transfer

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Function1D maps a normalized scalar value to a color.
type Function1D struct {
	entries []Color
}

// New1D returns a transparent black function with size entries.
func New1D(size int) (*Function1D, error) {
	if size <= 0 || size > MaxEntries {
		return nil, fmt.Errorf("%w: %d", ErrSize, size)
	}
	return &Function1D{entries: make([]Color, size)}, nil
}

// Size returns the number of entries.
func (f *Function1D) Size() int { return len(f.entries) }

// At returns entry i.
func (f *Function1D) At(i int) Color { return f.entries[i] }

// Set replaces entry i.
func (f *Function1D) Set(i int, c Color) { f.entries[i] = c }

// SetDefault fills the function with a gray ramp whose opacity rises with
// the value.
func (f *Function1D) SetDefault() {
	n := len(f.entries)
	for i := range f.entries {
		v := float32(0)
		if n > 1 {
			v = float32(i) / float32(n-1)
		}
		f.entries[i] = Color{R: v, G: v, B: v, A: v}
	}
}

// Resize resamples the function to size entries with linear interpolation.
func (f *Function1D) Resize(size int) error {
	if size <= 0 || size > MaxEntries {
		return fmt.Errorf("%w: %d", ErrSize, size)
	}
	if size == len(f.entries) {
		return nil
	}
	out := make([]Color, size)
	old := len(f.entries)
	for i := range out {
		if old == 1 || size == 1 {
			out[i] = f.entries[0]
			continue
		}
		pos := float32(i) * float32(old-1) / float32(size-1)
		lo := int(pos)
		if lo >= old-1 {
			out[i] = f.entries[old-1]
			continue
		}
		out[i] = lerp(f.entries[lo], f.entries[lo+1], pos-float32(lo))
	}
	f.entries = out
	return nil
}

// CopyFrom replaces the contents of f with those of src, resizing f to
// match.
func (f *Function1D) CopyFrom(src *Function1D) {
	f.entries = append(f.entries[:0], src.entries...)
}

// Bytes returns the RGBA8 encoding uploaded to the GPU.
func (f *Function1D) Bytes() []byte {
	b := make([]byte, len(f.entries)*4)
	for i, c := range f.entries {
		c.encode(b[i*4:])
	}
	return b
}

// CPUSize returns the memory held by the function on the CPU.
func (f *Function1D) CPUSize() uint64 {
	return uint64(len(f.entries)) * BytesPerEntry
}

// Load1D reads a function in the 1D text format.
func Load1D(r io.Reader) (*Function1D, error) {
	tok := newTokens(r)
	n, err := tok.int()
	if err != nil {
		return nil, err
	}
	f, err := New1D(n)
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

// Load1DFile reads a 1D function from path.
func Load1DFile(path string) (*Function1D, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transfer: open file: %w", err)
	}
	defer file.Close()
	return Load1D(file)
}

// Save writes the function in the 1D text format.
func (f *Function1D) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", len(f.entries))
	for _, c := range f.entries {
		writeColor(bw, c)
	}
	return bw.Flush()
}

// SaveFile writes the function to path.
func (f *Function1D) SaveFile(path string) error {
	return createFile(path, f.Save)
}
