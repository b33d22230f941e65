// Package transfer implements one- and two-dimensional transfer functions
// that map volume samples to color and opacity.
//
// A Function1D is indexed by the scalar value. A Function2D is indexed by
// the scalar value along x and by gradient magnitude along y. Both are kept
// as float RGBA on the CPU and encoded as RGBA8 for upload.
//
// Text file format, 1D:
//
//	<count>
//	r g b a    (count lines)
//
// Text file format, 2D:
//
//	<width> <height>
//	r g b a    (width*height lines, row-major)
package transfer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

// Transfer function errors.
var (
	// ErrFormat is returned when a transfer function file is malformed.
	ErrFormat = errors.New("transfer: malformed transfer function")

	// ErrSize is returned for non-positive or excessive sizes.
	ErrSize = errors.New("transfer: invalid size")
)

// MaxEntries bounds the number of entries a file may declare.
const MaxEntries = 1 << 24

// Color is a straight-alpha RGBA color with components in [0, 1].
type Color struct {
	R, G, B, A float32
}

// BytesPerEntry is the CPU size of one entry.
const BytesPerEntry = 16

// encode writes c as RGBA8 into dst.
func (c Color) encode(dst []byte) {
	dst[0] = unorm8(c.R)
	dst[1] = unorm8(c.G)
	dst[2] = unorm8(c.B)
	dst[3] = unorm8(c.A)
}

func unorm8(v float32) byte {
	if v <= 0 || math.IsNaN(float64(v)) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(math.Round(float64(v) * 255))
}

func lerp(a, b Color, t float32) Color {
	return Color{
		R: a.R + (b.R-a.R)*t,
		G: a.G + (b.G-a.G)*t,
		B: a.B + (b.B-a.B)*t,
		A: a.A + (b.A-a.A)*t,
	}
}

// tokens reads whitespace separated words.
type tokens struct {
	sc *bufio.Scanner
}

func newTokens(r io.Reader) *tokens {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	return &tokens{sc: sc}
}

func (t *tokens) next() (string, error) {
	if !t.sc.Scan() {
		if err := t.sc.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: unexpected end of input", ErrFormat)
	}
	return t.sc.Text(), nil
}

func (t *tokens) int() (int, error) {
	s, err := t.next()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrFormat, s)
	}
	return n, nil
}

func (t *tokens) color() (Color, error) {
	var v [4]float32
	for i := range v {
		s, err := t.next()
		if err != nil {
			return Color{}, err
		}
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Color{}, fmt.Errorf("%w: %q is not a number", ErrFormat, s)
		}
		v[i] = float32(f)
	}
	return Color{R: v[0], G: v[1], B: v[2], A: v[3]}, nil
}

func writeColor(w *bufio.Writer, c Color) {
	fmt.Fprintf(w, "%s %s %s %s\n", ftoa(c.R), ftoa(c.G), ftoa(c.B), ftoa(c.A))
}

func ftoa(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

func createFile(path string, save func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("transfer: create file: %w", err)
	}
	if err := save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
