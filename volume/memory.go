package volume

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gogpu/gputypes"
)

// Memory is a dataset held entirely in memory. It is used to build BRK
// files and in tests.
type Memory struct {
	path   string
	format gputypes.TextureFormat
	vb     int
	layout layout
	levels [][]byte

	closed atomic.Bool
}

// NewMemory builds a dataset from full-resolution voxels, x fastest, and
// computes the coarser levels with a 2x2x2 box filter. When lods is zero
// the pyramid continues until one brick covers the coarsest level.
func NewMemory(path string, size Coord, format gputypes.TextureFormat, voxels []byte, brick Coord, lods int) (*Memory, error) {
	vb, err := VoxelBytes(format)
	if err != nil {
		return nil, err
	}
	l, err := newLayout(size, brick, lods)
	if err != nil {
		return nil, err
	}
	if len(voxels) != size.Volume()*vb {
		return nil, fmt.Errorf("%w: %d voxel bytes for a %v volume", ErrFormat, len(voxels), size)
	}
	m := &Memory{path: path, format: format, vb: vb, layout: l}
	m.levels = append(m.levels, voxels)
	for lod := 1; lod < l.lodCount(); lod++ {
		m.levels = append(m.levels, downsample(m.levels[lod-1], l.size(lod-1), l.size(lod), vb))
	}
	return m, nil
}

// Sphere returns a synthetic 8-bit dataset containing a radial density
// falloff centered in the volume.
func Sphere(path string, size, brick Coord) (*Memory, error) {
	voxels := make([]byte, size.Volume())
	cx, cy, cz := float64(size.X-1)/2, float64(size.Y-1)/2, float64(size.Z-1)/2
	r := math.Min(cx, math.Min(cy, cz)) + 1
	i := 0
	for z := 0; z < size.Z; z++ {
		for y := 0; y < size.Y; y++ {
			for x := 0; x < size.X; x++ {
				d := math.Sqrt((float64(x)-cx)*(float64(x)-cx)+(float64(y)-cy)*(float64(y)-cy)+(float64(z)-cz)*(float64(z)-cz)) / r
				voxels[i] = byte(math.Round(255 * math.Max(0, 1-d)))
				i++
			}
		}
	}
	return NewMemory(path, size, gputypes.TextureFormatR8Unorm, voxels, brick, 0)
}

func downsample(src []byte, from, to Coord, vb int) []byte {
	dst := make([]byte, to.Volume()*vb)
	read := func(x, y, z int) uint32 {
		off := ((z*from.Y+y)*from.X + x) * vb
		if vb == 2 {
			return uint32(binary.LittleEndian.Uint16(src[off:]))
		}
		return uint32(src[off])
	}
	i := 0
	for z := 0; z < to.Z; z++ {
		for y := 0; y < to.Y; y++ {
			for x := 0; x < to.X; x++ {
				var sum, n uint32
				for dz := 0; dz < 2; dz++ {
					for dy := 0; dy < 2; dy++ {
						for dx := 0; dx < 2; dx++ {
							sx, sy, sz := 2*x+dx, 2*y+dy, 2*z+dz
							if sx < from.X && sy < from.Y && sz < from.Z {
								sum += read(sx, sy, sz)
								n++
							}
						}
					}
				}
				v := (sum + n/2) / n
				if vb == 2 {
					binary.LittleEndian.PutUint16(dst[i:], uint16(v))
				} else {
					dst[i] = byte(v)
				}
				i += vb
			}
		}
	}
	return dst
}

// extract copies one brick out of a level.
func extract(level []byte, size Coord, origin, extent Coord, vb int) []byte {
	out := make([]byte, extent.Volume()*vb)
	row := extent.X * vb
	o := 0
	for z := 0; z < extent.Z; z++ {
		for y := 0; y < extent.Y; y++ {
			off := (((origin.Z+z)*size.Y+origin.Y+y)*size.X + origin.X) * vb
			copy(out[o:o+row], level[off:off+row])
			o += row
		}
	}
	return out
}

// Path returns the dataset path.
func (m *Memory) Path() string { return m.path }

// LODCount returns the number of levels.
func (m *Memory) LODCount() int { return m.layout.lodCount() }

// Size returns the voxel extent of a level.
func (m *Memory) Size(lod int) Coord { return m.layout.size(lod) }

// Grid returns the brick grid of a level.
func (m *Memory) Grid(lod int) Coord { return m.layout.grid(lod) }

// BrickSize returns the voxel extent of a brick.
func (m *Memory) BrickSize(key BrickKey) Coord { return m.layout.brickSize(key) }

// MaxBrickSize returns the nominal brick extent.
func (m *Memory) MaxBrickSize() Coord { return m.layout.brick }

// Format returns the voxel format.
func (m *Memory) Format() gputypes.TextureFormat { return m.format }

// Brick returns a copy of one brick's voxels.
func (m *Memory) Brick(key BrickKey) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if !m.layout.valid(key) {
		return nil, fmt.Errorf("%w: %v", ErrBrickRange, key)
	}
	origin := Coord{
		key.Brick.X * m.layout.brick.X,
		key.Brick.Y * m.layout.brick.Y,
		key.Brick.Z * m.layout.brick.Z,
	}
	return extract(m.levels[key.LOD], m.layout.size(key.LOD), origin, m.layout.brickSize(key), m.vb), nil
}

// MemorySize returns the bytes held by all levels.
func (m *Memory) MemorySize() uint64 {
	var n uint64
	for _, l := range m.levels {
		n += uint64(len(l))
	}
	return n
}

// Close marks the dataset closed.
func (m *Memory) Close() error {
	m.closed.Store(true)
	return nil
}
