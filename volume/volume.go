// Package volume provides multi-resolution volume datasets split into
// bricks.
//
// A dataset is a pyramid of levels of detail. LOD 0 is the full resolution
// and every further level halves each axis, down to a level that fits in a
// single brick. Each level is cut into bricks of a fixed edge length;
// bricks on the far faces of a level may be smaller.
//
// Datasets are read-only after opening and safe for concurrent Brick
// calls.
package volume

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// Dataset errors.
var (
	// ErrFormat is returned for malformed dataset files.
	ErrFormat = errors.New("volume: malformed dataset")

	// ErrChecksum is returned when a brick fails its integrity check.
	ErrChecksum = errors.New("volume: brick checksum mismatch")

	// ErrBrickRange is returned for LODs or coordinates outside the dataset.
	ErrBrickRange = errors.New("volume: brick out of range")

	// ErrUnsupportedVoxel is returned for voxel formats other than R8 and
	// R16 unorm.
	ErrUnsupportedVoxel = errors.New("volume: unsupported voxel format")

	// ErrClosed is returned when reading from a closed dataset.
	ErrClosed = errors.New("volume: dataset closed")
)

// Coord is a position or extent along the three axes.
type Coord struct {
	X, Y, Z int
}

// Volume returns X*Y*Z.
func (c Coord) Volume() int { return c.X * c.Y * c.Z }

// String returns "XxYxZ".
func (c Coord) String() string { return fmt.Sprintf("%dx%dx%d", c.X, c.Y, c.Z) }

// BrickKey addresses one brick: its level of detail and its position in
// that level's brick grid.
type BrickKey struct {
	LOD   int
	Brick Coord
}

// String returns "lod/x,y,z".
func (k BrickKey) String() string {
	return fmt.Sprintf("%d/%d,%d,%d", k.LOD, k.Brick.X, k.Brick.Y, k.Brick.Z)
}

// Dataset is an opened multi-resolution volume.
type Dataset interface {
	// Path returns the path the dataset was opened from, case preserved.
	Path() string

	// LODCount returns the number of levels of detail.
	LODCount() int

	// Size returns the voxel extent of a level.
	Size(lod int) Coord

	// Grid returns the number of bricks along each axis of a level.
	Grid(lod int) Coord

	// BrickSize returns the voxel extent of one brick.
	BrickSize(key BrickKey) Coord

	// Format returns the voxel format, R8Unorm or R16Unorm.
	Format() gputypes.TextureFormat

	// Brick returns the raw voxels of one brick, x fastest.
	Brick(key BrickKey) ([]byte, error)

	// MemorySize returns the CPU memory held by the open dataset.
	MemorySize() uint64

	// Close releases the dataset.
	Close() error
}

// Opener opens datasets by path.
type Opener interface {
	Open(path string) (Dataset, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string) (Dataset, error)

// Open calls f(path).
func (f OpenerFunc) Open(path string) (Dataset, error) { return f(path) }

// FileOpener opens BRK files.
var FileOpener Opener = OpenerFunc(func(path string) (Dataset, error) {
	return OpenFile(path)
})

// VoxelBytes returns the size of one voxel of format f.
func VoxelBytes(f gputypes.TextureFormat) (int, error) {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1, nil
	case gputypes.TextureFormatR16Unorm:
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedVoxel, f)
	}
}

// BrickBytes returns the payload size of the brick at key.
func BrickBytes(ds Dataset, key BrickKey) uint64 {
	vb, err := VoxelBytes(ds.Format())
	if err != nil {
		return 0
	}
	return uint64(ds.BrickSize(key).Volume()) * uint64(vb)
}

// Bricks lists every brick of a level, x fastest.
func Bricks(ds Dataset, lod int) []BrickKey {
	g := ds.Grid(lod)
	keys := make([]BrickKey, 0, g.Volume())
	for z := 0; z < g.Z; z++ {
		for y := 0; y < g.Y; y++ {
			for x := 0; x < g.X; x++ {
				keys = append(keys, BrickKey{LOD: lod, Brick: Coord{x, y, z}})
			}
		}
	}
	return keys
}

// layout describes the level sizes and brick grid of a dataset.
type layout struct {
	sizes []Coord
	brick Coord
}

// newLayout computes the pyramid for a volume of the given size. When lods
// is zero, levels are added until one brick covers the coarsest level.
func newLayout(size, brick Coord, lods int) (layout, error) {
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 || brick.X <= 0 || brick.Y <= 0 || brick.Z <= 0 {
		return layout{}, fmt.Errorf("%w: size %v brick %v", ErrFormat, size, brick)
	}
	l := layout{brick: brick}
	cur := size
	for {
		l.sizes = append(l.sizes, cur)
		if lods > 0 && len(l.sizes) == lods {
			break
		}
		if lods == 0 && cur.X <= brick.X && cur.Y <= brick.Y && cur.Z <= brick.Z {
			break
		}
		if cur == (Coord{1, 1, 1}) {
			if lods > 0 {
				return layout{}, fmt.Errorf("%w: %d levels requested, volume %v supports %d", ErrFormat, lods, size, len(l.sizes))
			}
			break
		}
		cur = half(cur)
	}
	return l, nil
}

func half(c Coord) Coord {
	return Coord{(c.X + 1) / 2, (c.Y + 1) / 2, (c.Z + 1) / 2}
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

func (l layout) lodCount() int { return len(l.sizes) }

func (l layout) size(lod int) Coord {
	if lod < 0 || lod >= len(l.sizes) {
		return Coord{}
	}
	return l.sizes[lod]
}

func (l layout) grid(lod int) Coord {
	s := l.size(lod)
	if s == (Coord{}) {
		return Coord{}
	}
	return Coord{ceilDiv(s.X, l.brick.X), ceilDiv(s.Y, l.brick.Y), ceilDiv(s.Z, l.brick.Z)}
}

func (l layout) valid(key BrickKey) bool {
	g := l.grid(key.LOD)
	b := key.Brick
	return b.X >= 0 && b.Y >= 0 && b.Z >= 0 && b.X < g.X && b.Y < g.Y && b.Z < g.Z
}

func (l layout) brickSize(key BrickKey) Coord {
	if !l.valid(key) {
		return Coord{}
	}
	s := l.size(key.LOD)
	b := key.Brick
	return Coord{
		min(l.brick.X, s.X-b.X*l.brick.X),
		min(l.brick.Y, s.Y-b.Y*l.brick.Y),
		min(l.brick.Z, s.Z-b.Z*l.brick.Z),
	}
}

// index returns the position of key among all bricks of all levels.
func (l layout) index(key BrickKey) int {
	n := 0
	for lod := 0; lod < key.LOD; lod++ {
		n += l.grid(lod).Volume()
	}
	g := l.grid(key.LOD)
	return n + (key.Brick.Z*g.Y+key.Brick.Y)*g.X + key.Brick.X
}

func (l layout) totalBricks() int {
	n := 0
	for lod := range l.sizes {
		n += l.grid(lod).Volume()
	}
	return n
}
