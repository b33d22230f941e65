package volume

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gogpu/gputypes"
)

// BRK file layout, little-endian:
//
//	header   magic "BRK1", version u16, voxel u16, codec u16, reserved u16,
//	         size x,y,z u32, brick x,y,z u32, lods u32
//	index    one entry per brick, LOD 0 first, x fastest:
//	         offset u64, stored u32, raw u32, crc32 u32
//	payload  brick data at the indexed offsets
const (
	brkMagic   = "BRK1"
	brkVersion = 1

	headerSize     = 4 + 2*4 + 4*7
	indexEntrySize = 8 + 4*3
)

const (
	voxelR8  uint16 = 1
	voxelR16 uint16 = 2
)

type fileHeader struct {
	Magic    [4]byte
	Version  uint16
	Voxel    uint16
	Codec    uint16
	Reserved uint16
	SizeX    uint32
	SizeY    uint32
	SizeZ    uint32
	BrickX   uint32
	BrickY   uint32
	BrickZ   uint32
	LODs     uint32
}

type indexEntry struct {
	Offset uint64
	Stored uint32
	Raw    uint32
	CRC    uint32
}

func voxelCode(f gputypes.TextureFormat) (uint16, error) {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return voxelR8, nil
	case gputypes.TextureFormatR16Unorm:
		return voxelR16, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedVoxel, f)
	}
}

func voxelFormat(code uint16) (gputypes.TextureFormat, error) {
	switch code {
	case voxelR8:
		return gputypes.TextureFormatR8Unorm, nil
	case voxelR16:
		return gputypes.TextureFormatR16Unorm, nil
	default:
		return gputypes.TextureFormatUndefined, fmt.Errorf("%w: voxel code %d", ErrUnsupportedVoxel, code)
	}
}

// brickSource is what Write needs from a dataset.
type brickSource interface {
	Dataset
	MaxBrickSize() Coord
}

// Write encodes every brick of src into w as a BRK stream.
func Write(w io.Writer, src brickSource, codec Codec) error {
	voxel, err := voxelCode(src.Format())
	if err != nil {
		return err
	}
	size := src.Size(0)
	brick := src.MaxBrickSize()
	//nolint:gosec // G115: sizes come from a validated layout
	hdr := fileHeader{
		Version: brkVersion,
		Voxel:   voxel,
		Codec:   uint16(codec),
		SizeX:   uint32(size.X), SizeY: uint32(size.Y), SizeZ: uint32(size.Z),
		BrickX: uint32(brick.X), BrickY: uint32(brick.Y), BrickZ: uint32(brick.Z),
		LODs: uint32(src.LODCount()),
	}
	copy(hdr.Magic[:], brkMagic)

	var (
		index    []indexEntry
		payloads [][]byte
	)
	for lod := 0; lod < src.LODCount(); lod++ {
		for _, key := range Bricks(src, lod) {
			raw, err := src.Brick(key)
			if err != nil {
				return fmt.Errorf("volume: read brick %v: %w", key, err)
			}
			stored, err := codec.compress(raw)
			if err != nil {
				return err
			}
			//nolint:gosec // G115: brick sizes fit in 32 bits
			index = append(index, indexEntry{Stored: uint32(len(stored)), Raw: uint32(len(raw)), CRC: crc32.ChecksumIEEE(raw)})
			payloads = append(payloads, stored)
		}
	}
	offset := uint64(headerSize + len(index)*indexEntrySize)
	for i := range index {
		index[i].Offset = offset
		offset += uint64(index[i].Stored)
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("volume: write header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, index); err != nil {
		return fmt.Errorf("volume: write index: %w", err)
	}
	for _, p := range payloads {
		if _, err := bw.Write(p); err != nil {
			return fmt.Errorf("volume: write brick: %w", err)
		}
	}
	return bw.Flush()
}

// WriteFile writes src to path as a BRK file.
func WriteFile(path string, src brickSource, codec Codec) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("volume: create file: %w", err)
	}
	if err := Write(f, src, codec); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// File is a BRK dataset read on demand from disk. Only the header and
// brick index stay in memory.
type File struct {
	path   string
	f      *os.File
	format gputypes.TextureFormat
	codec  Codec
	layout layout
	index  []indexEntry

	closed atomic.Bool
}

// OpenFile opens a BRK file and reads its index.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("volume: open file: %w", err)
	}
	ds, err := readFile(path, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return ds, nil
}

func readFile(path string, f *os.File) (*File, error) {
	var hdr fileHeader
	r := bufio.NewReader(f)
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrFormat, err)
	}
	if string(hdr.Magic[:]) != brkMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, hdr.Magic[:])
	}
	if hdr.Version != brkVersion {
		return nil, fmt.Errorf("%w: version %d", ErrFormat, hdr.Version)
	}
	format, err := voxelFormat(hdr.Voxel)
	if err != nil {
		return nil, err
	}
	codec := Codec(hdr.Codec)
	if codec > CodecZstd {
		return nil, fmt.Errorf("%w: codec %d", ErrFormat, hdr.Codec)
	}
	if hdr.LODs == 0 || hdr.LODs > 32 {
		return nil, fmt.Errorf("%w: %d levels", ErrFormat, hdr.LODs)
	}
	l, err := newLayout(
		Coord{int(hdr.SizeX), int(hdr.SizeY), int(hdr.SizeZ)},
		Coord{int(hdr.BrickX), int(hdr.BrickY), int(hdr.BrickZ)},
		int(hdr.LODs),
	)
	if err != nil {
		return nil, err
	}
	index := make([]indexEntry, l.totalBricks())
	if err := binary.Read(r, binary.LittleEndian, index); err != nil {
		return nil, fmt.Errorf("%w: index: %w", ErrFormat, err)
	}
	return &File{path: path, f: f, format: format, codec: codec, layout: l, index: index}, nil
}

// Path returns the path the file was opened from.
func (d *File) Path() string { return d.path }

// Codec returns the payload codec.
func (d *File) Codec() Codec { return d.codec }

// LODCount returns the number of levels.
func (d *File) LODCount() int { return d.layout.lodCount() }

// Size returns the voxel extent of a level.
func (d *File) Size(lod int) Coord { return d.layout.size(lod) }

// Grid returns the brick grid of a level.
func (d *File) Grid(lod int) Coord { return d.layout.grid(lod) }

// BrickSize returns the voxel extent of a brick.
func (d *File) BrickSize(key BrickKey) Coord { return d.layout.brickSize(key) }

// MaxBrickSize returns the nominal brick extent.
func (d *File) MaxBrickSize() Coord { return d.layout.brick }

// Format returns the voxel format.
func (d *File) Format() gputypes.TextureFormat { return d.format }

// Brick reads, decompresses and checks one brick.
func (d *File) Brick(key BrickKey) ([]byte, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if !d.layout.valid(key) {
		return nil, fmt.Errorf("%w: %v", ErrBrickRange, key)
	}
	e := d.index[d.layout.index(key)]
	want := BrickBytes(d, key)
	if uint64(e.Raw) != want {
		return nil, fmt.Errorf("%w: brick %v holds %d bytes, want %d", ErrFormat, key, e.Raw, want)
	}
	stored := make([]byte, e.Stored)
	//nolint:gosec // G115: offsets come from the index
	if _, err := d.f.ReadAt(stored, int64(e.Offset)); err != nil {
		return nil, fmt.Errorf("%w: read brick %v: %w", ErrFormat, key, err)
	}
	raw, err := d.codec.decompress(stored, int(e.Raw))
	if err != nil {
		return nil, err
	}
	if crc32.ChecksumIEEE(raw) != e.CRC {
		return nil, fmt.Errorf("%w: %v", ErrChecksum, key)
	}
	return raw, nil
}

// MemorySize returns the bytes held for the header and index.
func (d *File) MemorySize() uint64 {
	return uint64(headerSize + len(d.index)*indexEntrySize)
}

// Close closes the underlying file. Calling Close more than once is a
// no-op.
func (d *File) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	return d.f.Close()
}
