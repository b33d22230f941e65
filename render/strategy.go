package render

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/volren/gpu"
	"github.com/gogpu/volren/volume"
)

// RenderMode selects how voxel values are classified.
type RenderMode uint8

const (
	// Mode1D classifies by value through the 1D transfer function.
	Mode1D RenderMode = iota
	// Mode2D classifies by value and gradient through the 2D transfer
	// function.
	Mode2D
	// ModeIso draws the surface where the value crosses the iso value.
	ModeIso
)

// String returns the mode name used in shader paths.
func (m RenderMode) String() string {
	switch m {
	case Mode1D:
		return "1d"
	case Mode2D:
		return "2d"
	case ModeIso:
		return "iso"
	default:
		return fmt.Sprintf("RenderMode(%d)", m)
	}
}

// ProgramSource names the shader sources of one program.
type ProgramSource struct {
	Vertex   string
	Fragment string
}

// View is the camera position in normalized volume coordinates, where the
// volume spans [0,1] on each axis.
type View struct {
	Eye [3]float64
}

// DefaultView looks at the volume from in front of the z = 0 face.
var DefaultView = View{Eye: [3]float64{0.5, 0.5, -2}}

// Brick is one resident brick handed to a strategy.
type Brick struct {
	Key     volume.BrickKey
	Texture *gpu.Texture
	// Extent is the brick size in voxels.
	Extent volume.Coord
}

// Pass is the state of drawing one level of detail into a frame buffer.
type Pass struct {
	LOD     int
	Mode    RenderMode
	Target  *gpu.Target
	Program *gpu.Program
	TF1D    *gpu.Texture
	TF2D    *gpu.Texture

	// Lit reports whether the program shades with the gradient.
	Lit bool
	// Iso is the iso value for ModeIso.
	Iso float64
	// SampleRate is the number of samples per voxel along the view axis.
	SampleRate float64

	// Drawn counts bricks drawn in this pass.
	Drawn int
	// Skipped counts bricks that did not fit the memory budget.
	Skipped int
	// Samples counts slices or ray steps issued.
	Samples int
}

// Strategy draws the bricks of one pass. The context acquires every brick
// before InLoop and releases it afterwards.
type Strategy interface {
	// Name returns the registry name.
	Name() string

	// Programs returns the shader sources for each of VolumeRoles.
	Programs() map[ProgramRole]ProgramSource

	// Order sorts the bricks of one level in drawing order.
	Order(ds volume.Dataset, lod int, keys []volume.BrickKey, view View) []volume.BrickKey

	// PreLoop prepares a pass before any brick is drawn. It fails with
	// ErrNoProgram when p has no program.
	PreLoop(p *Pass) error

	// InLoop draws one resident brick and records it in p. The brick
	// texture is only valid for the duration of the call.
	InLoop(p *Pass, b Brick) error

	// PostLoop finishes the pass after the last brick.
	PostLoop(p *Pass) error
}

// Strategy errors.
var (
	// ErrUnknownStrategy is returned by NewStrategy for unregistered names.
	ErrUnknownStrategy = errors.New("render: unknown strategy")

	// ErrNoProgram is returned when a pass has no program for its mode.
	ErrNoProgram = errors.New("render: no program for render mode")
)

var strategies = gpucontext.NewRegistry[Strategy](gpucontext.WithPriority("raycast", "sbvr"))

func init() {
	RegisterStrategy("sbvr", func() Strategy { return NewSliceStrategy() })
	RegisterStrategy("raycast", func() Strategy { return NewRayCastStrategy() })
}

// RegisterStrategy adds or replaces a named strategy factory.
func RegisterStrategy(name string, factory func() Strategy) {
	strategies.Register(name, factory)
}

// NewStrategy returns a new instance of the named strategy. An empty name
// selects the preferred registered strategy.
func NewStrategy(name string) (Strategy, error) {
	if name == "" {
		if s := strategies.Best(); s != nil {
			return s, nil
		}
		return nil, ErrUnknownStrategy
	}
	if !strategies.Has(name) {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownStrategy, name, Strategies())
	}
	return strategies.Get(name), nil
}

// Strategies returns the registered strategy names, sorted.
func Strategies() []string {
	names := strategies.Available()
	sort.Strings(names)
	return names
}

// shaderSet builds the volume programs of a strategy named prefix.
func shaderSet(prefix string) map[ProgramRole]ProgramSource {
	out := make(map[ProgramRole]ProgramSource, len(VolumeRoles))
	for _, r := range VolumeRoles {
		out[r] = ProgramSource{
			Vertex:   VertexShader,
			Fragment: fmt.Sprintf("shaders/%s-%s.frag.wgsl", prefix, r),
		}
	}
	return out
}

// brickCenter returns the center of a brick in normalized volume
// coordinates.
func brickCenter(ds volume.Dataset, key volume.BrickKey) [3]float64 {
	size := ds.Size(key.LOD)
	ext := ds.BrickSize(key)
	full := ds.BrickSize(volume.BrickKey{LOD: key.LOD})
	c := func(i, n, e, s int) float64 {
		if s == 0 {
			return 0
		}
		return (float64(i*n) + float64(e)/2) / float64(s)
	}
	return [3]float64{
		c(key.Brick.X, full.X, ext.X, size.X),
		c(key.Brick.Y, full.Y, ext.Y, size.Y),
		c(key.Brick.Z, full.Z, ext.Z, size.Z),
	}
}

func distance(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// sortByDistance orders keys by brick distance to the eye, nearest first
// unless farFirst is set. Ties keep their original order.
func sortByDistance(ds volume.Dataset, keys []volume.BrickKey, view View, farFirst bool) []volume.BrickKey {
	out := slices.Clone(keys)
	d := make(map[volume.BrickKey]float64, len(out))
	for _, k := range out {
		d[k] = distance(brickCenter(ds, k), view.Eye)
	}
	slices.SortStableFunc(out, func(a, b volume.BrickKey) int {
		da, db := d[a], d[b]
		if farFirst {
			da, db = db, da
		}
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		default:
			return 0
		}
	})
	return out
}
