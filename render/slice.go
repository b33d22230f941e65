package render

import (
	"math"

	"github.com/gogpu/volren/volume"
)

// SliceStrategy draws each brick as a stack of view-aligned slices,
// compositing back to front.
type SliceStrategy struct {
	// SampleRate is the number of slices per voxel of brick depth.
	SampleRate float64
}

// NewSliceStrategy returns a slice strategy sampling each voxel once.
func NewSliceStrategy() *SliceStrategy {
	return &SliceStrategy{SampleRate: 1}
}

// Name returns "sbvr".
func (s *SliceStrategy) Name() string { return "sbvr" }

// Programs returns the slice shaders.
func (s *SliceStrategy) Programs() map[ProgramRole]ProgramSource { return shaderSet("sbvr") }

// Order returns the bricks farthest from the eye first.
func (s *SliceStrategy) Order(ds volume.Dataset, _ int, keys []volume.BrickKey, view View) []volume.BrickKey {
	return sortByDistance(ds, keys, view, true)
}

// PreLoop sets the slice rate of the pass.
func (s *SliceStrategy) PreLoop(p *Pass) error {
	if p.Program == nil {
		return ErrNoProgram
	}
	p.SampleRate = s.SampleRate
	return nil
}

// InLoop issues one slice per sample along the brick depth.
func (s *SliceStrategy) InLoop(p *Pass, b Brick) error {
	depth := max(b.Extent.X, b.Extent.Y, b.Extent.Z)
	p.Samples += max(1, int(math.Ceil(float64(depth)*p.SampleRate)))
	p.Drawn++
	return nil
}

// PostLoop does nothing; slices are composited as they are drawn.
func (s *SliceStrategy) PostLoop(*Pass) error { return nil }
