package render

import (
	"math"

	"github.com/gogpu/volren/volume"
)

// RayCastStrategy marches rays through each brick in a single pass,
// compositing front to back.
type RayCastStrategy struct {
	// SampleRate is the number of ray steps per voxel.
	SampleRate float64
}

// NewRayCastStrategy returns a ray caster sampling each voxel once.
func NewRayCastStrategy() *RayCastStrategy {
	return &RayCastStrategy{SampleRate: 1}
}

// Name returns "raycast".
func (r *RayCastStrategy) Name() string { return "raycast" }

// Programs returns the ray casting shaders.
func (r *RayCastStrategy) Programs() map[ProgramRole]ProgramSource { return shaderSet("raycast") }

// Order returns the bricks nearest to the eye first.
func (r *RayCastStrategy) Order(ds volume.Dataset, _ int, keys []volume.BrickKey, view View) []volume.BrickKey {
	return sortByDistance(ds, keys, view, false)
}

// PreLoop sets the ray step rate of the pass.
func (r *RayCastStrategy) PreLoop(p *Pass) error {
	if p.Program == nil {
		return ErrNoProgram
	}
	p.SampleRate = r.SampleRate
	return nil
}

// InLoop marches one ray segment across the brick diagonal.
func (r *RayCastStrategy) InLoop(p *Pass, b Brick) error {
	x, y, z := float64(b.Extent.X), float64(b.Extent.Y), float64(b.Extent.Z)
	p.Samples += max(1, int(math.Ceil(math.Sqrt(x*x+y*y+z*z)*p.SampleRate)))
	p.Drawn++
	return nil
}

// PostLoop does nothing; each ray composites within its brick.
func (r *RayCastStrategy) PostLoop(*Pass) error { return nil }
