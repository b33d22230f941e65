package render

import (
	"github.com/gogpu/volren/gpu"
)

// Frame is the result of one Paint.
type Frame struct {
	// Target holds the composed image.
	Target *gpu.Target
	// Overlays are the logo and other overlay textures, in stamping order.
	Overlays []*gpu.Texture
	// Compose is the program that blends Target over the background and
	// stamps the overlays.
	Compose *gpu.Program
	// LOD is the level of detail just rendered.
	LOD int
	// Complete reports whether LOD is the finest level.
	Complete bool
	// Slice is the slice shown by PaintSlice, or nil for a volume pass.
	Slice *Slice
	// Pass holds the statistics of the pass.
	Pass Pass
}

// Presenter shows frames, typically by blitting them to a surface.
type Presenter interface {
	Present(f Frame) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(f Frame) error

// Present calls fn(f).
func (fn PresenterFunc) Present(f Frame) error { return fn(f) }
