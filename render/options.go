package render

import (
	"log/slog"
)

// BlendPrecision is the bit depth per channel of the frame buffers.
type BlendPrecision int

// Supported blend precisions.
const (
	Precision8  BlendPrecision = 8
	Precision16 BlendPrecision = 16
	Precision32 BlendPrecision = 32
)

// Default context settings.
const (
	DefaultWidth      = 800
	DefaultHeight     = 600
	DefaultTF1DSize   = 256
	DefaultTF2DWidth  = 256
	DefaultTF2DHeight = 256
	DefaultIsoValue   = 0.5
)

// Option configures a Context.
type Option func(*contextOptions)

type contextOptions struct {
	log       *slog.Logger
	overlays  []string
	lighting  bool
	width     int
	height    int
	precision BlendPrecision
	presenter Presenter
	mode      RenderMode
	view      View
}

func defaultOptions() contextOptions {
	return contextOptions{
		width:     DefaultWidth,
		height:    DefaultHeight,
		precision: Precision8,
		mode:      Mode1D,
		view:      DefaultView,
	}
}

// WithLogger sets the logger. The default is volren.Logger().
func WithLogger(l *slog.Logger) Option {
	return func(o *contextOptions) {
		o.log = l
	}
}

// WithLogo loads the image at path as a logo stamped onto every frame. An
// empty path is ignored.
func WithLogo(path string) Option {
	return WithOverlays(path)
}

// WithOverlays adds images stamped onto every frame in order, such as view
// layout markers. Empty paths are ignored.
func WithOverlays(paths ...string) Option {
	return func(o *contextOptions) {
		for _, p := range paths {
			if p != "" {
				o.overlays = append(o.overlays, p)
			}
		}
	}
}

// WithLighting enables gradient shading for the 1D and 2D render modes.
func WithLighting(on bool) Option {
	return func(o *contextOptions) {
		o.lighting = on
	}
}

// WithViewport sets the initial frame buffer size.
func WithViewport(width, height int) Option {
	return func(o *contextOptions) {
		o.width = width
		o.height = height
	}
}

// WithBlendPrecision sets the initial frame buffer bit depth.
func WithBlendPrecision(p BlendPrecision) Option {
	return func(o *contextOptions) {
		o.precision = p
	}
}

// WithPresenter sets where finished passes are shown.
func WithPresenter(p Presenter) Option {
	return func(o *contextOptions) {
		o.presenter = p
	}
}

// WithRenderMode sets the initial render mode.
func WithRenderMode(m RenderMode) Option {
	return func(o *contextOptions) {
		o.mode = m
	}
}

// WithView sets the initial camera.
func WithView(v View) Option {
	return func(o *contextOptions) {
		o.view = v
	}
}
