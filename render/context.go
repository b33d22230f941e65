package render

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/google/uuid"

	"github.com/gogpu/volren"
	"github.com/gogpu/volren/gpu"
	"github.com/gogpu/volren/gpumem"
	"github.com/gogpu/volren/transfer"
	"github.com/gogpu/volren/volume"
)

// Context errors.
var (
	// ErrNotInitialized is returned before Initialize succeeded.
	ErrNotInitialized = errors.New("render: context not initialized")

	// ErrReleased is returned after Release.
	ErrReleased = errors.New("render: context released")

	// ErrInvalidViewport is returned for non-positive sizes.
	ErrInvalidViewport = errors.New("render: invalid viewport")

	// ErrInvalidPrecision is returned for unsupported blend precisions.
	ErrInvalidPrecision = errors.New("render: invalid blend precision")

	// ErrNoDataset is returned by PaintSlice before a dataset is loaded.
	ErrNoDataset = errors.New("render: no dataset loaded")

	// ErrInvalidSlice is returned for slices outside the volume.
	ErrInvalidSlice = errors.New("render: slice out of range")
)

// Context is one progressive view of a dataset. It implements
// gpumem.Requester and must be passed by pointer.
type Context struct {
	id           uuid.UUID
	mm           *gpumem.Manager
	strategy     Strategy
	log          *slog.Logger
	presenter    Presenter
	overlayPaths []string

	width, height int
	precision     BlendPrecision
	mode          RenderMode
	view          View
	iso           float64
	lighting      bool

	dataset  volume.Dataset
	tf1d     *transfer.Function1D
	tf2d     *transfer.Function2D
	programs map[ProgramRole]*gpu.Program
	overlays []*gpu.Texture
	current  *gpu.Target
	last     *gpu.Target

	// lod is the next level to render; -1 when refinement is complete.
	lod int
	// filled counts frame buffers holding a rendered pass.
	filled      int
	fullRedraw  bool
	blendDirty  bool
	initialized bool
	released    bool
	frames      uint64
}

var _ gpumem.Requester = (*Context)(nil)

// New creates a context drawing with s. Nothing is allocated until
// Initialize.
func New(mm *gpumem.Manager, s Strategy, opts ...Option) *Context {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	id := uuid.New()
	log := o.log
	if log == nil {
		log = volren.Logger()
	}
	return &Context{
		id:           id,
		mm:           mm,
		strategy:     s,
		log:          log.With("context", id.String()[:8], "strategy", s.Name()),
		presenter:    o.presenter,
		overlayPaths: o.overlays,
		width:        o.width,
		height:       o.height,
		precision:    o.precision,
		mode:         o.mode,
		view:         o.view,
		iso:          DefaultIsoValue,
		lighting:     o.lighting,
		programs:     make(map[ProgramRole]*gpu.Program),
		lod:          -1,
	}
}

// ID returns the unique identifier of the context.
func (c *Context) ID() uuid.UUID { return c.id }

// Strategy returns the drawing strategy.
func (c *Context) Strategy() Strategy { return c.strategy }

// Initialize acquires the shader programs, default transfer functions, the
// overlays and the frame buffers. On failure everything acquired so far is
// released.
func (c *Context) Initialize() error {
	if c.released {
		return ErrReleased
	}
	if c.initialized {
		return nil
	}
	if err := c.initialize(); err != nil {
		c.releaseAll()
		return err
	}
	c.initialized = true
	c.fullRedraw = true
	c.log.Info("render: context initialized", "width", c.width, "height", c.height, "precision", int(c.precision))
	return nil
}

func (c *Context) initialize() error {
	if _, err := gpu.FormatForBits(int(c.precision)); err != nil {
		return fmt.Errorf("%w: %d", ErrInvalidPrecision, c.precision)
	}
	if err := c.acquirePrograms(); err != nil {
		return err
	}
	var err error
	if c.tf1d, _, err = c.mm.CreateEmptyTransferFunction1D(DefaultTF1DSize, c); err != nil {
		return err
	}
	if c.tf2d, _, err = c.mm.CreateEmptyTransferFunction2D(DefaultTF2DWidth, DefaultTF2DHeight, c); err != nil {
		return err
	}
	for _, path := range c.overlayPaths {
		tex, err := c.mm.AcquireImage(path)
		if err != nil {
			return err
		}
		c.overlays = append(c.overlays, tex)
	}
	return c.createBuffers()
}

// acquirePrograms builds the strategy's volume programs and the shared
// compose and slice programs, in role order.
func (c *Context) acquirePrograms() error {
	volumes := c.strategy.Programs()
	shared := SharedPrograms()
	for _, role := range append(slices.Clone(VolumeRoles), sharedRoles...) {
		src, ok := volumes[role]
		if !ok {
			if src, ok = shared[role]; !ok {
				continue
			}
		}
		p, err := c.mm.AcquireShaderProgram(src.Vertex, src.Fragment)
		if err != nil {
			return err
		}
		c.programs[role] = p
	}
	return nil
}

// Program returns the program acquired for role, or nil.
func (c *Context) Program(role ProgramRole) *gpu.Program { return c.programs[role] }

// createBuffers allocates both frame buffers at the current size and
// precision.
func (c *Context) createBuffers() error {
	format, err := gpu.FormatForBits(int(c.precision))
	if err != nil {
		return fmt.Errorf("%w: %d", ErrInvalidPrecision, c.precision)
	}
	for _, slot := range []**gpu.Target{&c.current, &c.last} {
		t, err := c.mm.AcquireOffscreenTarget(gpu.TargetDescriptor{
			Label:     "frame-" + c.id.String()[:8],
			MinFilter: gputypes.FilterModeLinear,
			MagFilter: gputypes.FilterModeLinear,
			Width:     c.width,
			Height:    c.height,
			Format:    format,
		})
		if err != nil {
			c.releaseBuffers()
			return err
		}
		*slot = t
	}
	c.filled = 0
	return nil
}

func (c *Context) releaseBuffers() {
	for _, slot := range []**gpu.Target{&c.current, &c.last} {
		if *slot != nil {
			c.mm.ReleaseOffscreenTarget(*slot)
			*slot = nil
		}
	}
	c.filled = 0
}

func (c *Context) ready() error {
	if c.released {
		return ErrReleased
	}
	if !c.initialized {
		return ErrNotInitialized
	}
	return nil
}

// LoadDataset switches the context to the dataset at path and schedules a
// full redraw. The previous dataset is released after the new one loaded,
// so reloading the same path keeps it open.
func (c *Context) LoadDataset(path string) error {
	if err := c.ready(); err != nil {
		return err
	}
	ds, err := c.mm.LoadDataset(path, c)
	if err != nil {
		return err
	}
	if c.dataset != nil {
		c.mm.ReleaseDataset(c.dataset, c)
	}
	c.dataset = ds
	c.fullRedraw = true
	c.log.Info("render: dataset loaded", "path", path, "lods", ds.LODCount())
	return nil
}

// Dataset returns the current dataset, or nil.
func (c *Context) Dataset() volume.Dataset { return c.dataset }

// Resize recreates the frame buffers at the new size and schedules a full
// redraw.
func (c *Context) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidViewport, width, height)
	}
	if err := c.ready(); err != nil {
		return err
	}
	if width == c.width && height == c.height {
		return nil
	}
	c.releaseBuffers()
	c.width, c.height = width, height
	if err := c.createBuffers(); err != nil {
		return err
	}
	c.fullRedraw = true
	c.log.Debug("render: resized", "width", width, "height", height)
	return nil
}

// Viewport returns the frame buffer size.
func (c *Context) Viewport() (width, height int) { return c.width, c.height }

// SetBlendPrecision recreates the frame buffers at bit depth p and
// schedules a full redraw.
func (c *Context) SetBlendPrecision(p BlendPrecision) error {
	if _, err := gpu.FormatForBits(int(p)); err != nil {
		return fmt.Errorf("%w: %d", ErrInvalidPrecision, p)
	}
	if p == c.precision {
		return nil
	}
	c.precision = p
	if !c.initialized || c.released {
		return nil
	}
	c.releaseBuffers()
	if err := c.createBuffers(); err != nil {
		return err
	}
	c.fullRedraw = true
	c.log.Debug("render: blend precision changed", "bits", int(p))
	return nil
}

// BlendPrecision returns the frame buffer bit depth.
func (c *Context) BlendPrecision() BlendPrecision { return c.precision }

// SetRenderMode switches classification and schedules a full redraw.
func (c *Context) SetRenderMode(m RenderMode) {
	if m == c.mode {
		return
	}
	c.mode = m
	c.fullRedraw = true
}

// SetIsoValue sets the iso value used by ModeIso.
func (c *Context) SetIsoValue(v float64) {
	if v == c.iso {
		return
	}
	c.iso = v
	if c.mode == ModeIso {
		c.blendDirty = true
	}
}

// SetLighting switches gradient shading for the 1D and 2D modes and
// schedules a full redraw.
func (c *Context) SetLighting(on bool) {
	if on == c.lighting {
		return
	}
	c.lighting = on
	if c.mode != ModeIso {
		c.fullRedraw = true
	}
}

// Lighting reports whether gradient shading is on.
func (c *Context) Lighting() bool { return c.lighting }

// SetView moves the camera and schedules a full redraw.
func (c *Context) SetView(v View) {
	if v == c.view {
		return
	}
	c.view = v
	c.fullRedraw = true
}

// TransferFunction1DChanged is called by the manager when another owner
// edited the shared 1D transfer function.
func (c *Context) TransferFunction1DChanged() {
	c.log.Debug("render: 1D transfer function changed elsewhere")
	c.blendDirty = true
}

// TransferFunction2DChanged is called by the manager when another owner
// edited the shared 2D transfer function.
func (c *Context) TransferFunction2DChanged() {
	c.log.Debug("render: 2D transfer function changed elsewhere")
	c.blendDirty = true
}

// TransferFunction1D returns the 1D transfer function in use.
func (c *Context) TransferFunction1D() *transfer.Function1D { return c.tf1d }

// TransferFunction2D returns the 2D transfer function in use.
func (c *Context) TransferFunction2D() *transfer.Function2D { return c.tf2d }

// Edit1DTransferFunction applies edit to the 1D transfer function and
// propagates the change to every context sharing it.
func (c *Context) Edit1DTransferFunction(edit func(*transfer.Function1D)) error {
	if err := c.ready(); err != nil {
		return err
	}
	edit(c.tf1d)
	c.mm.NotifyTransferFunction1DChanged(c, c.tf1d)
	c.blendDirty = true
	return nil
}

// Edit2DTransferFunction applies edit to the 2D transfer function and
// propagates the change to every context sharing it.
func (c *Context) Edit2DTransferFunction(edit func(*transfer.Function2D)) error {
	if err := c.ready(); err != nil {
		return err
	}
	edit(c.tf2d)
	c.mm.NotifyTransferFunction2DChanged(c, c.tf2d)
	c.blendDirty = true
	return nil
}

// Share1DTransferFunction makes the context use fn, which another context
// owns, in place of its own 1D transfer function.
func (c *Context) Share1DTransferFunction(fn *transfer.Function1D) error {
	if err := c.ready(); err != nil {
		return err
	}
	if fn == c.tf1d {
		return nil
	}
	if _, err := c.mm.AcquireTransferFunction1D(fn, c); err != nil {
		return err
	}
	c.mm.ReleaseTransferFunction1D(c.tf1d, c)
	c.tf1d = fn
	c.blendDirty = true
	return nil
}

// Share2DTransferFunction makes the context use fn in place of its own 2D
// transfer function.
func (c *Context) Share2DTransferFunction(fn *transfer.Function2D) error {
	if err := c.ready(); err != nil {
		return err
	}
	if fn == c.tf2d {
		return nil
	}
	if _, err := c.mm.AcquireTransferFunction2D(fn, c); err != nil {
		return err
	}
	c.mm.ReleaseTransferFunction2D(c.tf2d, c)
	c.tf2d = fn
	c.blendDirty = true
	return nil
}

// Load1DTransferFunction replaces the 1D transfer function with one read
// from path.
func (c *Context) Load1DTransferFunction(path string) error {
	if err := c.ready(); err != nil {
		return err
	}
	fn, _, err := c.mm.LoadTransferFunction1D(path, c)
	if err != nil {
		return err
	}
	c.mm.ReleaseTransferFunction1D(c.tf1d, c)
	c.tf1d = fn
	c.blendDirty = true
	return nil
}

// Load2DTransferFunction replaces the 2D transfer function with one read
// from path.
func (c *Context) Load2DTransferFunction(path string) error {
	if err := c.ready(); err != nil {
		return err
	}
	fn, _, err := c.mm.LoadTransferFunction2D(path, c)
	if err != nil {
		return err
	}
	c.mm.ReleaseTransferFunction2D(c.tf2d, c)
	c.tf2d = fn
	c.blendDirty = true
	return nil
}

// CheckForRedraw reports whether Paint has work to do: a full redraw, a
// restart after a transfer function change, or a finer level still to
// render.
func (c *Context) CheckForRedraw() bool {
	if !c.initialized || c.released || c.dataset == nil {
		return false
	}
	return c.fullRedraw || c.blendDirty || c.lod >= 0
}

// Complete reports whether the finest level has been presented since the
// last invalidation.
func (c *Context) Complete() bool {
	return c.dataset != nil && !c.CheckForRedraw()
}

// Frames returns the number of passes presented.
func (c *Context) Frames() uint64 { return c.frames }

// FilledBuffers returns how many frame buffers hold a rendered pass.
func (c *Context) FilledBuffers() int { return c.filled }

// Paint renders one level of detail, swaps the frame buffers and presents
// the result. It does nothing when CheckForRedraw reports false.
func (c *Context) Paint() error {
	if err := c.ready(); err != nil {
		return err
	}
	if !c.CheckForRedraw() {
		return nil
	}
	coarsest := c.dataset.LODCount() - 1
	switch {
	case c.fullRedraw:
		c.filled = 0
		c.lod = coarsest
	case c.blendDirty:
		c.lod = coarsest
	}
	c.fullRedraw = false
	c.blendDirty = false

	pass, err := c.renderPass(c.lod)
	if err != nil {
		return err
	}

	c.current, c.last = c.last, c.current
	c.filled = min(c.filled+1, 2)
	c.frames++
	lod := c.lod
	c.lod--

	if c.presenter != nil {
		err := c.presenter.Present(Frame{
			Target:   c.last,
			Overlays: c.overlays,
			Compose:  c.programs[ProgramCompose],
			LOD:      lod,
			Complete: lod == 0,
			Pass:     *pass,
		})
		if err != nil {
			return fmt.Errorf("render: present: %w", err)
		}
	}
	return nil
}

// newPass starts a pass of one level drawn with the program for role.
func (c *Context) newPass(lod int, role ProgramRole) (*Pass, error) {
	pass := &Pass{
		LOD:     lod,
		Mode:    c.mode,
		Target:  c.current,
		Program: c.programs[role],
		Lit:     role == ProgramTF1DLit || role == ProgramTF2DLit,
		Iso:     c.iso,
	}
	var ok bool
	if pass.TF1D, ok = c.mm.TransferFunction1DTexture(c.tf1d); !ok {
		return nil, fmt.Errorf("render: 1D transfer function: %w", gpumem.ErrNotFound)
	}
	if pass.TF2D, ok = c.mm.TransferFunction2DTexture(c.tf2d); !ok {
		return nil, fmt.Errorf("render: 2D transfer function: %w", gpumem.ErrNotFound)
	}
	return pass, nil
}

// drawBricks acquires each brick in turn, hands it to draw and releases
// it. Bricks that do not fit the memory budget are counted as skipped.
func (c *Context) drawBricks(pass *Pass, keys []volume.BrickKey, draw func(Brick) error) error {
	for _, key := range keys {
		tex, err := c.mm.AcquireBrickTexture(c.dataset, key)
		if errors.Is(err, gpumem.ErrMemoryBudgetExceeded) {
			pass.Skipped++
			continue
		}
		if err != nil {
			return err
		}
		err = draw(Brick{Key: key, Texture: tex, Extent: c.dataset.BrickSize(key)})
		c.mm.ReleaseBrickTexture(tex)
		if err != nil {
			return err
		}
	}
	return nil
}

// renderPass draws every brick of one level into the current buffer.
func (c *Context) renderPass(lod int) (*Pass, error) {
	pass, err := c.newPass(lod, volumeRole(c.mode, c.lighting))
	if err != nil {
		return nil, err
	}
	if err := c.strategy.PreLoop(pass); err != nil {
		return nil, err
	}

	keys := c.strategy.Order(c.dataset, lod, volume.Bricks(c.dataset, lod), c.view)
	err = c.drawBricks(pass, keys, func(b Brick) error {
		return c.strategy.InLoop(pass, b)
	})
	if err != nil {
		return nil, err
	}

	if err := c.strategy.PostLoop(pass); err != nil {
		return nil, err
	}
	if pass.Skipped > 0 {
		c.log.Warn("render: bricks skipped for lack of memory", "lod", lod, "skipped", pass.Skipped, "drawn", pass.Drawn)
	}
	c.log.Debug("render: pass done", "lod", lod, "bricks", pass.Drawn, "samples", pass.Samples)
	return pass, nil
}

// Release returns every resource the context holds to the manager. It is
// idempotent; the context cannot be used afterwards.
func (c *Context) Release() {
	if c.released {
		return
	}
	c.releaseAll()
	c.released = true
	c.initialized = false
	c.log.Info("render: context released", "frames", c.frames)
}

func (c *Context) releaseAll() {
	c.releaseBuffers()
	if c.dataset != nil {
		c.mm.ReleaseDataset(c.dataset, c)
		c.dataset = nil
	}
	if c.tf1d != nil {
		c.mm.ReleaseTransferFunction1D(c.tf1d, c)
		c.tf1d = nil
	}
	if c.tf2d != nil {
		c.mm.ReleaseTransferFunction2D(c.tf2d, c)
		c.tf2d = nil
	}
	for _, tex := range c.overlays {
		c.mm.ReleaseImage(tex)
	}
	c.overlays = nil
	for mode, p := range c.programs {
		c.mm.ReleaseShaderProgram(p)
		delete(c.programs, mode)
	}
}
