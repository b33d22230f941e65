package render

import (
	"bytes"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/volren/gpu"
	"github.com/gogpu/volren/gpu/gputest"
	"github.com/gogpu/volren/gpumem"
	"github.com/gogpu/volren/imageio"
	"github.com/gogpu/volren/sysinfo"
	"github.com/gogpu/volren/transfer"
	"github.com/gogpu/volren/volume"
)

type loaderFunc func(dev *gpu.Device, vs, fs string) (*gpu.Program, error)

func (f loaderFunc) Load(dev *gpu.Device, vs, fs string) (*gpu.Program, error) { return f(dev, vs, fs) }

type decoderFunc func(path string) (*imageio.Pixels, error)

func (f decoderFunc) Load(path string) (*imageio.Pixels, error) { return f(path) }

type env struct {
	mm  *gpumem.Manager
	rec *gputest.Device
	sys *sysinfo.Static
	log *bytes.Buffer
	lg  *slog.Logger
}

func newEnv(t *testing.T, failShader string) *env {
	t.Helper()
	dev, rec := gputest.New()
	e := &env{rec: rec, sys: &sysinfo.Static{}, log: &bytes.Buffer{}}
	logger := slog.New(slog.NewTextHandler(e.log, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e.lg = logger
	e.mm = gpumem.New(dev,
		gpumem.WithLogger(logger),
		gpumem.WithSystemInfo(e.sys),
		gpumem.WithDatasetOpener(volume.OpenerFunc(func(path string) (volume.Dataset, error) {
			ds, err := volume.Sphere(path, volume.Coord{X: 16, Y: 16, Z: 16}, volume.Coord{X: 8, Y: 8, Z: 8})
			if err != nil {
				return nil, err
			}
			return ds, nil
		})),
		gpumem.WithProgramLoader(loaderFunc(func(dev *gpu.Device, vs, fs string) (*gpu.Program, error) {
			if failShader != "" && fs == failShader {
				return nil, gpu.ErrCompile
			}
			return dev.CreateProgramFromSPIRV(vs+"+"+fs, gputest.SPIRV(), gputest.SPIRV())
		})),
		gpumem.WithImageDecoder(decoderFunc(func(string) (*imageio.Pixels, error) {
			return &imageio.Pixels{Width: 2, Height: 2, Data: make([]byte, 16)}, nil
		})),
	)
	return e
}

// closeClean asserts the manager tears down without leaks.
func (e *env) closeClean(t *testing.T) {
	t.Helper()
	if err := e.mm.Close(); err != nil {
		t.Errorf("manager Close() = %v\nlog:\n%s", err, e.log)
	}
	if n := e.rec.Live(""); n != 0 {
		t.Errorf("%d device resources alive after Close", n)
	}
}

func (e *env) context(t *testing.T, s Strategy, opts ...Option) *Context {
	t.Helper()
	opts = append([]Option{WithViewport(4, 4), WithLogger(e.lg)}, opts...)
	c := New(e.mm, s, opts...)
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return c
}

// paintAll paints until the frame is complete and returns the frames shown.
func paintAll(t *testing.T, c *Context, frames *[]Frame) {
	t.Helper()
	for i := 0; c.CheckForRedraw(); i++ {
		if i > 10 {
			t.Fatal("refinement does not terminate")
		}
		if err := c.Paint(); err != nil {
			t.Fatalf("Paint() error = %v", err)
		}
	}
	_ = frames
}

func collect(frames *[]Frame) Option {
	return WithPresenter(PresenterFunc(func(f Frame) error {
		*frames = append(*frames, f)
		return nil
	}))
}

func TestContextLifecycle(t *testing.T) {
	e := newEnv(t, "")
	a := e.context(t, NewRayCastStrategy(), WithLogo("logo.png"))
	b := e.context(t, NewRayCastStrategy(), WithLogo("logo.png"))

	st := e.mm.Stats()
	// Five volume programs, compose and two slice programs.
	if got := st.Counts[gpumem.KindProgram]; got != 8 {
		t.Errorf("programs = %d, want 8 shared by both contexts", got)
	}
	for _, r := range append(slices.Clone(VolumeRoles), ProgramCompose, ProgramSlice1D, ProgramSlice2D) {
		if a.Program(r) == nil || a.Program(r) != b.Program(r) {
			t.Errorf("program %v not shared between contexts", r)
		}
	}
	if got := st.Counts[gpumem.KindImage]; got != 1 {
		t.Errorf("images = %d, want 1", got)
	}
	if got := st.Counts[gpumem.KindTarget]; got != 4 {
		t.Errorf("targets = %d, want 4", got)
	}
	if got := st.Counts[gpumem.KindTransferFunction1D]; got != 2 {
		t.Errorf("1D transfer functions = %d, want 2", got)
	}
	if a.ID() == b.ID() {
		t.Error("contexts share an ID")
	}

	a.Release()
	a.Release()
	if err := a.Paint(); !errors.Is(err, ErrReleased) {
		t.Errorf("Paint() after Release error = %v, want ErrReleased", err)
	}
	if err := a.Initialize(); !errors.Is(err, ErrReleased) {
		t.Errorf("Initialize() after Release error = %v, want ErrReleased", err)
	}
	b.Release()
	e.closeClean(t)
}

func TestContextRequiresInitialize(t *testing.T) {
	e := newEnv(t, "")
	c := New(e.mm, NewSliceStrategy())
	if err := c.LoadDataset("sphere"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("LoadDataset() error = %v, want ErrNotInitialized", err)
	}
	if c.CheckForRedraw() {
		t.Error("uninitialized context wants to redraw")
	}
	c.Release()
	e.closeClean(t)
}

func TestInitializeFailureReleasesEverything(t *testing.T) {
	e := newEnv(t, ComposeShader)
	c := New(e.mm, NewSliceStrategy(), WithViewport(4, 4))
	if err := c.Initialize(); !errors.Is(err, gpumem.ErrCompile) {
		t.Fatalf("Initialize() error = %v, want ErrCompile", err)
	}
	if got := e.mm.Stats().Counts[gpumem.KindProgram]; got != 0 {
		t.Errorf("programs after failed Initialize = %d, want 0", got)
	}
	e.closeClean(t)
}

func TestProgressivePaint(t *testing.T) {
	e := newEnv(t, "")
	var frames []Frame
	c := e.context(t, NewSliceStrategy(), collect(&frames))
	defer func() {
		c.Release()
		e.closeClean(t)
	}()

	if c.CheckForRedraw() {
		t.Error("context without dataset wants to redraw")
	}
	if err := c.LoadDataset("data/sphere.brk"); err != nil {
		t.Fatal(err)
	}
	paintAll(t, c, &frames)

	if len(frames) != 2 {
		t.Fatalf("presented %d frames, want 2", len(frames))
	}
	if frames[0].LOD != 1 || frames[0].Complete || frames[0].Pass.Drawn != 1 {
		t.Errorf("first frame = LOD %d complete %v drawn %d, want coarse level with 1 brick",
			frames[0].LOD, frames[0].Complete, frames[0].Pass.Drawn)
	}
	if frames[1].LOD != 0 || !frames[1].Complete || frames[1].Pass.Drawn != 8 {
		t.Errorf("second frame = LOD %d complete %v drawn %d, want finest level with 8 bricks",
			frames[1].LOD, frames[1].Complete, frames[1].Pass.Drawn)
	}
	if frames[0].Target == frames[1].Target {
		t.Error("consecutive passes presented the same buffer")
	}
	if !c.Complete() || c.FilledBuffers() != 2 || c.Frames() != 2 {
		t.Errorf("after refinement: complete %v filled %d frames %d", c.Complete(), c.FilledBuffers(), c.Frames())
	}

	// Bricks are released after drawing and stay resident as cache.
	st := e.mm.Stats()
	if st.IdleBricks != 9 || st.Counts[gpumem.KindBrick] != 9 {
		t.Errorf("bricks = %d resident %d idle, want 9 and 9", st.Counts[gpumem.KindBrick], st.IdleBricks)
	}

	if err := c.Paint(); err != nil || c.Frames() != 2 {
		t.Errorf("Paint() on a complete frame drew again: %v", err)
	}
}

func TestTransferFunctionSharing(t *testing.T) {
	e := newEnv(t, "")
	a := e.context(t, NewRayCastStrategy())
	b := e.context(t, NewSliceStrategy())
	defer func() {
		a.Release()
		b.Release()
		e.closeClean(t)
	}()
	for _, c := range []*Context{a, b} {
		if err := c.LoadDataset("sphere"); err != nil {
			t.Fatal(err)
		}
		paintAll(t, c, nil)
	}
	if got := e.mm.DatasetOwners("sphere"); got != 2 {
		t.Errorf("dataset owners = %d, want 2", got)
	}

	own := b.TransferFunction1D()
	if err := b.Share1DTransferFunction(a.TransferFunction1D()); err != nil {
		t.Fatal(err)
	}
	if e.mm.TransferFunction1DOwners(own) != 0 {
		t.Error("replaced function still owned")
	}
	if got := e.mm.TransferFunction1DOwners(a.TransferFunction1D()); got != 2 {
		t.Errorf("shared function owners = %d, want 2", got)
	}
	paintAll(t, b, nil)

	err := a.Edit1DTransferFunction(func(f *transfer.Function1D) {
		f.Set(10, transfer.Color{R: 1, A: 1})
	})
	if err != nil {
		t.Fatal(err)
	}
	if !b.CheckForRedraw() {
		t.Fatal("edit did not reach the sharing context")
	}
	if b.FilledBuffers() != 2 {
		t.Errorf("change notification discarded accumulated buffers")
	}
	frames := b.Frames()
	if err := b.Paint(); err != nil {
		t.Fatal(err)
	}
	if b.Frames() != frames+1 || b.Complete() {
		t.Error("refinement did not restart at the coarsest level")
	}

	if err := b.Share2DTransferFunction(a.TransferFunction2D()); err != nil {
		t.Fatal(err)
	}
	paintAll(t, b, nil)
	paintAll(t, a, nil)
	err = b.Edit2DTransferFunction(func(f *transfer.Function2D) {
		f.Set(0, 0, transfer.Color{G: 1, A: 1})
	})
	if err != nil {
		t.Fatal(err)
	}
	if !a.CheckForRedraw() {
		t.Error("2D edit did not reach the other context")
	}
}

func TestResizeAndPrecision(t *testing.T) {
	e := newEnv(t, "")
	var frames []Frame
	c := e.context(t, NewRayCastStrategy(), collect(&frames))
	defer func() {
		c.Release()
		e.closeClean(t)
	}()
	if err := c.LoadDataset("sphere"); err != nil {
		t.Fatal(err)
	}
	paintAll(t, c, &frames)

	if err := c.Resize(0, 10); !errors.Is(err, ErrInvalidViewport) {
		t.Errorf("Resize(0, 10) error = %v, want ErrInvalidViewport", err)
	}
	if err := c.Resize(32, 16); err != nil {
		t.Fatal(err)
	}
	if !c.CheckForRedraw() || c.FilledBuffers() != 0 {
		t.Error("Resize() did not force a full redraw")
	}
	paintAll(t, c, &frames)
	last := frames[len(frames)-1].Target
	if last.Width() != 32 || last.Height() != 16 {
		t.Errorf("frame size = %dx%d, want 32x16", last.Width(), last.Height())
	}

	if err := c.SetBlendPrecision(12); !errors.Is(err, ErrInvalidPrecision) {
		t.Errorf("SetBlendPrecision(12) error = %v, want ErrInvalidPrecision", err)
	}
	if err := c.SetBlendPrecision(Precision16); err != nil {
		t.Fatal(err)
	}
	paintAll(t, c, &frames)
	if got := frames[len(frames)-1].Target.Format(); got != gputypes.TextureFormatRGBA16Float {
		t.Errorf("frame format = %v, want RGBA16Float", got)
	}
	if got := e.mm.Stats().Counts[gpumem.KindTarget]; got != 2 {
		t.Errorf("targets = %d, want 2", got)
	}
}

func TestPaintUnderMemoryPressure(t *testing.T) {
	e := newEnv(t, "")
	var frames []Frame
	c := e.context(t, NewRayCastStrategy(), collect(&frames))
	defer func() {
		c.Release()
		e.closeClean(t)
	}()
	if err := c.LoadDataset("sphere"); err != nil {
		t.Fatal(err)
	}
	const brickBytes = 8 * 8 * 8
	base := e.mm.Committed().GPU

	// Room for one brick: each pass recycles the previous idle brick.
	e.sys.GPU = base + brickBytes
	paintAll(t, c, &frames)
	if got := frames[len(frames)-1].Pass; got.Drawn != 8 || got.Skipped != 0 {
		t.Errorf("finest pass drew %d skipped %d, want 8 and 0", got.Drawn, got.Skipped)
	}
	if got := e.mm.Stats().Evictions; got < 8 {
		t.Errorf("evictions = %d, want at least 8", got)
	}

	// No room at all: bricks are skipped, not overcommitted.
	e.sys.GPU = base + brickBytes/2
	e.mm.OnMemoryBudgetChanged()
	c.SetView(View{Eye: [3]float64{0.5, 0.5, 3}})
	paintAll(t, c, &frames)
	if got := frames[len(frames)-1].Pass; got.Drawn != 0 || got.Skipped != 8 {
		t.Errorf("finest pass drew %d skipped %d, want 0 and 8", got.Drawn, got.Skipped)
	}
	if got := e.mm.Committed().GPU; got > e.sys.GPU {
		t.Errorf("committed GPU %d exceeds ceiling %d", got, e.sys.GPU)
	}
	if !strings.Contains(e.log.String(), "bricks skipped") {
		t.Error("missing skipped-bricks warning")
	}
}

func TestSetRenderModeAndIso(t *testing.T) {
	e := newEnv(t, "")
	var frames []Frame
	c := e.context(t, NewSliceStrategy(), collect(&frames), WithRenderMode(Mode2D))
	defer func() {
		c.Release()
		e.closeClean(t)
	}()
	if err := c.LoadDataset("sphere"); err != nil {
		t.Fatal(err)
	}
	paintAll(t, c, &frames)
	if frames[0].Pass.Mode != Mode2D {
		t.Errorf("pass mode = %v, want 2d", frames[0].Pass.Mode)
	}

	c.SetIsoValue(0.3)
	if c.CheckForRedraw() {
		t.Error("iso value change redraws outside iso mode")
	}
	c.SetRenderMode(ModeIso)
	paintAll(t, c, &frames)
	last := frames[len(frames)-1].Pass
	if last.Mode != ModeIso || last.Iso != 0.3 {
		t.Errorf("pass mode %v iso %v, want iso 0.3", last.Mode, last.Iso)
	}
	c.SetIsoValue(0.6)
	if !c.CheckForRedraw() {
		t.Error("iso value change in iso mode did not redraw")
	}
}

func TestLightingSelectsLitProgram(t *testing.T) {
	e := newEnv(t, "")
	var frames []Frame
	c := e.context(t, NewSliceStrategy(), collect(&frames), WithLighting(true))
	defer func() {
		c.Release()
		e.closeClean(t)
	}()
	if err := c.LoadDataset("sphere"); err != nil {
		t.Fatal(err)
	}
	paintAll(t, c, &frames)
	pass := frames[len(frames)-1].Pass
	if !pass.Lit || !strings.Contains(pass.Program.Label(), "sbvr-1d-lit") {
		t.Errorf("lit pass program = %q lit %v, want sbvr-1d-lit", pass.Program.Label(), pass.Lit)
	}

	c.SetRenderMode(Mode2D)
	paintAll(t, c, &frames)
	if pass := frames[len(frames)-1].Pass; !strings.Contains(pass.Program.Label(), "sbvr-2d-lit") {
		t.Errorf("2D lit pass program = %q, want sbvr-2d-lit", pass.Program.Label())
	}

	c.SetLighting(false)
	if !c.CheckForRedraw() || c.Lighting() {
		t.Error("SetLighting(false) did not schedule a redraw")
	}
	paintAll(t, c, &frames)
	pass = frames[len(frames)-1].Pass
	if pass.Lit || strings.Contains(pass.Program.Label(), "lit") {
		t.Errorf("unlit pass program = %q lit %v", pass.Program.Label(), pass.Lit)
	}

	// The iso surface has a single program.
	c.SetRenderMode(ModeIso)
	c.SetLighting(true)
	paintAll(t, c, &frames)
	if pass := frames[len(frames)-1].Pass; pass.Lit || !strings.Contains(pass.Program.Label(), "sbvr-iso") {
		t.Errorf("iso pass program = %q lit %v", pass.Program.Label(), pass.Lit)
	}
}

func TestPaintSlice(t *testing.T) {
	e := newEnv(t, "")
	var frames []Frame
	c := e.context(t, NewRayCastStrategy(), collect(&frames))
	defer func() {
		c.Release()
		e.closeClean(t)
	}()

	if err := c.PaintSlice(Slice{Axis: AxisZ, Index: 3}); !errors.Is(err, ErrNoDataset) {
		t.Errorf("PaintSlice() without dataset error = %v, want ErrNoDataset", err)
	}
	if err := c.LoadDataset("sphere"); err != nil {
		t.Fatal(err)
	}

	if err := c.PaintSlice(Slice{Axis: AxisZ, Index: 3}); err != nil {
		t.Fatal(err)
	}
	f := frames[len(frames)-1]
	if f.Slice == nil || *f.Slice != (Slice{Axis: AxisZ, Index: 3}) || !f.Complete || f.LOD != 0 {
		t.Errorf("slice frame = %+v", f)
	}
	if f.Pass.Drawn != 4 || f.Pass.Samples != 4 {
		t.Errorf("slice z:3 drew %d bricks %d samples, want 4 and 4", f.Pass.Drawn, f.Pass.Samples)
	}
	if !strings.Contains(f.Pass.Program.Label(), "slice-1d") {
		t.Errorf("slice program = %q, want slice-1d", f.Pass.Program.Label())
	}
	if f.Compose == nil || f.Compose != c.Program(ProgramCompose) {
		t.Error("slice frame lacks the compose program")
	}

	// A slice leaves progressive refinement where it was.
	if !c.CheckForRedraw() || c.Frames() != 0 {
		t.Errorf("PaintSlice() changed the volume state: redraw %v frames %d", c.CheckForRedraw(), c.Frames())
	}

	c.SetRenderMode(Mode2D)
	if err := c.PaintSlice(Slice{Axis: AxisX, Index: 15}); err != nil {
		t.Fatal(err)
	}
	f = frames[len(frames)-1]
	if !strings.Contains(f.Pass.Program.Label(), "slice-2d") || f.Pass.Drawn != 4 {
		t.Errorf("slice x:15 program %q drew %d, want slice-2d and 4", f.Pass.Program.Label(), f.Pass.Drawn)
	}

	for _, s := range []Slice{{AxisY, 16}, {AxisX, -1}, {Axis(3), 0}} {
		if err := c.PaintSlice(s); !errors.Is(err, ErrInvalidSlice) {
			t.Errorf("PaintSlice(%v) error = %v, want ErrInvalidSlice", s, err)
		}
	}

	// z:3 and x:15 cross four bricks each, two of them shared.
	st := e.mm.Stats()
	if st.Counts[gpumem.KindBrick] != 6 || st.IdleBricks != 6 {
		t.Errorf("bricks = %d resident %d idle, want 6 and 6", st.Counts[gpumem.KindBrick], st.IdleBricks)
	}
}

func TestParseAxis(t *testing.T) {
	for in, want := range map[string]Axis{"x": AxisX, "Y": AxisY, "z": AxisZ} {
		got, err := ParseAxis(in)
		if err != nil || got != want {
			t.Errorf("ParseAxis(%q) = %v, %v, want %v", in, got, err, want)
		}
	}
	if _, err := ParseAxis("w"); !errors.Is(err, ErrInvalidSlice) {
		t.Errorf("ParseAxis(w) error = %v, want ErrInvalidSlice", err)
	}
	s := Slice{Axis: AxisY, Index: 7}
	if got := s.String(); got != "y:7" {
		t.Errorf("String() = %q, want y:7", got)
	}
	if got, err := ParseSlice(s.String()); err != nil || got != s {
		t.Errorf("ParseSlice(%q) = %v, %v", s, got, err)
	}
	for _, bad := range []string{"z", "q:1", "x:one"} {
		if _, err := ParseSlice(bad); !errors.Is(err, ErrInvalidSlice) {
			t.Errorf("ParseSlice(%q) error = %v, want ErrInvalidSlice", bad, err)
		}
	}
}

func TestOverlays(t *testing.T) {
	e := newEnv(t, "")
	var frames []Frame
	c := e.context(t, NewSliceStrategy(), collect(&frames),
		WithLogo("logo.png"), WithOverlays("layout-1x3.png", "", "layout-2x2.png"))
	if got := e.mm.Stats().Counts[gpumem.KindImage]; got != 3 {
		t.Errorf("images = %d, want 3", got)
	}
	if err := c.LoadDataset("sphere"); err != nil {
		t.Fatal(err)
	}
	paintAll(t, c, &frames)
	if got := len(frames[len(frames)-1].Overlays); got != 3 {
		t.Errorf("frame overlays = %d, want 3", got)
	}
	c.Release()
	if got := e.mm.Stats().Counts[gpumem.KindImage]; got != 0 {
		t.Errorf("images after Release = %d, want 0", got)
	}
	e.closeClean(t)
}
