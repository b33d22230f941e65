package gpumem

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/volren/gpu"
	"github.com/gogpu/volren/gpu/gputest"
)

func TestImageAccessCount(t *testing.T) {
	f := newFixture(t)

	var first *gpu.Texture
	for i := range 3 {
		tex, err := f.m.AcquireImage("assets/logo.png")
		if err != nil {
			t.Fatalf("AcquireImage() #%d error = %v", i, err)
		}
		if first == nil {
			first = tex
		} else if tex != first {
			t.Fatal("AcquireImage() returned a different texture for the same path")
		}
	}
	if f.decodes != 1 {
		t.Errorf("decodes = %d, want 1", f.decodes)
	}
	if got := f.m.ImageUsers("assets/logo.png"); got != 3 {
		t.Fatalf("ImageUsers() = %d, want 3", got)
	}

	f.m.ReleaseImage(first)
	f.m.ReleaseImage(first)
	if got := f.m.ImageUsers("assets/logo.png"); got != 1 {
		t.Errorf("ImageUsers() = %d, want 1", got)
	}
	if first.IsReleased() {
		t.Fatal("texture destroyed while still in use")
	}
	if got := f.m.Committed().GPU; got != imageBytes {
		t.Errorf("committed GPU = %d, want %d", got, imageBytes)
	}

	f.m.ReleaseImage(first)
	if !first.IsReleased() {
		t.Error("texture not destroyed after the last release")
	}
	if f.m.Stats().Counts[KindImage] != 0 || !f.m.Committed().IsZero() {
		t.Error("image entry or memory left after the last release")
	}

	f.m.ReleaseImage(first)
	if f.lines("WARN", "unknown image") != 1 {
		t.Errorf("missing warning for stale release:\n%s", f.log)
	}
}

func TestAcquireImageDecodeError(t *testing.T) {
	f := newFixture(t)
	if _, err := f.m.AcquireImage("broken.png"); !errors.Is(err, ErrDecode) {
		t.Errorf("AcquireImage() error = %v, want ErrDecode", err)
	}
	if f.lines("ERROR", "cannot decode image") != 1 {
		t.Errorf("missing decode error log:\n%s", f.log)
	}
	if f.m.Stats().Counts[KindImage] != 0 {
		t.Error("failed decode registered an image")
	}
}

func TestShaderProgramDeduplicates(t *testing.T) {
	f := newFixture(t)

	p1, err := f.m.AcquireShaderProgram("shaders/quad.vert.wgsl", "shaders/ray.frag.wgsl")
	if err != nil {
		t.Fatalf("AcquireShaderProgram() error = %v", err)
	}
	p2, err := f.m.AcquireShaderProgram("shaders/./quad.vert.wgsl", "shaders/ray.frag.wgsl")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 || f.builds != 1 {
		t.Fatalf("same sources built %d programs", f.builds)
	}
	p3, err := f.m.AcquireShaderProgram("shaders/ray.frag.wgsl", "shaders/quad.vert.wgsl")
	if err != nil {
		t.Fatal(err)
	}
	if p3 == p1 {
		t.Error("swapped stages shared a program")
	}
	if got := f.m.Committed().GPU; got != 2*programCode {
		t.Errorf("committed GPU = %d, want %d", got, 2*programCode)
	}

	f.m.ReleaseShaderProgram(p1)
	if p1.IsReleased() {
		t.Fatal("program destroyed while still in use")
	}
	f.m.ReleaseShaderProgram(p2)
	f.m.ReleaseShaderProgram(p3)
	if !p1.IsReleased() || !p3.IsReleased() {
		t.Error("programs not destroyed after the last release")
	}
	if got := f.rec.Live("shader"); got != 0 {
		t.Errorf("live shader modules = %d, want 0", got)
	}
}

func TestAcquireShaderProgramCompileError(t *testing.T) {
	f := newFixture(t)
	_, err := f.m.AcquireShaderProgram("quad.vert.wgsl", "bad.frag.wgsl")
	if !errors.Is(err, ErrCompile) || !errors.Is(err, gpu.ErrCompile) {
		t.Errorf("AcquireShaderProgram() error = %v, want ErrCompile", err)
	}
	if f.m.Stats().Counts[KindProgram] != 0 {
		t.Error("failed build registered a program")
	}
}

func TestOffscreenTargetsAreNotShared(t *testing.T) {
	f := newFixture(t)
	desc := gpu.TargetDescriptor{Width: 64, Height: 32, Format: gputypes.TextureFormatRGBA8Unorm, Buffers: 2}

	t1, err := f.m.AcquireOffscreenTarget(desc)
	if err != nil {
		t.Fatalf("AcquireOffscreenTarget() error = %v", err)
	}
	t2, err := f.m.AcquireOffscreenTarget(desc)
	if err != nil {
		t.Fatal(err)
	}
	if t1 == t2 {
		t.Fatal("identical descriptors shared a target")
	}
	if got := f.m.Committed().GPU; got != 2*t1.SizeBytes() {
		t.Errorf("committed GPU = %d, want %d", got, 2*t1.SizeBytes())
	}

	f.m.ReleaseOffscreenTarget(t1)
	f.m.ReleaseOffscreenTarget(t2)
	if !t1.IsReleased() || !t2.IsReleased() {
		t.Error("targets not destroyed on release")
	}
	if !f.m.Committed().IsZero() || f.rec.Live("") != 0 {
		t.Error("targets left memory behind")
	}

	f.m.ReleaseOffscreenTarget(t1)
	if f.lines("WARN", "unknown offscreen target") != 1 {
		t.Errorf("missing warning for stale release:\n%s", f.log)
	}

	if _, err := f.m.AcquireOffscreenTarget(gpu.TargetDescriptor{}); !errors.Is(err, ErrCreate) {
		t.Errorf("invalid descriptor error = %v, want ErrCreate", err)
	}
}

func TestReleaseStaleShaderProgram(t *testing.T) {
	f := newFixture(t)
	p, err := f.m.AcquireShaderProgram("quad.vert.wgsl", "ray.frag.wgsl")
	if err != nil {
		t.Fatal(err)
	}
	keep, err := f.m.AcquireShaderProgram("quad.vert.wgsl", "slice.frag.wgsl")
	if err != nil {
		t.Fatal(err)
	}
	f.m.ReleaseShaderProgram(p)
	before := f.m.Committed()

	f.m.ReleaseShaderProgram(p)
	foreign, err := f.m.Device().CreateProgramFromSPIRV("foreign", gputest.SPIRV(), gputest.SPIRV())
	if err != nil {
		t.Fatal(err)
	}
	f.m.ReleaseShaderProgram(foreign)

	if got := f.lines("WARN", "release of unknown shader program"); got != 2 {
		t.Errorf("unknown program warnings = %d, want 2:\n%s", got, f.log)
	}
	if got := f.m.Committed(); got != before {
		t.Errorf("committed = %v after stale releases, want %v", got, before)
	}
	if keep.IsReleased() {
		t.Error("stale release destroyed another program")
	}
	foreign.Close()
	f.m.ReleaseShaderProgram(keep)
}
