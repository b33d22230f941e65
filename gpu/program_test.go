package gpu_test

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/gogpu/volren/gpu"
	"github.com/gogpu/volren/gpu/gputest"
)

const testVertexWGSL = `
@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(f32(idx), 0.0, 0.0, 1.0);
}
`

const testFragmentWGSL = `
@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 0.0, 1.0);
}
`

func TestCompileWGSL(t *testing.T) {
	code, err := gpu.CompileWGSL(testFragmentWGSL)
	if err != nil {
		t.Fatalf("CompileWGSL() error = %v", err)
	}
	if len(code) == 0 {
		t.Fatal("CompileWGSL() returned no words")
	}
	if code[0] != 0x07230203 {
		t.Errorf("CompileWGSL() first word = %#x, want SPIR-V magic", code[0])
	}

	if _, err := gpu.CompileWGSL("fn broken("); !errors.Is(err, gpu.ErrCompile) {
		t.Errorf("CompileWGSL(invalid) error = %v, want ErrCompile", err)
	}
}

func TestSourceLoader(t *testing.T) {
	dev, rec := gputest.New()
	loader := gpu.SourceLoader{FS: fstest.MapFS{
		"quad.vert.wgsl": {Data: []byte(testVertexWGSL)},
		"red.frag.wgsl":  {Data: []byte(testFragmentWGSL)},
		"bad.frag.wgsl":  {Data: []byte("fn broken(")},
	}}

	p, err := loader.Load(dev, "quad.vert.wgsl", "red.frag.wgsl")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.SourceBytes() != uint64(len(testVertexWGSL)+len(testFragmentWGSL)) {
		t.Errorf("SourceBytes() = %d", p.SourceBytes())
	}
	if p.CodeBytes() == 0 {
		t.Error("CodeBytes() = 0")
	}
	if n := rec.Live("shader"); n != 2 {
		t.Errorf("Live(shader) = %d, want 2", n)
	}
	p.Close()
	p.Close()
	if n := rec.Live("shader"); n != 0 {
		t.Errorf("Live(shader) = %d after Close, want 0", n)
	}

	if _, err := loader.Load(dev, "quad.vert.wgsl", "bad.frag.wgsl"); !errors.Is(err, gpu.ErrCompile) {
		t.Errorf("Load(bad) error = %v, want ErrCompile", err)
	}
	if _, err := loader.Load(dev, "missing.wgsl", "red.frag.wgsl"); err == nil {
		t.Error("Load(missing) should fail")
	}
}

func TestCreateProgramFromSPIRVFailure(t *testing.T) {
	dev, rec := gputest.New()
	rec.FailShaders = true
	if _, err := dev.CreateProgramFromSPIRV("p", gputest.SPIRV(), gputest.SPIRV()); !errors.Is(err, gputest.ErrInjected) {
		t.Errorf("CreateProgramFromSPIRV() error = %v, want ErrInjected", err)
	}
	if n := rec.Live(""); n != 0 {
		t.Errorf("Live() = %d, want 0", n)
	}
}
