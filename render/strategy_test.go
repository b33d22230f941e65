package render

import (
	"errors"
	"slices"
	"testing"
	"testing/fstest"

	"github.com/gogpu/volren/gpu"
	"github.com/gogpu/volren/gpu/gputest"
	"github.com/gogpu/volren/volume"
)

func TestNewStrategy(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"", "raycast"},
		{"raycast", "raycast"},
		{"sbvr", "sbvr"},
	}
	for _, tt := range tests {
		s, err := NewStrategy(tt.name)
		if err != nil {
			t.Fatalf("NewStrategy(%q) error = %v", tt.name, err)
		}
		if s.Name() != tt.want {
			t.Errorf("NewStrategy(%q).Name() = %q, want %q", tt.name, s.Name(), tt.want)
		}
	}

	if _, err := NewStrategy("shear-warp"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("NewStrategy(unknown) error = %v, want ErrUnknownStrategy", err)
	}
	if got := Strategies(); !slices.Equal(got, []string{"raycast", "sbvr"}) {
		t.Errorf("Strategies() = %v", got)
	}

	a, _ := NewStrategy("sbvr")
	b, _ := NewStrategy("sbvr")
	if a == b {
		t.Error("NewStrategy() returned a shared instance")
	}
}

func TestStrategyOrder(t *testing.T) {
	ds, err := volume.Sphere("sphere", volume.Coord{X: 16, Y: 16, Z: 16}, volume.Coord{X: 8, Y: 8, Z: 8})
	if err != nil {
		t.Fatal(err)
	}
	keys := volume.Bricks(ds, 0)

	front := NewRayCastStrategy().Order(ds, 0, keys, DefaultView)
	back := NewSliceStrategy().Order(ds, 0, keys, DefaultView)
	if len(front) != len(keys) || len(back) != len(keys) {
		t.Fatal("Order() changed the number of bricks")
	}
	for i := 0; i < 4; i++ {
		if front[i].Brick.Z != 0 {
			t.Errorf("ray cast order[%d] = %v, want a brick on the near face", i, front[i])
		}
		if back[i].Brick.Z != 1 {
			t.Errorf("slice order[%d] = %v, want a brick on the far face", i, back[i])
		}
	}
	if !slices.Equal(keys, volume.Bricks(ds, 0)) {
		t.Error("Order() modified its input")
	}
}

func TestStrategySamples(t *testing.T) {
	b := Brick{Extent: volume.Coord{X: 8, Y: 8, Z: 4}}
	prog := &gpu.Program{}

	p := &Pass{Program: prog}
	s := NewSliceStrategy()
	if err := s.PreLoop(p); err != nil {
		t.Fatal(err)
	}
	_ = s.InLoop(p, b)
	if p.Samples != 8 || p.Drawn != 1 {
		t.Errorf("slice pass = %d samples %d drawn, want 8 and 1", p.Samples, p.Drawn)
	}

	p = &Pass{Program: prog}
	r := NewRayCastStrategy()
	r.SampleRate = 2
	if err := r.PreLoop(p); err != nil {
		t.Fatal(err)
	}
	_ = r.InLoop(p, b)
	if p.Samples != 24 {
		t.Errorf("ray cast samples = %d, want 24", p.Samples)
	}

	if err := s.PreLoop(&Pass{}); !errors.Is(err, ErrNoProgram) {
		t.Errorf("PreLoop() without program error = %v, want ErrNoProgram", err)
	}
}

func TestShadersCompile(t *testing.T) {
	dev, _ := gputest.New()
	loader := gpu.SourceLoader{FS: Shaders}

	seen := map[string]bool{}
	build := func(src ProgramSource) {
		t.Helper()
		if seen[src.Fragment] {
			return
		}
		seen[src.Fragment] = true
		p, err := loader.Load(dev, src.Vertex, src.Fragment)
		if err != nil {
			t.Errorf("Load(%s) error = %v", src.Fragment, err)
			return
		}
		p.Close()
	}
	for _, name := range Strategies() {
		s, _ := NewStrategy(name)
		for _, src := range s.Programs() {
			build(src)
		}
	}
	for _, src := range SharedPrograms() {
		build(src)
	}
	// Five volume roles per strategy, compose and two slice programs.
	if len(seen) != 13 {
		t.Errorf("compiled %d fragment shaders, want 13", len(seen))
	}
}

func TestShaderSetPaths(t *testing.T) {
	fsys := fstest.MapFS{}
	for _, r := range VolumeRoles {
		fsys["shaders/sbvr-"+r.String()+".frag.wgsl"] = &fstest.MapFile{}
	}
	progs := NewSliceStrategy().Programs()
	if len(progs) != len(VolumeRoles) {
		t.Errorf("Programs() has %d roles, want %d", len(progs), len(VolumeRoles))
	}
	for r, src := range progs {
		if _, ok := fsys[src.Fragment]; !ok {
			t.Errorf("role %v uses %q", r, src.Fragment)
		}
		if src.Vertex != VertexShader {
			t.Errorf("role %v vertex = %q", r, src.Vertex)
		}
	}
	if got := RenderMode(7).String(); got != "RenderMode(7)" {
		t.Errorf("String() = %q", got)
	}
	if got := ProgramRole(9).String(); got != "ProgramRole(9)" {
		t.Errorf("String() = %q", got)
	}
}

func TestVolumeRole(t *testing.T) {
	tests := []struct {
		mode  RenderMode
		lit   bool
		want  ProgramRole
		slice ProgramRole
	}{
		{Mode1D, false, ProgramTF1D, ProgramSlice1D},
		{Mode1D, true, ProgramTF1DLit, ProgramSlice1D},
		{Mode2D, false, ProgramTF2D, ProgramSlice2D},
		{Mode2D, true, ProgramTF2DLit, ProgramSlice2D},
		{ModeIso, false, ProgramIso, ProgramSlice1D},
		{ModeIso, true, ProgramIso, ProgramSlice1D},
	}
	for _, tt := range tests {
		if got := volumeRole(tt.mode, tt.lit); got != tt.want {
			t.Errorf("volumeRole(%v, %v) = %v, want %v", tt.mode, tt.lit, got, tt.want)
		}
		if got := sliceRole(tt.mode); got != tt.slice {
			t.Errorf("sliceRole(%v) = %v, want %v", tt.mode, got, tt.slice)
		}
	}
}
