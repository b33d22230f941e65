package render

import "fmt"

// ProgramRole names one of the shader programs a context draws with.
type ProgramRole uint8

const (
	// ProgramTF1D classifies through the 1D transfer function, unlit.
	ProgramTF1D ProgramRole = iota
	// ProgramTF1DLit classifies through the 1D transfer function and
	// shades with the local gradient.
	ProgramTF1DLit
	// ProgramTF2D classifies through the 2D transfer function, unlit.
	ProgramTF2D
	// ProgramTF2DLit classifies through the 2D transfer function and
	// shades with the local gradient.
	ProgramTF2DLit
	// ProgramIso draws the iso surface.
	ProgramIso
	// ProgramCompose blends the frame buffer over the background and
	// stamps the overlays.
	ProgramCompose
	// ProgramSlice1D draws an axis-aligned slice through the 1D transfer
	// function.
	ProgramSlice1D
	// ProgramSlice2D draws an axis-aligned slice through the 2D transfer
	// function.
	ProgramSlice2D
)

var roleNames = [...]string{
	ProgramTF1D:    "1d",
	ProgramTF1DLit: "1d-lit",
	ProgramTF2D:    "2d",
	ProgramTF2DLit: "2d-lit",
	ProgramIso:     "iso",
	ProgramCompose: "compose",
	ProgramSlice1D: "slice-1d",
	ProgramSlice2D: "slice-2d",
}

func (r ProgramRole) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("ProgramRole(%d)", r)
}

// VolumeRoles are the roles every Strategy supplies programs for.
var VolumeRoles = []ProgramRole{ProgramTF1D, ProgramTF1DLit, ProgramTF2D, ProgramTF2DLit, ProgramIso}

// sharedRoles are drawn the same way by every strategy.
var sharedRoles = []ProgramRole{ProgramCompose, ProgramSlice1D, ProgramSlice2D}

// SharedPrograms returns the sources of the programs a context acquires
// in addition to those of its strategy.
func SharedPrograms() map[ProgramRole]ProgramSource {
	return map[ProgramRole]ProgramSource{
		ProgramCompose: {Vertex: VertexShader, Fragment: ComposeShader},
		ProgramSlice1D: {Vertex: VertexShader, Fragment: Slice1DShader},
		ProgramSlice2D: {Vertex: VertexShader, Fragment: Slice2DShader},
	}
}

// volumeRole selects the program for a volume pass.
func volumeRole(m RenderMode, lit bool) ProgramRole {
	switch {
	case m == Mode2D && lit:
		return ProgramTF2DLit
	case m == Mode2D:
		return ProgramTF2D
	case m == ModeIso:
		return ProgramIso
	case lit:
		return ProgramTF1DLit
	default:
		return ProgramTF1D
	}
}

// sliceRole selects the program for a slice view. Iso mode shows slices
// through the 1D transfer function.
func sliceRole(m RenderMode) ProgramRole {
	if m == Mode2D {
		return ProgramSlice2D
	}
	return ProgramSlice1D
}
