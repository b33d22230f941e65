package render

import (
	"embed"
	"io/fs"
)

//go:embed shaders/*.wgsl
var shaderFiles embed.FS

// Shaders holds the WGSL sources referenced by the built-in strategies.
// Pass it to gpu.SourceLoader so the manager can build them:
//
//	gpumem.New(dev, gpumem.WithProgramLoader(gpu.SourceLoader{FS: render.Shaders}))
var Shaders fs.FS = shaderFiles

// Shader paths within Shaders.
const (
	VertexShader  = "shaders/quad.vert.wgsl"
	ComposeShader = "shaders/compose.frag.wgsl"
	Slice1DShader = "shaders/slice-1d.frag.wgsl"
	Slice2DShader = "shaders/slice-2d.frag.wgsl"
)
