// Package volren is a GPU resource broker and render front end for
// interactive volume rendering of large multi-resolution datasets.
//
// # Overview
//
// A volume renderer draws bricks of a level-of-detail pyramid into offscreen
// targets, blends them through transfer functions and presents the result.
// Many renderers may show the same dataset at once, so the expensive GPU
// resources they need (brick textures, transfer-function textures, images,
// offscreen targets, shader programs) are brokered by a single resource
// manager that deduplicates requests, tracks owners and reclaims memory when
// the last owner lets go or when the memory budget is exceeded.
//
// # Packages
//
//   - gpumem: the resource manager and its memory budget
//   - render: the per-view render context and drawing strategies
//   - volume: dataset proxies and the BRK brick file format
//   - transfer: 1D and 2D transfer functions
//   - gpu: texture, target and shader wrappers over wgpu/hal
//   - imageio, sysinfo, config: collaborators and configuration
//
// # Quick Start
//
//	dev, cleanup, err := gpu.OpenNoop()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
//
//	mm := gpumem.New(dev, gpumem.WithSystemInfo(sysinfo.Detect(dev.AdapterInfo())))
//	defer mm.Close()
//
//	rc := render.New(mm, render.NewRayCastStrategy())
//	if err := rc.Initialize(); err != nil {
//	    log.Fatal(err)
//	}
//	defer rc.Release()
//
//	if err := rc.LoadDataset("head.brk"); err != nil {
//	    log.Fatal(err)
//	}
//	for !rc.Complete() {
//	    if err := rc.Paint(); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Logging
//
// volren is silent by default. Call SetLogger to route diagnostics to a
// [log/slog] handler, or inject a logger into individual components.
package volren

// Version information
const (
	// Version is the current version of the library
	Version = "0.3.0"
)
