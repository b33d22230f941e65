// Package render draws volume datasets progressively through a shared
// resource manager.
//
// A Context is one view of a dataset. It owns its transient GPU state (two
// offscreen frame buffers, a 1D and a 2D transfer function, the shader
// programs of its strategy and any overlay images) and obtains all of it from
// a gpumem.Manager, so several contexts showing the same data share one copy
// of every dataset, brick, image and program.
//
// # Strategies
//
// How bricks are drawn is delegated to a Strategy:
//
//   - SliceStrategy ("sbvr"): view-aligned slices, bricks back to front
//   - RayCastStrategy ("raycast"): single-pass ray marching, front to back
//
// Strategies are registered by name; NewStrategy("") returns the preferred
// one.
//
// # Progressive Rendering
//
// A full redraw starts at the coarsest level of detail. Each Paint renders
// the next finer level into the current buffer, swaps the buffers and hands
// the result to the Presenter. The frame is complete after level 0. Editing
// a transfer function restarts refinement but keeps the last presented
// image until the new coarse pass replaces it.
//
//	ctx := render.New(mm, render.NewRayCastStrategy(), render.WithViewport(800, 600))
//	if err := ctx.Initialize(); err != nil {
//	    return err
//	}
//	defer ctx.Release()
//	if err := ctx.LoadDataset("head.brk"); err != nil {
//	    return err
//	}
//	for ctx.CheckForRedraw() {
//	    if err := ctx.Paint(); err != nil {
//	        return err
//	    }
//	}
//
// # Slices
//
// PaintSlice shows one axis-aligned plane of the finest level instead of
// the volume. It acquires only the bricks the plane crosses and leaves
// progressive refinement where it was.
//
// # Thread Safety
//
// Contexts are NOT thread-safe and share the manager's single-thread
// contract. Drive every context of a manager from one goroutine.
package render
