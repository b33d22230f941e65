// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpu

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DefaultTextureUsage is applied when a descriptor leaves Usage empty.
const DefaultTextureUsage = gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding

// TextureDescriptor describes a texture to create.
type TextureDescriptor struct {
	// Label is an optional debug label.
	Label string

	// Dimension selects a 1D, 2D or 3D texture.
	Dimension gputypes.TextureDimension

	// Width, Height and Depth are the extent in texels. Height and Depth
	// are forced to 1 where the dimension does not use them.
	Width, Height, Depth int

	// Format is the texel format.
	Format gputypes.TextureFormat

	// Usage flags. Zero means DefaultTextureUsage.
	Usage gputypes.TextureUsage
}

// Texture is a GPU texture with a default view.
type Texture struct {
	dev  *Device
	raw  hal.Texture
	view hal.TextureView

	dim           gputypes.TextureDimension
	width, height int
	depth         int
	format        gputypes.TextureFormat
	texel         int
	sizeBytes     uint64
	label         string

	released atomic.Bool
}

// CreateTexture allocates a texture on the device. Its contents are
// undefined until Upload is called.
func (d *Device) CreateTexture(desc TextureDescriptor) (*Texture, error) {
	w, h, depth := desc.Width, desc.Height, desc.Depth
	viewDim := gputypes.TextureViewDimension2D
	switch desc.Dimension {
	case gputypes.TextureDimension1D:
		h, depth = 1, 1
		viewDim = gputypes.TextureViewDimension1D
	case gputypes.TextureDimension2D:
		depth = 1
	case gputypes.TextureDimension3D:
		viewDim = gputypes.TextureViewDimension3D
	default:
		return nil, fmt.Errorf("%w: dimension %d", ErrInvalidDimensions, desc.Dimension)
	}
	if w <= 0 || h <= 0 || depth <= 0 {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrInvalidDimensions, w, h, depth)
	}
	texel, err := BytesPerTexel(desc.Format)
	if err != nil {
		return nil, err
	}
	usage := desc.Usage
	if usage == 0 {
		usage = DefaultTextureUsage
	}

	//nolint:gosec // G115: dimensions are validated positive
	raw, err := d.raw.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: uint32(depth)},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     desc.Dimension,
		Format:        desc.Format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create texture %q: %w", desc.Label, err)
	}
	view, err := d.raw.CreateTextureView(raw, &hal.TextureViewDescriptor{
		Label:     desc.Label,
		Format:    desc.Format,
		Dimension: viewDim,
		Aspect:    gputypes.TextureAspectAll,
	})
	if err != nil {
		d.raw.DestroyTexture(raw)
		return nil, fmt.Errorf("gpu: create texture view %q: %w", desc.Label, err)
	}

	return &Texture{
		dev:       d,
		raw:       raw,
		view:      view,
		dim:       desc.Dimension,
		width:     w,
		height:    h,
		depth:     depth,
		format:    desc.Format,
		texel:     texel,
		sizeBytes: uint64(w) * uint64(h) * uint64(depth) * uint64(texel),
		label:     desc.Label,
	}, nil
}

// Upload replaces the whole texture with data, which must hold exactly
// Width*Height*Depth texels, tightly packed.
func (t *Texture) Upload(data []byte) error {
	if t.released.Load() {
		return ErrReleased
	}
	if uint64(len(data)) != t.sizeBytes {
		return fmt.Errorf("%w: texture %q holds %d bytes, got %d", ErrSizeMismatch, t.label, t.sizeBytes, len(data))
	}
	//nolint:gosec // G115: dimensions are validated positive at creation
	err := t.dev.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.raw, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{
			BytesPerRow:  uint32(t.width * t.texel),
			RowsPerImage: uint32(t.height),
		},
		&hal.Extent3D{Width: uint32(t.width), Height: uint32(t.height), DepthOrArrayLayers: uint32(t.depth)},
	)
	if err != nil {
		return fmt.Errorf("gpu: upload texture %q: %w", t.label, err)
	}
	return nil
}

// Dimension returns the texture dimension.
func (t *Texture) Dimension() gputypes.TextureDimension { return t.dim }

// Width returns the width in texels.
func (t *Texture) Width() int { return t.width }

// Height returns the height in texels.
func (t *Texture) Height() int { return t.height }

// Depth returns the depth in texels.
func (t *Texture) Depth() int { return t.depth }

// Format returns the texel format.
func (t *Texture) Format() gputypes.TextureFormat { return t.format }

// SizeBytes returns the GPU memory occupied by the texture.
func (t *Texture) SizeBytes() uint64 { return t.sizeBytes }

// Label returns the debug label.
func (t *Texture) Label() string { return t.label }

// View returns the default texture view.
func (t *Texture) View() hal.TextureView { return t.view }

// IsReleased reports whether Close has been called.
func (t *Texture) IsReleased() bool { return t.released.Load() }

// Close destroys the texture and its view. Calling Close more than once
// is a no-op.
func (t *Texture) Close() {
	if t.released.Swap(true) {
		return
	}
	t.dev.raw.DestroyTextureView(t.view)
	t.dev.raw.DestroyTexture(t.raw)
	t.view = nil
	t.raw = nil
}

// String returns a string representation of the texture.
func (t *Texture) String() string {
	status := "active"
	if t.released.Load() {
		status = "released"
	}
	return fmt.Sprintf("Texture[%s %dx%dx%d %v %d bytes %s]",
		t.label, t.width, t.height, t.depth, t.format, t.sizeBytes, status)
}
