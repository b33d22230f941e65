// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpu

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DepthFormat is the format of the optional depth attachment of a Target.
const DepthFormat = gputypes.TextureFormatDepth24Plus

// TargetDescriptor describes an offscreen render target.
type TargetDescriptor struct {
	// Label is an optional debug label.
	Label string

	// MinFilter and MagFilter configure the sampler used when the target is
	// read back as a texture. Zero means nearest.
	MinFilter, MagFilter gputypes.FilterMode

	// Wrap is the address mode on all axes. Zero means clamp to edge.
	Wrap gputypes.AddressMode

	// Width and Height are the target size in pixels.
	Width, Height int

	// Format is the color format.
	Format gputypes.TextureFormat

	// BitsPerElement is the size of one color element used for memory
	// accounting. Zero means the texel size of Format.
	BitsPerElement int

	// Depth requests a depth attachment.
	Depth bool

	// Buffers is the number of color buffers. Zero means one.
	Buffers int
}

// Target is an offscreen render destination: one or more color buffers,
// an optional depth buffer and a sampler for reading the result.
type Target struct {
	dev     *Device
	desc    TargetDescriptor
	color   []*Texture
	depth   *Texture
	sampler hal.Sampler

	sizeBytes uint64
	released  atomic.Bool
}

// CreateTarget allocates an offscreen target. Partially created resources
// are destroyed on failure.
func (d *Device) CreateTarget(desc TargetDescriptor) (*Target, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("%w: target %dx%d", ErrInvalidDimensions, desc.Width, desc.Height)
	}
	if desc.Buffers <= 0 {
		desc.Buffers = 1
	}
	if desc.MinFilter == 0 {
		desc.MinFilter = gputypes.FilterModeNearest
	}
	if desc.MagFilter == 0 {
		desc.MagFilter = gputypes.FilterModeNearest
	}
	if desc.Wrap == 0 {
		desc.Wrap = gputypes.AddressModeClampToEdge
	}
	if desc.BitsPerElement <= 0 {
		texel, err := BytesPerTexel(desc.Format)
		if err != nil {
			return nil, err
		}
		desc.BitsPerElement = texel * 8
	}

	t := &Target{dev: d, desc: desc}
	usage := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc
	for i := 0; i < desc.Buffers; i++ {
		tex, err := d.CreateTexture(TextureDescriptor{
			Label:     fmt.Sprintf("%s/color%d", desc.Label, i),
			Dimension: gputypes.TextureDimension2D,
			Width:     desc.Width,
			Height:    desc.Height,
			Format:    desc.Format,
			Usage:     usage,
		})
		if err != nil {
			t.destroy()
			return nil, err
		}
		t.color = append(t.color, tex)
	}
	if desc.Depth {
		tex, err := d.CreateTexture(TextureDescriptor{
			Label:     desc.Label + "/depth",
			Dimension: gputypes.TextureDimension2D,
			Width:     desc.Width,
			Height:    desc.Height,
			Format:    DepthFormat,
			Usage:     gputypes.TextureUsageRenderAttachment,
		})
		if err != nil {
			t.destroy()
			return nil, err
		}
		t.depth = tex
	}
	sampler, err := d.raw.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: desc.Wrap,
		AddressModeV: desc.Wrap,
		AddressModeW: desc.Wrap,
		MagFilter:    desc.MagFilter,
		MinFilter:    desc.MinFilter,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
		Anisotropy:   1,
	})
	if err != nil {
		t.destroy()
		return nil, fmt.Errorf("gpu: create sampler %q: %w", desc.Label, err)
	}
	t.sampler = sampler

	pixels := uint64(desc.Width) * uint64(desc.Height)
	t.sizeBytes = pixels * uint64(desc.BitsPerElement) / 8 * uint64(desc.Buffers)
	if desc.Depth {
		t.sizeBytes += t.depth.SizeBytes()
	}
	return t, nil
}

// Descriptor returns the descriptor the target was created with, with
// defaults filled in.
func (t *Target) Descriptor() TargetDescriptor { return t.desc }

// Width returns the target width in pixels.
func (t *Target) Width() int { return t.desc.Width }

// Height returns the target height in pixels.
func (t *Target) Height() int { return t.desc.Height }

// Format returns the color format.
func (t *Target) Format() gputypes.TextureFormat { return t.desc.Format }

// Buffer returns color buffer i.
func (t *Target) Buffer(i int) *Texture { return t.color[i] }

// BufferCount returns the number of color buffers.
func (t *Target) BufferCount() int { return len(t.color) }

// DepthBuffer returns the depth attachment, or nil.
func (t *Target) DepthBuffer() *Texture { return t.depth }

// Sampler returns the sampler for reading the color buffers.
func (t *Target) Sampler() hal.Sampler { return t.sampler }

// SizeBytes returns the GPU memory accounted to the target.
func (t *Target) SizeBytes() uint64 { return t.sizeBytes }

// IsReleased reports whether Close has been called.
func (t *Target) IsReleased() bool { return t.released.Load() }

// Close destroys all buffers and the sampler. Calling Close more than once
// is a no-op.
func (t *Target) Close() {
	if t.released.Swap(true) {
		return
	}
	t.destroy()
}

func (t *Target) destroy() {
	for _, c := range t.color {
		c.Close()
	}
	if t.depth != nil {
		t.depth.Close()
	}
	if t.sampler != nil {
		t.dev.raw.DestroySampler(t.sampler)
		t.sampler = nil
	}
}

// String returns a string representation of the target.
func (t *Target) String() string {
	status := "active"
	if t.released.Load() {
		status = "released"
	}
	return fmt.Sprintf("Target[%s %dx%d %v x%d depth=%t %d bytes %s]",
		t.desc.Label, t.desc.Width, t.desc.Height, t.desc.Format, len(t.color), t.desc.Depth, t.sizeBytes, status)
}
