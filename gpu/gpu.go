// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package gpu wraps the wgpu HAL resources used by the volume renderer:
// textures of one, two or three dimensions, offscreen render targets and
// shader programs compiled from WGSL with naga.
//
// The package never creates a device on its own initiative. The host hands
// one in through NewDevice or FromProvider. OpenNoop opens the HAL noop
// backend for headless tools and tests.
//
// Resources are not safe for concurrent mutation. Upload and Close must be
// serialized by the caller, which in practice is the render thread.
package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// Device errors.
var (
	// ErrNilDevice is returned when a nil device or queue is supplied.
	ErrNilDevice = errors.New("gpu: nil device")

	// ErrUnsupportedDevice is returned when a DeviceProvider does not expose
	// HAL device and queue objects.
	ErrUnsupportedDevice = errors.New("gpu: provider does not expose a HAL device")

	// ErrNoAdapter is returned when the backend enumerates no adapters.
	ErrNoAdapter = errors.New("gpu: no adapter available")

	// ErrInvalidDimensions is returned for non-positive or oversized extents.
	ErrInvalidDimensions = errors.New("gpu: invalid dimensions")

	// ErrUnsupportedFormat is returned for formats without a known texel size.
	ErrUnsupportedFormat = errors.New("gpu: unsupported texture format")

	// ErrReleased is returned when operating on a released resource.
	ErrReleased = errors.New("gpu: resource has been released")

	// ErrSizeMismatch is returned when upload data does not cover the texture.
	ErrSizeMismatch = errors.New("gpu: data size does not match texture")
)

// DeviceAPI is the subset of hal.Device used by this package.
// Any hal.Device satisfies it.
type DeviceAPI interface {
	CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error)
	DestroyTexture(texture hal.Texture)
	CreateTextureView(texture hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error)
	DestroyTextureView(view hal.TextureView)
	CreateSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error)
	DestroySampler(sampler hal.Sampler)
	CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error)
	DestroyShaderModule(module hal.ShaderModule)
}

// QueueAPI is the subset of hal.Queue used by this package.
type QueueAPI interface {
	WriteTexture(dst *hal.ImageCopyTexture, data []byte, layout *hal.ImageDataLayout, size *hal.Extent3D) error
}

// Device bundles a HAL device and its queue together with adapter metadata.
type Device struct {
	raw   DeviceAPI
	queue QueueAPI
	info  gpucontext.AdapterInfo
}

// NewDevice wraps a HAL device and queue.
// The adapter type is reported as unknown.
func NewDevice(dev DeviceAPI, queue QueueAPI) (*Device, error) {
	if dev == nil || queue == nil {
		return nil, ErrNilDevice
	}
	return &Device{
		raw:   dev,
		queue: queue,
		info:  gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeUnknown},
	}, nil
}

// FromProvider extracts the HAL device and queue from a host-supplied
// DeviceProvider. The provider keeps ownership of the device.
func FromProvider(p gpucontext.DeviceProvider) (*Device, error) {
	if p == nil {
		return nil, ErrNilDevice
	}
	dev, ok := p.Device().(DeviceAPI)
	if !ok {
		return nil, fmt.Errorf("%w: device is %T", ErrUnsupportedDevice, p.Device())
	}
	queue, ok := p.Queue().(QueueAPI)
	if !ok {
		return nil, fmt.Errorf("%w: queue is %T", ErrUnsupportedDevice, p.Queue())
	}
	return &Device{raw: dev, queue: queue, info: p.AdapterInfo()}, nil
}

// OpenNoop opens a device on the HAL noop backend. Every resource call
// succeeds without touching real hardware. The returned cleanup function
// destroys the device and instance.
func OpenNoop() (*Device, func(), error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("gpu: create noop instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, ErrNoAdapter
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, nil, fmt.Errorf("gpu: open noop device: %w", err)
	}
	d := &Device{
		raw:   open.Device,
		queue: open.Queue,
		info:  gpucontext.AdapterInfo{Name: "noop", Type: gpucontext.AdapterTypeSoftware},
	}
	cleanup := func() {
		open.Device.Destroy()
		instance.Destroy()
	}
	return d, cleanup, nil
}

// AdapterInfo returns metadata about the adapter backing the device.
func (d *Device) AdapterInfo() gpucontext.AdapterInfo {
	return d.info
}

// Raw returns the wrapped HAL device.
func (d *Device) Raw() DeviceAPI {
	return d.raw
}
