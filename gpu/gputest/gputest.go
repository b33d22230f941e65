// Package gputest provides a recording HAL device for tests.
//
// Unlike the noop backend, every resource it returns has a distinct
// identity, and the device keeps count of live resources so tests can
// assert that everything created was destroyed.
package gputest

import (
	"errors"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/volren/gpu"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("gputest: injected failure")

// resource implements every HAL resource interface the gpu package uses.
type resource struct {
	id   uint64
	kind string
}

func (r *resource) Destroy()                             {}
func (r *resource) NativeHandle() uintptr                { return uintptr(r.id) }
func (r *resource) CurrentUsage() gputypes.TextureUsage { return 0 }
func (r *resource) AddPendingRef()                       {}
func (r *resource) DecPendingRef()                       {}

// Device is a recording implementation of gpu.DeviceAPI and gpu.QueueAPI.
type Device struct {
	mu     sync.Mutex
	nextID uint64
	live   map[*resource]struct{}

	// Writes is the total number of bytes passed to WriteTexture.
	Writes uint64

	// FailTextures makes CreateTexture fail.
	FailTextures bool
	// FailShaders makes CreateShaderModule fail.
	FailShaders bool
	// FailWrites makes WriteTexture fail.
	FailWrites bool
}

// New returns a gpu.Device backed by a fresh recording device.
func New() (*gpu.Device, *Device) {
	rec := &Device{live: make(map[*resource]struct{})}
	dev, err := gpu.NewDevice(rec, rec)
	if err != nil {
		panic(err)
	}
	return dev, rec
}

func (d *Device) create(kind string) *resource {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	r := &resource{id: d.nextID, kind: kind}
	d.live[r] = struct{}{}
	return r
}

func (d *Device) destroy(v any) {
	r, ok := v.(*resource)
	if !ok {
		return
	}
	d.mu.Lock()
	delete(d.live, r)
	d.mu.Unlock()
}

// Live returns the number of resources of the given kind that were created
// and not destroyed. Kinds are "texture", "view", "sampler" and "shader".
// An empty kind counts everything.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for r := range d.live {
		if kind == "" || r.kind == kind {
			n++
		}
	}
	return n
}

func (d *Device) CreateTexture(*hal.TextureDescriptor) (hal.Texture, error) {
	if d.FailTextures {
		return nil, ErrInjected
	}
	return d.create("texture"), nil
}

func (d *Device) DestroyTexture(t hal.Texture) { d.destroy(t) }

func (d *Device) CreateTextureView(hal.Texture, *hal.TextureViewDescriptor) (hal.TextureView, error) {
	return d.create("view"), nil
}

func (d *Device) DestroyTextureView(v hal.TextureView) { d.destroy(v) }

func (d *Device) CreateSampler(*hal.SamplerDescriptor) (hal.Sampler, error) {
	return d.create("sampler"), nil
}

func (d *Device) DestroySampler(s hal.Sampler) { d.destroy(s) }

func (d *Device) CreateShaderModule(*hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	if d.FailShaders {
		return nil, ErrInjected
	}
	return d.create("shader"), nil
}

func (d *Device) DestroyShaderModule(m hal.ShaderModule) { d.destroy(m) }

func (d *Device) WriteTexture(_ *hal.ImageCopyTexture, data []byte, _ *hal.ImageDataLayout, _ *hal.Extent3D) error {
	if d.FailWrites {
		return ErrInjected
	}
	d.mu.Lock()
	d.Writes += uint64(len(data))
	d.mu.Unlock()
	return nil
}

// SPIRV returns a minimal word sequence accepted by the recording device.
func SPIRV() []uint32 {
	return []uint32{0x07230203, 0x00010000, 0, 1, 0}
}
