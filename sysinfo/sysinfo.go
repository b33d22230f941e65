// Package sysinfo reports the memory ceilings the resource manager must
// respect.
//
// A ceiling of zero means unlimited. Ceilings may change at run time. The
// host signals such changes to the manager, which then re-reads them.
package sysinfo

import (
	"github.com/gogpu/gpucontext"
)

// Info exposes the current usable memory ceilings in bytes.
type Info interface {
	MaxUsableCPUMem() uint64
	MaxUsableGPUMem() uint64
}

// Static reports fixed ceilings. Fields may be changed between calls.
type Static struct {
	CPU uint64
	GPU uint64
}

// MaxUsableCPUMem returns s.CPU.
func (s *Static) MaxUsableCPUMem() uint64 { return s.CPU }

// MaxUsableGPUMem returns s.GPU.
func (s *Static) MaxUsableGPUMem() uint64 { return s.GPU }

// Unlimited reports no ceilings.
var Unlimited Info = &Static{}

// DefaultCPUFraction is the share of physical memory Host allows by default.
const DefaultCPUFraction = 0.8

// Host derives ceilings from the machine's physical memory and the GPU
// adapter type.
type Host struct {
	// CPUFraction is the share of physical memory usable for CPU copies.
	CPUFraction float64

	// CPULimit overrides the derived CPU ceiling when non-zero.
	CPULimit uint64

	// GPULimit is the GPU ceiling. When zero, integrated and software
	// adapters get half of the CPU ceiling because they share system
	// memory, and discrete adapters are unlimited.
	GPULimit uint64

	// Adapter describes the GPU.
	Adapter gpucontext.AdapterInfo

	totalRAM func() uint64
}

// Detect returns a Host for the current machine and adapter.
func Detect(adapter gpucontext.AdapterInfo) *Host {
	return &Host{
		CPUFraction: DefaultCPUFraction,
		Adapter:     adapter,
		totalRAM:    physicalMemory,
	}
}

// TotalRAM returns the physical memory size, or 0 if unknown.
func (h *Host) TotalRAM() uint64 {
	if h.totalRAM == nil {
		return physicalMemory()
	}
	return h.totalRAM()
}

// MaxUsableCPUMem returns the CPU ceiling.
func (h *Host) MaxUsableCPUMem() uint64 {
	if h.CPULimit != 0 {
		return h.CPULimit
	}
	frac := h.CPUFraction
	if frac <= 0 || frac > 1 {
		frac = DefaultCPUFraction
	}
	return uint64(float64(h.TotalRAM()) * frac)
}

// MaxUsableGPUMem returns the GPU ceiling.
func (h *Host) MaxUsableGPUMem() uint64 {
	if h.GPULimit != 0 {
		return h.GPULimit
	}
	switch h.Adapter.Type {
	case gpucontext.AdapterTypeIntegrated, gpucontext.AdapterTypeSoftware:
		return h.MaxUsableCPUMem() / 2
	default:
		return 0
	}
}
