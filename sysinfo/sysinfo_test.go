package sysinfo

import (
	"runtime"
	"testing"

	"github.com/gogpu/gpucontext"
)

func TestStatic(t *testing.T) {
	s := &Static{CPU: 10, GPU: 20}
	if s.MaxUsableCPUMem() != 10 || s.MaxUsableGPUMem() != 20 {
		t.Errorf("Static = %d/%d, want 10/20", s.MaxUsableCPUMem(), s.MaxUsableGPUMem())
	}
	s.GPU = 5
	if s.MaxUsableGPUMem() != 5 {
		t.Errorf("MaxUsableGPUMem() = %d after change, want 5", s.MaxUsableGPUMem())
	}
	if Unlimited.MaxUsableCPUMem() != 0 || Unlimited.MaxUsableGPUMem() != 0 {
		t.Error("Unlimited should report zero ceilings")
	}
}

func TestHostCeilings(t *testing.T) {
	const ram = 16 << 30

	tests := []struct {
		name    string
		host    Host
		wantCPU uint64
		wantGPU uint64
	}{
		{
			name:    "discrete unlimited gpu",
			host:    Host{CPUFraction: 0.5, Adapter: gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeDiscrete}},
			wantCPU: 8 << 30,
			wantGPU: 0,
		},
		{
			name:    "integrated shares memory",
			host:    Host{CPUFraction: 0.5, Adapter: gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeIntegrated}},
			wantCPU: 8 << 30,
			wantGPU: 4 << 30,
		},
		{
			name:    "explicit limits",
			host:    Host{CPULimit: 1 << 30, GPULimit: 2 << 30},
			wantCPU: 1 << 30,
			wantGPU: 2 << 30,
		},
		{
			name:    "invalid fraction uses default",
			host:    Host{CPUFraction: 3},
			wantCPU: 13743895347, // 16GiB * 0.8, truncated
			wantGPU: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.host
			h.totalRAM = func() uint64 { return ram }
			if got := h.MaxUsableCPUMem(); got != tt.wantCPU {
				t.Errorf("MaxUsableCPUMem() = %d, want %d", got, tt.wantCPU)
			}
			if got := h.MaxUsableGPUMem(); got != tt.wantGPU {
				t.Errorf("MaxUsableGPUMem() = %d, want %d", got, tt.wantGPU)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	h := Detect(gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeDiscrete})
	if h.CPUFraction != DefaultCPUFraction {
		t.Errorf("CPUFraction = %v, want %v", h.CPUFraction, DefaultCPUFraction)
	}
	if runtime.GOOS == "linux" && h.TotalRAM() == 0 {
		t.Error("TotalRAM() = 0 on linux")
	}
}
