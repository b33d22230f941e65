package gpu_test

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/volren/gpu"
	"github.com/gogpu/volren/gpu/gputest"
)

func TestNewDeviceNil(t *testing.T) {
	if _, err := gpu.NewDevice(nil, nil); !errors.Is(err, gpu.ErrNilDevice) {
		t.Errorf("NewDevice(nil, nil) error = %v, want ErrNilDevice", err)
	}
}

func TestOpenNoop(t *testing.T) {
	dev, cleanup, err := gpu.OpenNoop()
	if err != nil {
		t.Fatalf("OpenNoop() error = %v", err)
	}
	defer cleanup()

	if got := dev.AdapterInfo().Type; got != gpucontext.AdapterTypeSoftware {
		t.Errorf("AdapterInfo().Type = %v, want software", got)
	}
	tex, err := dev.CreateTexture(gpu.TextureDescriptor{
		Label:     "noop",
		Dimension: gputypes.TextureDimension3D,
		Width:     8, Height: 8, Depth: 8,
		Format: gputypes.TextureFormatR8Unorm,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	if err := tex.Upload(make([]byte, 512)); err != nil {
		t.Errorf("Upload() error = %v", err)
	}
	tex.Close()
}

type fakeProvider struct {
	dev, queue any
}

func (p fakeProvider) Device() gpucontext.Device               { return p.dev }
func (p fakeProvider) Queue() gpucontext.Queue                 { return p.queue }
func (p fakeProvider) SurfaceFormat() gputypes.TextureFormat   { return gputypes.TextureFormatBGRA8Unorm }
func (p fakeProvider) Adapter() gpucontext.Adapter             { return nil }
func (p fakeProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "fake", Type: gpucontext.AdapterTypeIntegrated}
}

func TestFromProvider(t *testing.T) {
	_, rec := gputest.New()

	dev, err := gpu.FromProvider(fakeProvider{dev: rec, queue: rec})
	if err != nil {
		t.Fatalf("FromProvider() error = %v", err)
	}
	if got := dev.AdapterInfo().Name; got != "fake" {
		t.Errorf("AdapterInfo().Name = %q, want fake", got)
	}

	_, err = gpu.FromProvider(fakeProvider{dev: "not a device", queue: rec})
	if !errors.Is(err, gpu.ErrUnsupportedDevice) {
		t.Errorf("FromProvider(bad device) error = %v, want ErrUnsupportedDevice", err)
	}
	_, err = gpu.FromProvider(fakeProvider{dev: rec, queue: 42})
	if !errors.Is(err, gpu.ErrUnsupportedDevice) {
		t.Errorf("FromProvider(bad queue) error = %v, want ErrUnsupportedDevice", err)
	}
}

func TestBytesPerTexel(t *testing.T) {
	tests := []struct {
		format gputypes.TextureFormat
		want   int
	}{
		{gputypes.TextureFormatR8Unorm, 1},
		{gputypes.TextureFormatR16Unorm, 2},
		{gputypes.TextureFormatRGBA8Unorm, 4},
		{gputypes.TextureFormatRGBA16Float, 8},
		{gputypes.TextureFormatRGBA32Float, 16},
	}
	for _, tt := range tests {
		got, err := gpu.BytesPerTexel(tt.format)
		if err != nil || got != tt.want {
			t.Errorf("BytesPerTexel(%v) = %d, %v, want %d", tt.format, got, err, tt.want)
		}
	}
	if _, err := gpu.BytesPerTexel(gputypes.TextureFormatUndefined); !errors.Is(err, gpu.ErrUnsupportedFormat) {
		t.Errorf("BytesPerTexel(undefined) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestFormatForBits(t *testing.T) {
	tests := []struct {
		bits int
		want gputypes.TextureFormat
	}{
		{8, gputypes.TextureFormatRGBA8Unorm},
		{16, gputypes.TextureFormatRGBA16Float},
		{32, gputypes.TextureFormatRGBA32Float},
	}
	for _, tt := range tests {
		got, err := gpu.FormatForBits(tt.bits)
		if err != nil || got != tt.want {
			t.Errorf("FormatForBits(%d) = %v, %v, want %v", tt.bits, got, err, tt.want)
		}
	}
	if _, err := gpu.FormatForBits(12); err == nil {
		t.Error("FormatForBits(12) should fail")
	}
}
