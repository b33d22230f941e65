// Package config loads volren settings from TOML.
//
// Byte sizes are written the way people write them ("512MiB", "2GB") and
// parsed with go-units. Unknown keys are rejected so typos surface early.
//
//	[memory]
//	cpu_limit = "8GiB"
//	gpu_limit = "2GiB"
//	cpu_fraction = 0.8
//
//	[render]
//	strategy = "raycast"
//	width = 800
//	height = 600
//	blend_precision = 8
//	logo = "logo.png"
//
//	[log]
//	level = "info"
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/gogpu/gpucontext"
	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/volren/sysinfo"
)

// ErrInvalid is returned when a configuration value is out of range.
var ErrInvalid = errors.New("config: invalid value")

// Config is the complete volren configuration.
type Config struct {
	Memory MemoryConfig `toml:"memory"`
	Render RenderConfig `toml:"render"`
	Log    LogConfig    `toml:"log"`
}

// MemoryConfig bounds the memory the resource manager may commit.
type MemoryConfig struct {
	// CPULimit overrides the derived CPU ceiling ("8GiB"). Empty means
	// derived from physical memory.
	CPULimit string `toml:"cpu_limit"`

	// GPULimit sets the GPU ceiling. Empty means derived from the adapter.
	GPULimit string `toml:"gpu_limit"`

	// CPUFraction is the share of physical memory usable by volren.
	CPUFraction float64 `toml:"cpu_fraction"`
}

// RenderConfig selects how frames are drawn.
type RenderConfig struct {
	Strategy       string `toml:"strategy"`
	Width          int    `toml:"width"`
	Height         int    `toml:"height"`
	BlendPrecision int    `toml:"blend_precision"`
	Lighting       bool   `toml:"lighting"`
	Logo           string `toml:"logo"`

	// Overlays are extra images stamped onto every frame after the logo.
	Overlays []string `toml:"overlays"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Memory: MemoryConfig{CPUFraction: sysinfo.DefaultCPUFraction},
		Render: RenderConfig{
			Strategy:       "raycast",
			Width:          800,
			Height:         600,
			BlendPrecision: 8,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Decode reads TOML from r over the defaults and validates the result.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the TOML file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("config: open file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Encode writes cfg as TOML.
func (c Config) Encode(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(c); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if _, _, err := c.Memory.Limits(); err != nil {
		return err
	}
	if f := c.Memory.CPUFraction; f <= 0 || f > 1 {
		return fmt.Errorf("%w: memory.cpu_fraction %v not in (0, 1]", ErrInvalid, f)
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return fmt.Errorf("%w: render size %dx%d", ErrInvalid, c.Render.Width, c.Render.Height)
	}
	switch c.Render.BlendPrecision {
	case 8, 16, 32:
	default:
		return fmt.Errorf("%w: render.blend_precision %d not 8, 16 or 32", ErrInvalid, c.Render.BlendPrecision)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Limits parses the configured ceilings. Unset limits are zero.
func (m MemoryConfig) Limits() (cpu, gpu uint64, err error) {
	if cpu, err = parseSize("memory.cpu_limit", m.CPULimit); err != nil {
		return 0, 0, err
	}
	if gpu, err = parseSize("memory.gpu_limit", m.GPULimit); err != nil {
		return 0, 0, err
	}
	return cpu, gpu, nil
}

func parseSize(key, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s is negative", ErrInvalid, key)
	}
	return uint64(n), nil
}

// SystemInfo returns the detected host honoring the configured limits.
func (m MemoryConfig) SystemInfo(adapter gpucontext.AdapterInfo) (*sysinfo.Host, error) {
	cpu, gpu, err := m.Limits()
	if err != nil {
		return nil, err
	}
	h := sysinfo.Detect(adapter)
	h.CPULimit = cpu
	h.GPULimit = gpu
	if m.CPUFraction > 0 {
		h.CPUFraction = m.CPUFraction
	}
	return h, nil
}

// SlogLevel parses the configured level name.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("%w: log.level: %w", ErrInvalid, err)
	}
	return lvl, nil
}
