// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpu

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// ErrCompile is returned when WGSL source fails to compile.
var ErrCompile = errors.New("gpu: shader compilation failed")

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("%w: SPIR-V length %d is not word aligned", ErrCompile, len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}

// Program is a linked vertex and fragment shader pair.
type Program struct {
	dev      *Device
	vertex   hal.ShaderModule
	fragment hal.ShaderModule
	label    string

	sourceBytes uint64
	codeBytes   uint64
	released    atomic.Bool
}

// CreateProgram compiles vertex and fragment WGSL and creates both shader
// modules.
func (d *Device) CreateProgram(label, vertexSource, fragmentSource string) (*Program, error) {
	vs, err := CompileWGSL(vertexSource)
	if err != nil {
		return nil, fmt.Errorf("vertex stage of %q: %w", label, err)
	}
	frag, err := CompileWGSL(fragmentSource)
	if err != nil {
		return nil, fmt.Errorf("fragment stage of %q: %w", label, err)
	}
	p, err := d.CreateProgramFromSPIRV(label, vs, frag)
	if err != nil {
		return nil, err
	}
	p.sourceBytes = uint64(len(vertexSource) + len(fragmentSource))
	return p, nil
}

// CreateProgramFromSPIRV creates a program from precompiled SPIR-V.
func (d *Device) CreateProgramFromSPIRV(label string, vertex, fragment []uint32) (*Program, error) {
	vm, err := d.raw.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label + "/vs",
		Source: hal.ShaderSource{SPIRV: vertex},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create vertex module %q: %w", label, err)
	}
	fm, err := d.raw.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label + "/fs",
		Source: hal.ShaderSource{SPIRV: fragment},
	})
	if err != nil {
		d.raw.DestroyShaderModule(vm)
		return nil, fmt.Errorf("gpu: create fragment module %q: %w", label, err)
	}
	return &Program{
		dev:       d,
		vertex:    vm,
		fragment:  fm,
		label:     label,
		codeBytes: uint64(len(vertex)+len(fragment)) * 4,
	}, nil
}

// Label returns the debug label.
func (p *Program) Label() string { return p.label }

// VertexModule returns the vertex shader module.
func (p *Program) VertexModule() hal.ShaderModule { return p.vertex }

// FragmentModule returns the fragment shader module.
func (p *Program) FragmentModule() hal.ShaderModule { return p.fragment }

// SourceBytes returns the size of the WGSL sources, or 0 for programs
// created from SPIR-V.
func (p *Program) SourceBytes() uint64 { return p.sourceBytes }

// CodeBytes returns the size of the SPIR-V held by the device.
func (p *Program) CodeBytes() uint64 { return p.codeBytes }

// IsReleased reports whether Close has been called.
func (p *Program) IsReleased() bool { return p.released.Load() }

// Close destroys both shader modules. Calling Close more than once is a
// no-op.
func (p *Program) Close() {
	if p.released.Swap(true) {
		return
	}
	p.dev.raw.DestroyShaderModule(p.vertex)
	p.dev.raw.DestroyShaderModule(p.fragment)
	p.vertex, p.fragment = nil, nil
}

// String returns a string representation of the program.
func (p *Program) String() string {
	status := "active"
	if p.released.Load() {
		status = "released"
	}
	return fmt.Sprintf("Program[%s %d bytes %s]", p.label, p.codeBytes, status)
}

// SourceLoader reads WGSL shader sources and compiles them into programs.
// With a nil FS paths are read from the operating system.
type SourceLoader struct {
	FS fs.FS
}

// Load reads both sources and compiles them into a program labelled
// "vertexPath+fragmentPath".
func (l SourceLoader) Load(dev *Device, vertexPath, fragmentPath string) (*Program, error) {
	vs, err := l.read(vertexPath)
	if err != nil {
		return nil, err
	}
	frag, err := l.read(fragmentPath)
	if err != nil {
		return nil, err
	}
	return dev.CreateProgram(vertexPath+"+"+fragmentPath, vs, frag)
}

func (l SourceLoader) read(path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if l.FS != nil {
		b, err = fs.ReadFile(l.FS, path)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("gpu: read shader: %w", err)
	}
	return string(b), nil
}
