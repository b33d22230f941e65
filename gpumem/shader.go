package gpumem

import (
	"fmt"

	"github.com/gogpu/volren/gpu"
)

type programKey struct {
	vertex, fragment string
}

// AcquireShaderProgram returns the program built from a vertex and a
// fragment shader source, compiling it on first use.
func (m *Manager) AcquireShaderProgram(vertexPath, fragmentPath string) (*gpu.Program, error) {
	if m.closed {
		return nil, ErrClosed
	}
	key := programKey{vertex: canonicalPath(vertexPath), fragment: canonicalPath(fragmentPath)}
	if e, ok := m.programs.get(key); ok {
		m.programs.addUser(e, nil)
		m.log.Debug("gpumem: reusing shader program", "program", e.name, "users", e.count)
		return e.value, nil
	}

	p, err := m.loader.Load(m.dev, vertexPath, fragmentPath)
	if err != nil {
		m.log.Error("gpumem: cannot build shader program", "vertex", vertexPath, "fragment", fragmentPath, "error", err)
		return nil, fmt.Errorf("%w: %s+%s: %w", ErrCompile, vertexPath, fragmentPath, err)
	}
	name := key.vertex + "+" + key.fragment
	size := Footprint{CPU: p.SourceBytes(), GPU: p.CodeBytes()}
	m.programs.insert(key, p, name, size, nil)
	m.log.Info("gpumem: built shader program", "program", name)
	m.commit(size)
	return p, nil
}

// ReleaseShaderProgram undoes one AcquireShaderProgram.
func (m *Manager) ReleaseShaderProgram(p *gpu.Program) {
	if m.closed {
		m.warnClosed("ReleaseShaderProgram")
		return
	}
	e, ok := m.programs.lookup(p)
	if !ok {
		m.log.Warn("gpumem: release of unknown shader program", "program", p)
		return
	}
	m.programs.removeUser(e, nil)
	if e.count > 0 {
		return
	}
	m.destroyProgram(e)
}

func (m *Manager) destroyProgram(e *entry[programKey, *gpu.Program]) {
	e.value.Close()
	m.programs.remove(e)
	m.uncommit(e.size)
	m.log.Info("gpumem: released shader program", "program", e.name)
}
