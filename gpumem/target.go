package gpumem

import (
	"fmt"

	"github.com/gogpu/volren/gpu"
)

// AcquireOffscreenTarget creates a render target. Targets are never
// shared: every call allocates a new one.
func (m *Manager) AcquireOffscreenTarget(desc gpu.TargetDescriptor) (*gpu.Target, error) {
	if m.closed {
		return nil, ErrClosed
	}
	t, err := m.dev.CreateTarget(desc)
	if err != nil {
		m.log.Error("gpumem: cannot create offscreen target", "width", desc.Width, "height", desc.Height, "error", err)
		return nil, fmt.Errorf("%w: target: %w", ErrCreate, err)
	}
	name := desc.Label
	if name == "" {
		name = fmt.Sprintf("target %dx%d", t.Width(), t.Height())
	}
	size := Footprint{GPU: t.SizeBytes()}
	m.targets.insert(t, t, name, size, nil)
	m.log.Debug("gpumem: created offscreen target", "name", name, "gpu", size.GPU)
	m.commit(size)
	return t, nil
}

// ReleaseOffscreenTarget destroys a target created by
// AcquireOffscreenTarget.
func (m *Manager) ReleaseOffscreenTarget(t *gpu.Target) {
	if m.closed {
		m.warnClosed("ReleaseOffscreenTarget")
		return
	}
	e, ok := m.targets.lookup(t)
	if !ok {
		m.log.Warn("gpumem: release of unknown offscreen target", "target", t)
		return
	}
	m.destroyTarget(e)
}

func (m *Manager) destroyTarget(e *entry[*gpu.Target, *gpu.Target]) {
	e.value.Close()
	m.targets.remove(e)
	m.uncommit(e.size)
	m.log.Debug("gpumem: released offscreen target", "name", e.name)
}
