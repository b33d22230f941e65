package gpumem

import (
	"errors"
	"fmt"

	"github.com/gogpu/volren/volume"
)

// LoadDataset opens the dataset at path, or returns the already open one
// for the same canonical path, and records r as an owner.
func (m *Manager) LoadDataset(path string, r Requester) (volume.Dataset, error) {
	if m.closed {
		return nil, ErrClosed
	}
	key := canonicalPath(path)
	if e, ok := m.datasets.get(key); ok {
		m.datasets.addUser(e, r)
		m.log.Debug("gpumem: reusing dataset", "path", key, "owners", len(e.owners))
		return e.value, nil
	}

	ds, err := m.opener.Open(path)
	if err == nil && ds == nil {
		err = errors.New("opener returned no dataset")
	}
	if err != nil {
		m.log.Error("gpumem: cannot open dataset", "path", path, "error", err)
		return nil, fmt.Errorf("%w: dataset %s: %w", ErrOpen, path, err)
	}
	size := Footprint{CPU: ds.MemorySize()}
	m.datasets.insert(key, ds, key, size, r)
	m.log.Info("gpumem: loaded dataset", "path", key, "lods", ds.LODCount(), "cpu", size.CPU)
	m.commit(size)
	return ds, nil
}

// ReleaseDataset drops one ownership of ds by r. Releasing the last owner
// frees every brick texture of the dataset and closes it.
func (m *Manager) ReleaseDataset(ds volume.Dataset, r Requester) {
	if m.closed {
		m.warnClosed("ReleaseDataset")
		return
	}
	e, ok := m.datasets.lookup(ds)
	if !ok {
		m.log.Warn("gpumem: release of unknown dataset")
		return
	}
	if !m.datasets.removeUser(e, r) {
		m.log.Warn("gpumem: dataset released by a non-owner", "path", e.name)
		return
	}
	if len(e.owners) > 0 {
		m.log.Debug("gpumem: dataset still owned", "path", e.name, "owners", len(e.owners))
		return
	}
	m.destroyDataset(e)
}

// DatasetOwners returns the number of outstanding LoadDataset calls for
// the canonical form of path.
func (m *Manager) DatasetOwners(path string) int {
	e, ok := m.datasets.get(canonicalPath(path))
	if !ok {
		return 0
	}
	return len(e.owners)
}

func (m *Manager) destroyDataset(e *entry[string, volume.Dataset]) {
	m.releaseBricksOf(e.seq)
	if err := e.value.Close(); err != nil {
		m.log.Warn("gpumem: closing dataset", "path", e.name, "error", err)
	}
	m.datasets.remove(e)
	m.uncommit(e.size)
	m.log.Info("gpumem: released dataset", "path", e.name, "cpu", e.size.CPU)
}
