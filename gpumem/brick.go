package gpumem

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/volren/gpu"
	"github.com/gogpu/volren/volume"
)

// brickKey identifies a brick texture. dataset is the sequence number of
// the owning dataset entry.
type brickKey struct {
	dataset uint64
	lod     int
	x, y, z int
}

func brickKeyLess(a, b brickKey) bool {
	if a.dataset != b.dataset {
		return a.dataset < b.dataset
	}
	if a.lod != b.lod {
		return a.lod < b.lod
	}
	if a.z != b.z {
		return a.z < b.z
	}
	if a.y != b.y {
		return a.y < b.y
	}
	return a.x < b.x
}

// AcquireBrickTexture returns the 3D texture holding one brick of ds,
// reading and uploading it on first use. ds must have been returned by
// LoadDataset and not yet fully released.
//
// When the brick does not fit the memory ceilings even after evicting all
// idle bricks, ErrMemoryBudgetExceeded is returned and nothing is
// registered.
func (m *Manager) AcquireBrickTexture(ds volume.Dataset, key volume.BrickKey) (*gpu.Texture, error) {
	if m.closed {
		return nil, ErrClosed
	}
	de, ok := m.datasets.lookup(ds)
	if !ok {
		m.log.Warn("gpumem: brick requested for unknown dataset", "brick", key.String())
		return nil, fmt.Errorf("%w: dataset for brick %s", ErrNotFound, key)
	}
	k := brickKey{dataset: de.seq, lod: key.LOD, x: key.Brick.X, y: key.Brick.Y, z: key.Brick.Z}
	if e, ok := m.bricks.get(k); ok {
		m.bricks.addUser(e, nil)
		if e.count == 1 {
			m.idle.Remove(k)
			m.idleSize = m.idleSize.Sub(e.size)
		}
		m.log.Debug("gpumem: reusing brick", "brick", e.name, "users", e.count)
		return e.value, nil
	}

	name := de.name + " " + key.String()
	extent := ds.BrickSize(key)
	if extent.Volume() == 0 {
		m.log.Warn("gpumem: brick out of range", "brick", name)
		return nil, fmt.Errorf("%w: brick %s: %w", ErrNotFound, name, volume.ErrBrickRange)
	}
	format := ds.Format()
	texel, err := gpu.BytesPerTexel(format)
	if err != nil {
		return nil, fmt.Errorf("%w: brick %s: %w", ErrCreate, name, err)
	}
	need := Footprint{GPU: uint64(extent.Volume()) * uint64(texel)}
	if !m.reserve(need) {
		m.log.Warn("gpumem: brick does not fit the memory budget", "brick", name, "need", need.GPU,
			"committed", m.committed.String(), "ceiling", m.ceiling.String())
		return nil, fmt.Errorf("%w: brick %s needs %s with %s committed", ErrMemoryBudgetExceeded, name, need, m.committed)
	}

	data, err := ds.Brick(key)
	if err != nil {
		m.log.Error("gpumem: cannot read brick", "brick", name, "error", err)
		return nil, fmt.Errorf("%w: brick %s: %w", ErrDecode, name, err)
	}
	tex, err := m.dev.CreateTexture(gpu.TextureDescriptor{
		Label:     name,
		Dimension: gputypes.TextureDimension3D,
		Width:     extent.X,
		Height:    extent.Y,
		Depth:     extent.Z,
		Format:    format,
	})
	if err != nil {
		m.log.Error("gpumem: cannot create brick texture", "brick", name, "error", err)
		return nil, fmt.Errorf("%w: brick %s: %w", ErrCreate, name, err)
	}
	if err := tex.Upload(data); err != nil {
		tex.Close()
		m.log.Error("gpumem: cannot upload brick", "brick", name, "error", err)
		return nil, fmt.Errorf("%w: brick %s: %w", ErrDecode, name, err)
	}

	size := Footprint{GPU: tex.SizeBytes()}
	m.bricks.insert(k, tex, name, size, nil)
	m.brickIndex.ReplaceOrInsert(k)
	m.log.Debug("gpumem: uploaded brick", "brick", name, "gpu", size.GPU)
	m.commit(size)
	return tex, nil
}

// ReleaseBrickTexture undoes one AcquireBrickTexture. A brick without
// users stays resident until it is evicted or its dataset is released.
func (m *Manager) ReleaseBrickTexture(tex *gpu.Texture) {
	if m.closed {
		m.warnClosed("ReleaseBrickTexture")
		return
	}
	e, ok := m.bricks.lookup(tex)
	if !ok {
		m.log.Warn("gpumem: release of unknown brick texture", "texture", tex)
		return
	}
	if !m.bricks.removeUser(e, nil) {
		m.log.Warn("gpumem: brick released more often than acquired", "brick", e.name)
		return
	}
	if e.count > 0 {
		return
	}
	m.idle.Add(e.key, struct{}{})
	m.idleSize = m.idleSize.Add(e.size)
	if m.overBudget {
		m.rebalance()
	}
}

// ReleaseAllBrickTextures frees every brick texture of ds, in use or not.
// It returns the number of bricks freed.
func (m *Manager) ReleaseAllBrickTextures(ds volume.Dataset) int {
	if m.closed {
		m.warnClosed("ReleaseAllBrickTextures")
		return 0
	}
	de, ok := m.datasets.lookup(ds)
	if !ok {
		m.log.Warn("gpumem: brick release for unknown dataset")
		return 0
	}
	return m.releaseBricksOf(de.seq)
}

// BrickUsers returns the access count of a resident brick of ds, and
// whether it is resident.
func (m *Manager) BrickUsers(ds volume.Dataset, key volume.BrickKey) (int, bool) {
	de, ok := m.datasets.lookup(ds)
	if !ok {
		return 0, false
	}
	e, ok := m.bricks.get(brickKey{dataset: de.seq, lod: key.LOD, x: key.Brick.X, y: key.Brick.Y, z: key.Brick.Z})
	if !ok {
		return 0, false
	}
	return e.count, true
}

func (m *Manager) releaseBricksOf(dataset uint64) int {
	var keys []brickKey
	m.brickIndex.AscendRange(brickKey{dataset: dataset}, brickKey{dataset: dataset + 1}, func(k brickKey) bool {
		keys = append(keys, k)
		return true
	})
	var freed Footprint
	for _, k := range keys {
		e, ok := m.bricks.get(k)
		if !ok {
			m.brickIndex.Delete(k)
			continue
		}
		if e.count > 0 {
			m.log.Debug("gpumem: freeing brick still in use", "brick", e.name, "users", e.count)
		}
		freed = freed.Add(e.size)
		m.destroyBrick(e)
	}
	if len(keys) > 0 {
		m.log.Info("gpumem: released bricks", "count", len(keys), "gpu", freed.GPU)
	}
	return len(keys)
}

func (m *Manager) destroyBrick(e *entry[brickKey, *gpu.Texture]) {
	if m.idle.Remove(e.key) {
		m.idleSize = m.idleSize.Sub(e.size)
	}
	m.brickIndex.Delete(e.key)
	m.bricks.remove(e)
	e.value.Close()
	m.uncommit(e.size)
}
