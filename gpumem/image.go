package gpumem

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/volren/gpu"
)

// AcquireImage returns an RGBA8 texture holding the image at path,
// decoding and uploading it on first use.
func (m *Manager) AcquireImage(path string) (*gpu.Texture, error) {
	if m.closed {
		return nil, ErrClosed
	}
	key := canonicalPath(path)
	if e, ok := m.images.get(key); ok {
		m.images.addUser(e, nil)
		m.log.Debug("gpumem: reusing image", "path", key, "users", e.count)
		return e.value, nil
	}

	px, err := m.decoder.Load(path)
	if err != nil {
		m.log.Error("gpumem: cannot decode image", "path", path, "error", err)
		return nil, fmt.Errorf("%w: image %s: %w", ErrDecode, path, err)
	}
	tex, err := m.dev.CreateTexture(gpu.TextureDescriptor{
		Label:     key,
		Dimension: gputypes.TextureDimension2D,
		Width:     px.Width,
		Height:    px.Height,
		Format:    gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		m.log.Error("gpumem: cannot create image texture", "path", path, "error", err)
		return nil, fmt.Errorf("%w: image %s: %w", ErrCreate, path, err)
	}
	if err := tex.Upload(px.Data); err != nil {
		tex.Close()
		m.log.Error("gpumem: cannot upload image", "path", path, "error", err)
		return nil, fmt.Errorf("%w: image %s: %w", ErrDecode, path, err)
	}

	size := Footprint{GPU: tex.SizeBytes()}
	m.images.insert(key, tex, key, size, nil)
	m.log.Info("gpumem: loaded image", "path", key, "width", px.Width, "height", px.Height)
	m.commit(size)
	return tex, nil
}

// ReleaseImage undoes one AcquireImage. The texture is destroyed when its
// count reaches zero.
func (m *Manager) ReleaseImage(tex *gpu.Texture) {
	if m.closed {
		m.warnClosed("ReleaseImage")
		return
	}
	e, ok := m.images.lookup(tex)
	if !ok {
		m.log.Warn("gpumem: release of unknown image texture", "texture", tex)
		return
	}
	m.images.removeUser(e, nil)
	if e.count > 0 {
		m.log.Debug("gpumem: image still in use", "path", e.name, "users", e.count)
		return
	}
	m.destroyImage(e)
}

// ImageUsers returns the access count of the image at path.
func (m *Manager) ImageUsers(path string) int {
	e, ok := m.images.get(canonicalPath(path))
	if !ok {
		return 0
	}
	return e.count
}

func (m *Manager) destroyImage(e *entry[string, *gpu.Texture]) {
	e.value.Close()
	m.images.remove(e)
	m.uncommit(e.size)
	m.log.Info("gpumem: released image", "path", e.name)
}
