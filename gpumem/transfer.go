package gpumem

import (
	"bytes"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/volren/gpu"
	"github.com/gogpu/volren/transfer"
)

// transferFunction is the part of a transfer function the manager needs.
type transferFunction interface {
	comparable
	Bytes() []byte
	CPUSize() uint64
}

// tfTable tracks one dimensionality of transfer functions together with
// their textures and last uploaded encoding.
type tfTable[F transferFunction] struct {
	reg      *registry[F, *gpu.Texture]
	describe func(F) gpu.TextureDescriptor
	notify   func(Requester)
	encoded  map[F][]byte
}

func newTFTable[F transferFunction](kind Kind, describe func(F) gpu.TextureDescriptor, notify func(Requester)) *tfTable[F] {
	return &tfTable[F]{
		reg:      newRegistry[F, *gpu.Texture](kind, OwnerSet),
		describe: describe,
		notify:   notify,
		encoded:  make(map[F][]byte),
	}
}

func describe1D(f *transfer.Function1D) gpu.TextureDescriptor {
	return gpu.TextureDescriptor{
		Label:     "tf1d",
		Dimension: gputypes.TextureDimension1D,
		Width:     f.Size(),
		Format:    gputypes.TextureFormatRGBA8Unorm,
	}
}

func describe2D(f *transfer.Function2D) gpu.TextureDescriptor {
	return gpu.TextureDescriptor{
		Label:     "tf2d",
		Dimension: gputypes.TextureDimension2D,
		Width:     f.Width(),
		Height:    f.Height(),
		Format:    gputypes.TextureFormatRGBA8Unorm,
	}
}

// upload creates a texture for fn and fills it.
func (t *tfTable[F]) upload(m *Manager, fn F, data []byte) (*gpu.Texture, error) {
	tex, err := m.dev.CreateTexture(t.describe(fn))
	if err != nil {
		return nil, fmt.Errorf("%w: %s texture: %w", ErrCreate, t.reg.kind, err)
	}
	if err := tex.Upload(data); err != nil {
		tex.Close()
		return nil, fmt.Errorf("%w: %s texture: %w", ErrDecode, t.reg.kind, err)
	}
	return tex, nil
}

// register uploads fn and records owner as its first owner.
func (t *tfTable[F]) register(m *Manager, fn F, owner Requester, origin string) (*gpu.Texture, error) {
	data := fn.Bytes()
	tex, err := t.upload(m, fn, data)
	if err != nil {
		m.log.Error("gpumem: cannot create transfer function", "kind", t.reg.kind.String(), "origin", origin, "error", err)
		return nil, err
	}
	size := Footprint{CPU: fn.CPUSize(), GPU: tex.SizeBytes()}
	e := t.reg.insert(fn, tex, "", size, owner)
	e.name = fmt.Sprintf("%s#%d(%s)", t.reg.kind, e.seq, origin)
	t.encoded[fn] = data
	m.log.Info("gpumem: created transfer function", "kind", t.reg.kind.String(), "name", e.name,
		"cpu", size.CPU, "gpu", size.GPU)
	m.commit(size)
	return tex, nil
}

func (t *tfTable[F]) acquire(m *Manager, fn F, owner Requester) (*gpu.Texture, error) {
	if m.closed {
		return nil, ErrClosed
	}
	e, ok := t.reg.get(fn)
	if !ok {
		m.log.Warn("gpumem: acquire of unknown transfer function", "kind", t.reg.kind.String())
		return nil, fmt.Errorf("%w: %s", ErrNotFound, t.reg.kind)
	}
	t.reg.addUser(e, owner)
	m.log.Debug("gpumem: sharing transfer function", "name", e.name, "owners", len(e.owners))
	return e.value, nil
}

func (t *tfTable[F]) release(m *Manager, fn F, owner Requester) {
	if m.closed {
		m.warnClosed("Release" + t.reg.kind.String())
		return
	}
	e, ok := t.reg.get(fn)
	if !ok {
		m.log.Warn("gpumem: release of unknown transfer function", "kind", t.reg.kind.String())
		return
	}
	if !t.reg.removeUser(e, owner) {
		m.log.Warn("gpumem: transfer function released by a non-owner", "name", e.name)
		return
	}
	if len(e.owners) > 0 {
		return
	}
	t.destroy(m, e)
}

func (t *tfTable[F]) destroy(m *Manager, e *entry[F, *gpu.Texture]) {
	e.value.Close()
	delete(t.encoded, e.key)
	t.reg.remove(e)
	m.uncommit(e.size)
	m.log.Info("gpumem: released transfer function", "name", e.name)
}

// changed re-uploads fn if its encoding differs from the texture contents
// and tells every other owner. The caller must own fn.
func (t *tfTable[F]) changed(m *Manager, owner Requester, fn F) {
	if m.closed {
		m.warnClosed("Notify" + t.reg.kind.String())
		return
	}
	e, ok := t.reg.get(fn)
	if !ok {
		m.log.Warn("gpumem: change notification for unknown transfer function", "kind", t.reg.kind.String())
		return
	}
	if !t.reg.isOwner(e, owner) {
		m.log.Warn("gpumem: change notification from a non-owner", "name", e.name)
		return
	}
	if err := t.refresh(m, e); err != nil {
		m.log.Error("gpumem: cannot update transfer function texture", "name", e.name, "error", err)
	}
	others := t.reg.otherOwners(e, owner)
	m.log.Debug("gpumem: transfer function changed", "name", e.name, "notified", len(others))
	for _, o := range others {
		t.notify(o)
	}
}

// refresh brings the texture of e in line with its function. A resized
// function gets a new texture; the old one is destroyed.
func (t *tfTable[F]) refresh(m *Manager, e *entry[F, *gpu.Texture]) error {
	data := e.key.Bytes()
	if bytes.Equal(data, t.encoded[e.key]) {
		return nil
	}
	d := t.describe(e.key)
	if d.Width == e.value.Width() && max(d.Height, 1) == e.value.Height() {
		if err := e.value.Upload(data); err != nil {
			return err
		}
		t.encoded[e.key] = data
		return nil
	}

	tex, err := t.upload(m, e.key, data)
	if err != nil {
		return err
	}
	old := e.value
	oldSize := e.size
	size := Footprint{CPU: e.key.CPUSize(), GPU: tex.SizeBytes()}
	t.reg.replace(e, tex, size)
	t.encoded[e.key] = data
	old.Close()
	m.uncommit(oldSize)
	m.commit(size)
	return nil
}

func (t *tfTable[F]) texture(fn F) (*gpu.Texture, bool) {
	e, ok := t.reg.get(fn)
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (t *tfTable[F]) owners(fn F) int {
	e, ok := t.reg.get(fn)
	if !ok {
		return 0
	}
	return len(e.owners)
}

func (t *tfTable[F]) closeAll(m *Manager, leak func(Kind, string, int, Footprint)) {
	for _, e := range t.reg.all() {
		leak(t.reg.kind, e.name, len(e.owners), e.size)
		t.destroy(m, e)
	}
}

// CreateEmptyTransferFunction1D creates a default 1D transfer function of
// size entries owned by r.
func (m *Manager) CreateEmptyTransferFunction1D(size int, r Requester) (*transfer.Function1D, *gpu.Texture, error) {
	if m.closed {
		return nil, nil, ErrClosed
	}
	fn, err := transfer.New1D(size)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCreate, err)
	}
	fn.SetDefault()
	tex, err := m.tf1d.register(m, fn, r, "empty")
	if err != nil {
		return nil, nil, err
	}
	return fn, tex, nil
}

// LoadTransferFunction1D reads a 1D transfer function file. Each call
// creates a new function owned by r; files are not deduplicated.
func (m *Manager) LoadTransferFunction1D(path string, r Requester) (*transfer.Function1D, *gpu.Texture, error) {
	if m.closed {
		return nil, nil, ErrClosed
	}
	fn, err := transfer.Load1DFile(path)
	if err != nil {
		m.log.Error("gpumem: cannot load transfer function", "path", path, "error", err)
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}
	tex, err := m.tf1d.register(m, fn, r, canonicalPath(path))
	if err != nil {
		return nil, nil, err
	}
	return fn, tex, nil
}

// AcquireTransferFunction1D adds r as an owner of an existing function and
// returns its texture.
func (m *Manager) AcquireTransferFunction1D(fn *transfer.Function1D, r Requester) (*gpu.Texture, error) {
	return m.tf1d.acquire(m, fn, r)
}

// ReleaseTransferFunction1D drops one ownership of fn by r.
func (m *Manager) ReleaseTransferFunction1D(fn *transfer.Function1D, r Requester) {
	m.tf1d.release(m, fn, r)
}

// NotifyTransferFunction1DChanged re-uploads fn after r edited it and calls
// TransferFunction1DChanged once on every other owner.
func (m *Manager) NotifyTransferFunction1DChanged(r Requester, fn *transfer.Function1D) {
	m.tf1d.changed(m, r, fn)
}

// TransferFunction1DTexture returns the current texture of fn. The texture
// changes when the function is resized.
func (m *Manager) TransferFunction1DTexture(fn *transfer.Function1D) (*gpu.Texture, bool) {
	return m.tf1d.texture(fn)
}

// TransferFunction1DOwners returns the number of outstanding ownerships
// of fn.
func (m *Manager) TransferFunction1DOwners(fn *transfer.Function1D) int {
	return m.tf1d.owners(fn)
}

// CreateEmptyTransferFunction2D creates a default width x height 2D
// transfer function owned by r.
func (m *Manager) CreateEmptyTransferFunction2D(width, height int, r Requester) (*transfer.Function2D, *gpu.Texture, error) {
	if m.closed {
		return nil, nil, ErrClosed
	}
	fn, err := transfer.New2D(width, height)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCreate, err)
	}
	fn.SetDefault()
	tex, err := m.tf2d.register(m, fn, r, "empty")
	if err != nil {
		return nil, nil, err
	}
	return fn, tex, nil
}

// LoadTransferFunction2D reads a 2D transfer function file owned by r.
func (m *Manager) LoadTransferFunction2D(path string, r Requester) (*transfer.Function2D, *gpu.Texture, error) {
	if m.closed {
		return nil, nil, ErrClosed
	}
	fn, err := transfer.Load2DFile(path)
	if err != nil {
		m.log.Error("gpumem: cannot load transfer function", "path", path, "error", err)
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}
	tex, err := m.tf2d.register(m, fn, r, canonicalPath(path))
	if err != nil {
		return nil, nil, err
	}
	return fn, tex, nil
}

// AcquireTransferFunction2D adds r as an owner of an existing function.
func (m *Manager) AcquireTransferFunction2D(fn *transfer.Function2D, r Requester) (*gpu.Texture, error) {
	return m.tf2d.acquire(m, fn, r)
}

// ReleaseTransferFunction2D drops one ownership of fn by r.
func (m *Manager) ReleaseTransferFunction2D(fn *transfer.Function2D, r Requester) {
	m.tf2d.release(m, fn, r)
}

// NotifyTransferFunction2DChanged re-uploads fn and calls
// TransferFunction2DChanged once on every other owner.
func (m *Manager) NotifyTransferFunction2DChanged(r Requester, fn *transfer.Function2D) {
	m.tf2d.changed(m, r, fn)
}

// TransferFunction2DTexture returns the current texture of fn.
func (m *Manager) TransferFunction2DTexture(fn *transfer.Function2D) (*gpu.Texture, bool) {
	return m.tf2d.texture(fn)
}

// TransferFunction2DOwners returns the number of outstanding ownerships
// of fn.
func (m *Manager) TransferFunction2DOwners(fn *transfer.Function2D) int {
	return m.tf2d.owners(fn)
}
