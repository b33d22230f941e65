// Package gpumem brokers GPU and CPU memory among volume renderers.
//
// The Manager owns every shared resource: datasets, 2D images, transfer
// functions with their textures, brick textures, offscreen targets and
// shader programs. Renderers acquire resources through it and receive
// non-owning handles; each acquire must be matched by a release. Identical
// requests are deduplicated, and a resource is destroyed when its last user
// lets go.
//
// All resources are charged to one running CPU and GPU total, checked
// against the ceilings reported by a sysinfo.Info after every change. When
// over budget, bricks that no renderer currently uses are evicted, least
// recently released first. A brick that cannot fit even after that is
// refused with ErrMemoryBudgetExceeded.
//
// Manager performs no locking. It is meant to be driven from the single
// thread that owns the graphics device; wrap it in a mutex to share it.
package gpumem

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/btree"
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/gogpu/volren"
	"github.com/gogpu/volren/gpu"
	"github.com/gogpu/volren/imageio"
	"github.com/gogpu/volren/sysinfo"
	"github.com/gogpu/volren/transfer"
	"github.com/gogpu/volren/volume"
)

// Requester is a renderer holding references to shared resources. It is
// told when another owner changes a transfer function they share.
//
// Requesters are compared by identity and must be comparable, which in
// practice means pointer types.
type Requester interface {
	TransferFunction1DChanged()
	TransferFunction2DChanged()
}

// ImageDecoder decodes 2D image files.
type ImageDecoder interface {
	Load(path string) (*imageio.Pixels, error)
}

// ProgramLoader builds shader programs from source paths.
type ProgramLoader interface {
	Load(dev *gpu.Device, vertexPath, fragmentPath string) (*gpu.Program, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default is volren.Logger().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithSystemInfo sets the source of memory ceilings. The default reports
// no ceilings.
func WithSystemInfo(info sysinfo.Info) Option {
	return func(m *Manager) {
		if info != nil {
			m.sys = info
		}
	}
}

// WithDatasetOpener sets how datasets are opened. The default reads BRK
// files.
func WithDatasetOpener(o volume.Opener) Option {
	return func(m *Manager) {
		if o != nil {
			m.opener = o
		}
	}
}

// WithImageDecoder sets how images are decoded. The default bounds images
// to the device's maximum 2D texture size.
func WithImageDecoder(d ImageDecoder) Option {
	return func(m *Manager) {
		if d != nil {
			m.decoder = d
		}
	}
}

// WithProgramLoader sets how shader programs are built. The default reads
// WGSL files from disk.
func WithProgramLoader(l ProgramLoader) Option {
	return func(m *Manager) {
		if l != nil {
			m.loader = l
		}
	}
}

// MaxImageSize bounds the larger side of images decoded by the default
// decoder.
const MaxImageSize = 8192

// Manager is the shared resource broker. See the package documentation.
type Manager struct {
	dev     *gpu.Device
	log     *slog.Logger
	sys     sysinfo.Info
	opener  volume.Opener
	decoder ImageDecoder
	loader  ProgramLoader

	datasets *registry[string, volume.Dataset]
	images   *registry[string, *gpu.Texture]
	tf1d     *tfTable[*transfer.Function1D]
	tf2d     *tfTable[*transfer.Function2D]
	bricks   *registry[brickKey, *gpu.Texture]
	targets  *registry[*gpu.Target, *gpu.Target]
	programs *registry[programKey, *gpu.Program]

	// brickIndex orders bricks by dataset so a dataset's bricks can be
	// found with one range scan.
	brickIndex *btree.BTreeG[brickKey]
	// idle holds bricks with no users, oldest release first.
	idle     *simplelru.LRU[brickKey, struct{}]
	idleSize Footprint

	committed  Footprint
	ceiling    Footprint
	// underflow accumulates releases in excess of the committed total.
	underflow  Footprint
	overBudget bool
	evictions  uint64
	closed     bool
}

// New creates a manager allocating on dev.
func New(dev *gpu.Device, opts ...Option) *Manager {
	idle, err := simplelru.NewLRU[brickKey, struct{}](math.MaxInt, nil)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	m := &Manager{
		dev:        dev,
		log:        volren.Logger(),
		sys:        sysinfo.Unlimited,
		opener:     volume.FileOpener,
		decoder:    imageio.Decoder{MaxSize: MaxImageSize},
		loader:     gpu.SourceLoader{},
		datasets:   newRegistry[string, volume.Dataset](KindDataset, OwnerSet),
		images:     newRegistry[string, *gpu.Texture](KindImage, AccessCount),
		bricks:     newRegistry[brickKey, *gpu.Texture](KindBrick, AccessCount),
		targets:    newRegistry[*gpu.Target, *gpu.Target](KindTarget, AccessCount),
		programs:   newRegistry[programKey, *gpu.Program](KindProgram, AccessCount),
		brickIndex: btree.NewG[brickKey](16, brickKeyLess),
		idle:       idle,
	}
	m.tf1d = newTFTable(KindTransferFunction1D, describe1D, Requester.TransferFunction1DChanged)
	m.tf2d = newTFTable(KindTransferFunction2D, describe2D, Requester.TransferFunction2DChanged)
	for _, opt := range opts {
		opt(m)
	}
	m.refreshCeiling()
	return m
}

// Device returns the device resources are allocated on.
func (m *Manager) Device() *gpu.Device { return m.dev }

// Committed returns the memory attributed to all registered resources.
func (m *Manager) Committed() Footprint { return m.committed }

// Stats returns a snapshot of the registries and budget.
func (m *Manager) Stats() Stats {
	return Stats{
		Committed: m.committed,
		Ceiling:   m.ceiling,
		Counts: map[Kind]int{
			KindDataset:            m.datasets.len(),
			KindImage:              m.images.len(),
			KindTransferFunction1D: m.tf1d.reg.len(),
			KindTransferFunction2D: m.tf2d.reg.len(),
			KindBrick:              m.bricks.len(),
			KindTarget:             m.targets.len(),
			KindProgram:            m.programs.len(),
		},
		IdleBricks: m.idle.Len(),
		Evictions:  m.evictions,
	}
}

// OnMemoryBudgetChanged re-reads the ceilings and evicts idle bricks until
// the committed totals fit. If they still do not fit a warning is logged;
// resources in use are never reclaimed.
func (m *Manager) OnMemoryBudgetChanged() {
	if m.closed {
		return
	}
	m.rebalance()
}

func (m *Manager) refreshCeiling() {
	m.ceiling = Footprint{CPU: m.sys.MaxUsableCPUMem(), GPU: m.sys.MaxUsableGPUMem()}
}

// commit charges a new resource and restores the budget if needed.
func (m *Manager) commit(f Footprint) {
	m.committed = m.committed.Add(f)
	m.rebalance()
}

// uncommit releases a destroyed resource's charge.
func (m *Manager) uncommit(f Footprint) {
	if f.CPU > m.committed.CPU || f.GPU > m.committed.GPU {
		m.log.Error("gpumem: committed total underflow", "committed", m.committed.String(), "release", f.String())
		m.underflow = m.underflow.Add(f.Sub(m.committed))
	}
	m.committed = m.committed.Sub(f)
	if m.overBudget && m.committed.fits(m.ceiling.CPU, m.ceiling.GPU) {
		m.overBudget = false
		m.log.Info("gpumem: back within memory budget", "committed", m.committed.String())
	}
}

// rebalance evicts idle bricks while the totals exceed the ceilings.
func (m *Manager) rebalance() {
	m.refreshCeiling()
	for !m.committed.fits(m.ceiling.CPU, m.ceiling.GPU) {
		if !m.evictOne() {
			break
		}
	}
	over := !m.committed.fits(m.ceiling.CPU, m.ceiling.GPU)
	if over && !m.overBudget {
		m.log.Warn("gpumem: memory budget exceeded by resources in use",
			"committed", m.committed.String(), "ceiling", m.ceiling.String())
	}
	m.overBudget = over
}

// reserve makes room for need by evicting idle bricks. It reports false,
// evicting nothing, when need cannot fit even with every idle brick gone.
func (m *Manager) reserve(need Footprint) bool {
	m.refreshCeiling()
	cpuMax, gpuMax := m.ceiling.CPU, m.ceiling.GPU
	if !m.committed.Sub(m.idleSize).Add(need).fits(cpuMax, gpuMax) {
		return false
	}
	for !m.committed.Add(need).fits(cpuMax, gpuMax) {
		if !m.evictOne() {
			return false
		}
	}
	return true
}

// evictOne destroys the least recently released idle brick.
func (m *Manager) evictOne() bool {
	key, _, ok := m.idle.GetOldest()
	if !ok {
		return false
	}
	e, ok := m.bricks.get(key)
	if !ok {
		m.idle.Remove(key)
		return true
	}
	m.log.Debug("gpumem: evicting idle brick", "brick", e.name, "gpu", e.size.GPU)
	m.destroyBrick(e)
	m.evictions++
	return true
}

// Close frees every remaining resource. Resources still in use are leaks:
// each is logged as a warning, freed, and reported in a *LeakError. If the
// committed totals are not zero afterwards, or if more memory was ever
// released than committed, the error also wraps ErrResidualMemory. Close is
// idempotent.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var leaks []Leak
	leak := func(kind Kind, name string, users int, size Footprint) {
		m.log.Warn("gpumem: leaked resource", "kind", kind.String(), "name", name, "users", users,
			"cpu", size.CPU, "gpu", size.GPU)
		leaks = append(leaks, Leak{Kind: kind, Name: name, Owners: users, Size: size})
	}

	for _, e := range m.targets.all() {
		leak(KindTarget, e.name, e.count, e.size)
		m.destroyTarget(e)
	}
	for _, e := range m.programs.all() {
		leak(KindProgram, e.name, e.count, e.size)
		m.destroyProgram(e)
	}
	for _, e := range m.images.all() {
		leak(KindImage, e.name, e.count, e.size)
		m.destroyImage(e)
	}
	m.tf1d.closeAll(m, leak)
	m.tf2d.closeAll(m, leak)
	for _, e := range m.bricks.all() {
		if e.count > 0 {
			leak(KindBrick, e.name, e.count, e.size)
		}
		m.destroyBrick(e)
	}
	for _, e := range m.datasets.all() {
		leak(KindDataset, e.name, len(e.owners), e.size)
		m.destroyDataset(e)
	}

	var errs []error
	if len(leaks) > 0 {
		errs = append(errs, &LeakError{Leaks: leaks})
	}
	if !m.committed.IsZero() {
		m.log.Error("gpumem: committed memory remains after teardown", "committed", m.committed.String())
		errs = append(errs, fmt.Errorf("%w: %s", ErrResidualMemory, m.committed))
	}
	if !m.underflow.IsZero() {
		m.log.Error("gpumem: more memory released than committed", "excess", m.underflow.String())
		errs = append(errs, fmt.Errorf("%w: %s released beyond the committed total", ErrResidualMemory, m.underflow))
	}
	if len(errs) == 0 {
		m.log.Info("gpumem: closed cleanly", "evictions", m.evictions)
	}
	return errors.Join(errs...)
}

func (m *Manager) warnClosed(op string) {
	m.log.Warn("gpumem: call on closed manager", "op", op)
}
