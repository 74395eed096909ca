// Package resource owns every GPU object the runtime creates.
//
// Objects are grouped into generations. A [Generation] holds the complete set
// of buffers, textures and programs for one activation of one experiment and
// is released exactly once with [Manager.Dispose]. Kernels never see device
// object IDs; they get [Handle] values and write through the generation that
// issued them.
package resource

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/san-kum/gfxlab/internal/core"
	"github.com/san-kum/gfxlab/internal/gpu"
)

var (
	ErrStaleHandle   = errors.New("resource: handle belongs to a disposed or different generation")
	ErrUnknownLabel  = errors.New("resource: no object with that label")
	ErrWrongKind     = errors.New("resource: handle has the wrong object kind")
	ErrNotGeneration = errors.New("resource: generation not owned by this manager")
)

// noCopy trips go vet's copylocks check when a Generation is copied.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Handle is an opaque reference to one object of one generation.
type Handle struct {
	gen   string
	index int
	kind  gpu.ObjectKind
}

func (h Handle) Valid() bool { return h.gen != "" }

func (h Handle) Kind() gpu.ObjectKind { return h.kind }

type entry struct {
	kind  gpu.ObjectKind
	id    gpu.ObjectID
	label string
	bytes uint64
}

// Generation must only be passed by pointer.
type Generation struct {
	_ noCopy

	id       string
	mgr      *Manager
	spec     Spec
	entries  []entry
	byLabel  map[string]int
	disposed bool
}

func (g *Generation) ID() string { return g.id }

// Spec is the spec the generation was allocated from.
func (g *Generation) Spec() Spec { return g.spec }

func (g *Generation) Count() int { return g.spec.Count }

func (g *Generation) Disposed() bool {
	g.mgr.mu.Lock()
	defer g.mgr.mu.Unlock()
	return g.disposed
}

// Handle looks up an object by label.
func (g *Generation) Handle(label string) (Handle, error) {
	g.mgr.mu.Lock()
	defer g.mgr.mu.Unlock()
	if g.disposed {
		return Handle{}, ErrStaleHandle
	}
	i, ok := g.byLabel[label]
	if !ok {
		return Handle{}, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return Handle{gen: g.id, index: i, kind: g.entries[i].kind}, nil
}

func (g *Generation) lookup(h Handle) (*entry, error) {
	if g.disposed || h.gen != g.id || h.index < 0 || h.index >= len(g.entries) {
		return nil, ErrStaleHandle
	}
	return &g.entries[h.index], nil
}

// Write uploads data into a buffer at offset 0.
func (g *Generation) Write(h Handle, data []byte) error {
	g.mgr.mu.Lock()
	defer g.mgr.mu.Unlock()
	e, err := g.lookup(h)
	if err != nil {
		return err
	}
	if e.kind != gpu.KindBuffer {
		return fmt.Errorf("%w: %s %q", ErrWrongKind, e.kind, e.label)
	}
	return g.mgr.dev.WriteBuffer(e.id, 0, data)
}

// WriteFloats uploads float32 values in little-endian order.
func (g *Generation) WriteFloats(h Handle, vals []float32) error {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return g.Write(h, buf)
}

// Stats is a snapshot of the manager's bookkeeping.
type Stats struct {
	Generations uint64 `json:"generations"`
	Disposed    uint64 `json:"disposed"`
	LiveObjects int    `json:"live_objects"`
	BytesInUse  uint64 `json:"bytes_in_use"`
	Failures    uint64 `json:"failures"`
}

// Manager is the only caller of the device's create and destroy methods.
type Manager struct {
	mu      sync.Mutex
	dev     gpu.Device
	current *Generation
	live    map[gpu.ObjectID]uint64
	bytes   uint64
	stats   Stats
}

func NewManager(dev gpu.Device) *Manager {
	return &Manager{dev: dev, live: make(map[gpu.ObjectID]uint64)}
}

func (m *Manager) Device() gpu.Device { return m.dev }

// Allocate creates every object in spec. If the device rejects any of them,
// the objects already created for this spec are destroyed and a
// ResourceExhausted error is returned. The new generation is not current;
// use ReplaceAll for that.
func (m *Manager) Allocate(spec Spec) (*Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocate(spec)
}

func (m *Manager) allocate(spec Spec) (*Generation, error) {
	g := &Generation{
		id:      uuid.NewString(),
		mgr:     m,
		spec:    spec,
		byLabel: make(map[string]int),
	}

	add := func(kind gpu.ObjectKind, label string, bytes uint64, create func() (gpu.ObjectID, error)) error {
		if _, dup := g.byLabel[label]; dup && label != "" {
			return fmt.Errorf("resource: duplicate label %q", label)
		}
		id, err := create()
		if err != nil {
			return err
		}
		g.byLabel[label] = len(g.entries)
		g.entries = append(g.entries, entry{kind: kind, id: id, label: label, bytes: bytes})
		m.live[id] = bytes
		m.bytes += bytes
		return nil
	}

	var err error
	for _, b := range spec.Buffers {
		b := b
		if err = add(gpu.KindBuffer, b.Label, b.Size, func() (gpu.ObjectID, error) {
			return m.dev.CreateBuffer(gpu.BufferDescriptor{Label: b.Label, Size: b.Size, Usage: b.Usage})
		}); err != nil {
			break
		}
	}
	if err == nil {
		for _, t := range spec.Textures {
			t := t
			size := uint64(t.Width) * uint64(t.Height) * gpu.BytesPerPixel(t.Format)
			if err = add(gpu.KindTexture, t.Label, size, func() (gpu.ObjectID, error) {
				return m.dev.CreateTexture(gpu.TextureDescriptor{Label: t.Label, Width: t.Width, Height: t.Height, Format: t.Format, Usage: t.Usage})
			}); err != nil {
				break
			}
		}
	}
	if err == nil {
		for _, p := range spec.Programs {
			p := p
			if err = add(gpu.KindProgram, p.Label, uint64(len(p.SPIRV))*4, func() (gpu.ObjectID, error) {
				return m.dev.CreateProgram(gpu.ProgramDescriptor{Label: p.Label, SPIRV: p.SPIRV})
			}); err != nil {
				break
			}
		}
	}

	if err != nil {
		m.release(g)
		m.stats.Failures++
		core.Logger().Warn("resource: allocation rolled back", "count", spec.Count, "bytes", spec.Bytes(), "err", err)
		if errors.Is(err, gpu.ErrOutOfMemory) || errors.Is(err, gpu.ErrLimitExceeded) {
			return nil, core.Wrap(core.KindResourceExhausted, "resource.Allocate", err)
		}
		return nil, fmt.Errorf("resource.Allocate: %w", err)
	}

	m.stats.Generations++
	core.Logger().Debug("resource: generation allocated", "gen", g.id, "objects", len(g.entries), "bytes", spec.Bytes())
	return g, nil
}

// release destroys objects in reverse creation order.
func (m *Manager) release(g *Generation) {
	for i := len(g.entries) - 1; i >= 0; i-- {
		e := g.entries[i]
		if err := m.dev.Destroy(e.id); err != nil {
			core.Logger().Warn("resource: destroy failed", "label", e.label, "err", err)
		}
		m.bytes -= m.live[e.id]
		delete(m.live, e.id)
	}
	g.entries = nil
	g.byLabel = nil
	g.disposed = true
}

// Dispose releases every object of g. Disposing nil or an already disposed
// generation is a no-op.
func (m *Manager) Dispose(g *Generation) {
	if g == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.disposed || g.mgr != m {
		return
	}
	m.release(g)
	m.stats.Disposed++
	if m.current == g {
		m.current = nil
	}
	core.Logger().Debug("resource: generation disposed", "gen", g.id)
}

// ReplaceAll allocates spec and only then disposes the current generation.
// On failure the current generation is left untouched.
func (m *Manager) ReplaceAll(spec Spec) (*Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, err := m.allocate(spec)
	if err != nil {
		return nil, err
	}
	if old := m.current; old != nil && !old.disposed {
		m.release(old)
		m.stats.Disposed++
	}
	m.current = g
	return g, nil
}

// Current returns the current generation, or nil.
func (m *Manager) Current() *Generation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Take hands the current generation to the caller, who must dispose it.
func (m *Manager) Take() *Generation {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.current
	m.current = nil
	return g
}

// ReplaceProgram swaps the program labelled label in g. The new program is
// created before the old one is destroyed, so a failure leaves the old one
// bound and its handle valid.
func (m *Manager) ReplaceProgram(g *Generation, label string, spirv []uint32) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.mgr != m {
		return Handle{}, ErrNotGeneration
	}
	if g.disposed {
		return Handle{}, ErrStaleHandle
	}

	id, err := m.dev.CreateProgram(gpu.ProgramDescriptor{Label: label, SPIRV: spirv})
	if err != nil {
		if errors.Is(err, gpu.ErrOutOfMemory) || errors.Is(err, gpu.ErrLimitExceeded) {
			return Handle{}, core.Wrap(core.KindResourceExhausted, "resource.ReplaceProgram", err)
		}
		return Handle{}, fmt.Errorf("resource.ReplaceProgram: %w", err)
	}
	bytes := uint64(len(spirv)) * 4
	m.live[id] = bytes
	m.bytes += bytes

	e := entry{kind: gpu.KindProgram, id: id, label: label, bytes: bytes}
	i, ok := g.byLabel[label]
	if !ok {
		g.byLabel[label] = len(g.entries)
		g.entries = append(g.entries, e)
		return Handle{gen: g.id, index: len(g.entries) - 1, kind: gpu.KindProgram}, nil
	}

	old := g.entries[i]
	g.entries[i] = e
	if err := m.dev.Destroy(old.id); err != nil {
		core.Logger().Warn("resource: destroy failed", "label", old.label, "err", err)
	}
	m.bytes -= m.live[old.id]
	delete(m.live, old.id)
	return Handle{gen: g.id, index: i, kind: gpu.KindProgram}, nil
}

// LiveObjects counts objects created and not yet destroyed.
func (m *Manager) LiveObjects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *Manager) BytesInUse() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bytes
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.LiveObjects = len(m.live)
	s.BytesInUse = m.bytes
	return s
}
