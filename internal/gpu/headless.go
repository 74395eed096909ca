package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
)

// HeadlessOptions configures a [Headless] device.
type HeadlessOptions struct {
	Info     gputypes.AdapterInfo
	Limits   gputypes.Limits
	Features gputypes.Features
	// Budget is the total device memory in bytes. Zero means 256 MiB.
	Budget uint64
}

type object struct {
	kind  ObjectKind
	label string
	size  uint64
	data  []byte
}

// Headless is a device that tracks objects and memory in process without
// touching a real GPU. It enforces limits and a memory budget the way a
// driver would, so allocation failure paths behave like the real thing.
type Headless struct {
	mu          sync.Mutex
	info        gputypes.AdapterInfo
	limits      gputypes.Limits
	features    gputypes.Features
	budget      uint64
	used        uint64
	nextID      ObjectID
	objects     map[ObjectID]*object
	submissions uint64
	lost        bool
}

func NewHeadless(opts HeadlessOptions) *Headless {
	if opts.Budget == 0 {
		opts.Budget = 256 << 20
	}
	if opts.Limits.MaxTextureDimension2D == 0 && opts.Limits.MaxBufferSize == 0 {
		opts.Limits = gputypes.DefaultLimits()
	}
	if opts.Info.Name == "" {
		opts.Info = gputypes.AdapterInfo{
			Name:       "headless",
			Vendor:     "gfxlab",
			DeviceType: gputypes.DeviceTypeCPU,
			Backend:    gputypes.BackendEmpty,
		}
	}
	return &Headless{
		info:     opts.Info,
		limits:   opts.Limits,
		features: opts.Features,
		budget:   opts.Budget,
		objects:  make(map[ObjectID]*object),
	}
}

func (h *Headless) Name() string                      { return h.info.Name }
func (h *Headless) AdapterInfo() gputypes.AdapterInfo { return h.info }
func (h *Headless) Limits() gputypes.Limits           { return h.limits }
func (h *Headless) Features() gputypes.Features       { return h.features }

func (h *Headless) reserve(kind ObjectKind, label string, size uint64) (ObjectID, error) {
	if h.lost {
		return 0, ErrDeviceLost
	}
	if h.used+size > h.budget {
		return 0, fmt.Errorf("%w: %s %q needs %d bytes, %d of %d in use",
			ErrOutOfMemory, kind, label, size, h.used, h.budget)
	}
	h.nextID++
	id := h.nextID
	h.objects[id] = &object{kind: kind, label: label, size: size}
	h.used += size
	return id, nil
}

func (h *Headless) CreateBuffer(d BufferDescriptor) (ObjectID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if d.Size == 0 {
		return 0, fmt.Errorf("%w: buffer %q has zero size", ErrLimitExceeded, d.Label)
	}
	if d.Size > h.limits.MaxBufferSize {
		return 0, fmt.Errorf("%w: buffer %q size %d > %d", ErrLimitExceeded, d.Label, d.Size, h.limits.MaxBufferSize)
	}
	return h.reserve(KindBuffer, d.Label, d.Size)
}

func (h *Headless) WriteBuffer(id ObjectID, offset uint64, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, ok := h.objects[id]
	if !ok || obj.kind != KindBuffer {
		return fmt.Errorf("%w: buffer %d", ErrUnknownObject, id)
	}
	if offset+uint64(len(data)) > obj.size {
		return fmt.Errorf("%w: write of %d bytes at %d overruns buffer %q (%d)",
			ErrLimitExceeded, len(data), offset, obj.label, obj.size)
	}
	if obj.data == nil {
		obj.data = make([]byte, obj.size)
	}
	copy(obj.data[offset:], data)
	return nil
}

func (h *Headless) CreateTexture(d TextureDescriptor) (ObjectID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	maxDim := h.limits.MaxTextureDimension2D
	if d.Width == 0 || d.Height == 0 || d.Width > maxDim || d.Height > maxDim {
		return 0, fmt.Errorf("%w: texture %q %dx%d (max %d)", ErrLimitExceeded, d.Label, d.Width, d.Height, maxDim)
	}
	size := uint64(d.Width) * uint64(d.Height) * BytesPerPixel(d.Format)
	return h.reserve(KindTexture, d.Label, size)
}

func (h *Headless) CreateProgram(d ProgramDescriptor) (ObjectID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(d.SPIRV) < 5 || d.SPIRV[0] != 0x07230203 {
		return 0, fmt.Errorf("gpu: program %q is not a SPIR-V module", d.Label)
	}
	return h.reserve(KindProgram, d.Label, uint64(len(d.SPIRV))*4)
}

func (h *Headless) Destroy(id ObjectID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, ok := h.objects[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	h.used -= obj.size
	delete(h.objects, id)
	return nil
}

func (h *Headless) Submit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lost {
		return ErrDeviceLost
	}
	h.submissions++
	return nil
}

func (h *Headless) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Objects: len(h.objects), Bytes: h.used, Submissions: h.submissions}
}

// ReadBuffer returns a copy of a buffer's contents.
func (h *Headless) ReadBuffer(id ObjectID) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, ok := h.objects[id]
	if !ok || obj.kind != KindBuffer {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownObject, id)
	}
	out := make([]byte, obj.size)
	copy(out, obj.data)
	return out, nil
}

// SetBudget changes the memory budget, as when other processes claim device
// memory. Objects already allocated are kept even if they no longer fit.
func (h *Headless) SetBudget(budget uint64) {
	h.mu.Lock()
	h.budget = budget
	h.mu.Unlock()
}

// Lose simulates a lost device; subsequent creates and submits fail.
func (h *Headless) Lose() {
	h.mu.Lock()
	h.lost = true
	h.mu.Unlock()
}

// Cleanup drops every object. Only for process shutdown.
func (h *Headless) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.objects = make(map[ObjectID]*object)
	h.used = 0
}
