// Package host adapts a gpu.Device into the capability and scheduling
// surface the lifecycle controller expects.
package host

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/san-kum/gfxlab/internal/gpu"
)

// Host reports what a device can do, as seen by the capability probe.
type Host struct {
	mu    sync.Mutex
	dev   gpu.Device
	ratio float64
	err   error
}

func New(dev gpu.Device, pixelRatio float64) *Host {
	return &Host{dev: dev, ratio: pixelRatio}
}

func (h *Host) Device() gpu.Device { return h.dev }

// SetPixelRatio simulates moving the surface to another display.
func (h *Host) SetPixelRatio(r float64) {
	h.mu.Lock()
	h.ratio = r
	h.mu.Unlock()
}

// Fail makes every query return err until it is called with nil.
func (h *Host) Fail(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

func (h *Host) check() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev == nil {
		return fmt.Errorf("host: no device")
	}
	return h.err
}

func (h *Host) AdapterInfo() (gputypes.AdapterInfo, error) {
	if err := h.check(); err != nil {
		return gputypes.AdapterInfo{}, err
	}
	return h.dev.AdapterInfo(), nil
}

func (h *Host) Limits() (gputypes.Limits, error) {
	if err := h.check(); err != nil {
		return gputypes.Limits{}, err
	}
	return h.dev.Limits(), nil
}

func (h *Host) Features() (gputypes.Features, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return h.dev.Features(), nil
}

func (h *Host) PixelRatio() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ratio
}

// Profile describes a simulated machine.
type Profile struct {
	Name       string
	PixelRatio float64
	Options    gpu.HeadlessOptions
}

func limits(maxTex uint32, base gputypes.Limits) gputypes.Limits {
	base.MaxTextureDimension2D = maxTex
	return base
}

var profiles = map[string]Profile{
	"discrete": {
		Name:       "discrete",
		PixelRatio: 2,
		Options: gpu.HeadlessOptions{
			Info: gputypes.AdapterInfo{
				Name: "headless discrete", Vendor: "gfxlab",
				DeviceType: gputypes.DeviceTypeDiscreteGPU, Backend: gputypes.BackendVulkan,
			},
			Limits: limits(16384, gputypes.DefaultLimits()),
			Budget: 1 << 30,
		},
	},
	"integrated": {
		Name:       "integrated",
		PixelRatio: 1.5,
		Options: gpu.HeadlessOptions{
			Info: gputypes.AdapterInfo{
				Name: "headless integrated", Vendor: "gfxlab",
				DeviceType: gputypes.DeviceTypeIntegratedGPU, Backend: gputypes.BackendMetal,
			},
			Limits: gputypes.DefaultLimits(),
			Budget: 256 << 20,
		},
	},
	"software": {
		Name:       "software",
		PixelRatio: 1,
		Options: gpu.HeadlessOptions{
			Info: gputypes.AdapterInfo{
				Name: "headless software", Vendor: "gfxlab",
				DeviceType: gputypes.DeviceTypeCPU, Backend: gputypes.BackendGL,
			},
			Limits: gputypes.DownlevelLimits(),
			Budget: 64 << 20,
		},
	},
	"nodevice": {
		Name:       "nodevice",
		PixelRatio: 1,
		Options: gpu.HeadlessOptions{
			Info: gputypes.AdapterInfo{
				Name: "headless none", Vendor: "gfxlab",
				DeviceType: gputypes.DeviceTypeOther, Backend: gputypes.BackendEmpty,
			},
			Limits: limits(0, gputypes.DownlevelLimits()),
			Budget: 1 << 20,
		},
	},
}

func Profiles() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile: %s", name)
	}
	return p, nil
}

// NewHeadless builds a headless device for a profile and a host over it.
// budget overrides the profile's memory budget when non-zero.
func NewHeadless(profile string, budget uint64) (*Host, *gpu.Headless, error) {
	p, err := LookupProfile(profile)
	if err != nil {
		return nil, nil, err
	}
	opts := p.Options
	if budget > 0 {
		opts.Budget = budget
	}
	dev := gpu.NewHeadless(opts)
	return New(dev, p.PixelRatio), dev, nil
}
