// Package capability detects what the host can render once per session.
package capability

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/san-kum/gfxlab/internal/core"
)

type Tier uint8

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	default:
		return "low"
	}
}

// ParseTier accepts "low", "medium" or "high".
func ParseTier(s string) (Tier, error) {
	switch s {
	case "low":
		return TierLow, nil
	case "medium":
		return TierMedium, nil
	case "high":
		return TierHigh, nil
	}
	return TierLow, fmt.Errorf("unknown gpu tier: %s", s)
}

// Snapshot is immutable once captured.
type Snapshot struct {
	Tier                    Tier
	SupportsAdvancedShaders bool
	PixelRatio              float64
	MaxTextureSize          int

	Adapter string
	Backend gputypes.Backend
}

// Renderable reports whether the host meets the minimum rendering support.
func (s Snapshot) Renderable() bool { return s.MaxTextureSize > 0 }

func (s Snapshot) String() string {
	return fmt.Sprintf("tier=%s advanced=%t ratio=%.2f maxTex=%d adapter=%q",
		s.Tier, s.SupportsAdvancedShaders, s.PixelRatio, s.MaxTextureSize, s.Adapter)
}

// Host is the rendering environment as seen by the probe.
type Host interface {
	AdapterInfo() (gputypes.AdapterInfo, error)
	Limits() (gputypes.Limits, error)
	Features() (gputypes.Features, error)
	PixelRatio() float64
}

const (
	highTextureSize     = 8192
	mediumTextureSize   = 4096
	advancedStorageBufs = 8
)

// Conservative is the snapshot used whenever detection fails.
func Conservative() Snapshot {
	return Snapshot{
		Tier:           TierLow,
		PixelRatio:     1,
		MaxTextureSize: int(gputypes.DownlevelLimits().MaxTextureDimension2D),
		Adapter:        "unknown",
	}
}

// Probe inspects host and never fails: any error or panic from the host
// yields [Conservative].
func Probe(host Host) (snap Snapshot) {
	if host == nil {
		core.Logger().Warn("capability: no host, using conservative snapshot")
		return Conservative()
	}
	defer func() {
		if r := recover(); r != nil {
			core.Logger().Warn("capability: probe panicked, using conservative snapshot", "panic", r)
			snap = Conservative()
		}
	}()

	info, err := host.AdapterInfo()
	if err != nil {
		core.Logger().Warn("capability: adapter query failed", "err", err)
		return Conservative()
	}
	limits, err := host.Limits()
	if err != nil {
		core.Logger().Warn("capability: limits query failed", "err", err)
		return Conservative()
	}
	if _, err := host.Features(); err != nil {
		core.Logger().Warn("capability: feature query failed", "err", err)
		return Conservative()
	}

	ratio := host.PixelRatio()
	if !core.Finite(ratio) || ratio <= 0 {
		ratio = 1
	}

	snap = Snapshot{
		Tier:           classify(info, limits),
		PixelRatio:     ratio,
		MaxTextureSize: int(limits.MaxTextureDimension2D),
		Adapter:        info.Name,
		Backend:        info.Backend,
	}
	snap.SupportsAdvancedShaders = snap.Tier != TierLow &&
		info.Backend != gputypes.BackendGL &&
		limits.MaxStorageBuffersPerShaderStage >= advancedStorageBufs &&
		limits.MaxTextureDimension2D >= mediumTextureSize

	core.Logger().Debug("capability: probed", "snapshot", snap.String())
	return snap
}

func classify(info gputypes.AdapterInfo, limits gputypes.Limits) Tier {
	tex := limits.MaxTextureDimension2D
	switch info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		if tex >= highTextureSize {
			return TierHigh
		}
		if tex >= mediumTextureSize {
			return TierMedium
		}
	case gputypes.DeviceTypeIntegratedGPU:
		if tex >= mediumTextureSize {
			return TierMedium
		}
	}
	return TierLow
}

// Cache memoizes one snapshot per session.
type Cache struct {
	mu   sync.Mutex
	host Host
	snap *Snapshot
}

func NewCache(host Host) *Cache {
	return &Cache{host: host}
}

// Get probes on first use and returns the cached snapshot afterwards.
func (c *Cache) Get() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		s := Probe(c.host)
		c.snap = &s
	}
	return *c.snap
}

// Refresh re-probes, e.g. after an external display is attached, and
// reports whether the snapshot changed.
func (c *Cache) Refresh() (Snapshot, bool) {
	s := Probe(c.host)
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := c.snap == nil || *c.snap != s
	c.snap = &s
	return s, changed
}
