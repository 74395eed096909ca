// Package quality turns a capability snapshot and a frame-time signal into
// concrete render settings.
//
// Settings are derived, never edited: every change produces a new value that
// is published atomically, so readers on other goroutines always see a
// complete set. Degradation walks a fixed ladder of rungs:
//
//	rung 1  shadows off
//	rung 2  pixel ratio cap halved (not below 1)
//	rung 3  max primitives halved
//	rung 4  antialiasing off
//
// Three consecutive samples above 1.5x the frame budget drop one rung; ten
// consecutive samples below 0.8x the budget climb one rung back.
package quality

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/san-kum/gfxlab/internal/capability"
	"github.com/san-kum/gfxlab/internal/core"
)

type Level uint8

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
)

func (l Level) String() string {
	switch l {
	case LevelHigh:
		return "high"
	case LevelMedium:
		return "medium"
	default:
		return "low"
	}
}

const MaxRung = 4

type Settings struct {
	Level          Level   `json:"level"`
	PixelRatioCap  float64 `json:"pixel_ratio_cap"`
	Antialiasing   bool    `json:"antialiasing"`
	ShadowsEnabled bool    `json:"shadows_enabled"`
	MaxPrimitives  int     `json:"max_primitives"`
	TargetFPS      int     `json:"target_fps"`
	Rung           int     `json:"rung"`
}

// FrameBudgetMs is the per-frame time allowed by TargetFPS.
func (s Settings) FrameBudgetMs() float64 {
	if s.TargetFPS <= 0 {
		return 1000.0 / 60
	}
	return 1000.0 / float64(s.TargetFPS)
}

func (s Settings) String() string {
	return fmt.Sprintf("level=%s rung=%d ratio=%.2f aa=%t shadows=%t prims=%d fps=%d",
		s.Level, s.Rung, s.PixelRatioCap, s.Antialiasing, s.ShadowsEnabled, s.MaxPrimitives, s.TargetFPS)
}

// Thresholds tune the hysteresis. Zero fields fall back to defaults.
type Thresholds struct {
	TargetFPS     int     `yaml:"target_fps"`
	DegradeFactor float64 `yaml:"degrade_factor"`
	UpgradeFactor float64 `yaml:"upgrade_factor"`
	DegradeAfter  int     `yaml:"degrade_after"`
	UpgradeAfter  int     `yaml:"upgrade_after"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		DegradeFactor: 1.5,
		UpgradeFactor: 0.8,
		DegradeAfter:  3,
		UpgradeAfter:  10,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.DegradeFactor <= 0 {
		t.DegradeFactor = d.DegradeFactor
	}
	if t.UpgradeFactor <= 0 {
		t.UpgradeFactor = d.UpgradeFactor
	}
	if t.DegradeAfter <= 0 {
		t.DegradeAfter = d.DegradeAfter
	}
	if t.UpgradeAfter <= 0 {
		t.UpgradeAfter = d.UpgradeAfter
	}
	return t
}

// Baseline returns the rung-0 settings for a snapshot.
func Baseline(snap capability.Snapshot, targetFPS int) Settings {
	var s Settings
	switch snap.Tier {
	case capability.TierHigh:
		s = Settings{Level: LevelHigh, PixelRatioCap: 2.0, Antialiasing: true, ShadowsEnabled: true, MaxPrimitives: 2000, TargetFPS: 60}
	case capability.TierMedium:
		s = Settings{Level: LevelMedium, PixelRatioCap: 1.5, Antialiasing: true, ShadowsEnabled: true, MaxPrimitives: 800, TargetFPS: 60}
	default:
		s = Settings{Level: LevelLow, PixelRatioCap: 1.0, Antialiasing: true, MaxPrimitives: 200, TargetFPS: 30}
	}
	if snap.PixelRatio >= 1 && snap.PixelRatio < s.PixelRatioCap {
		s.PixelRatioCap = snap.PixelRatio
	}
	if targetFPS > 0 {
		s.TargetFPS = targetFPS
	}
	return s
}

// AtRung applies the first rung steps of the degradation ladder to base.
func AtRung(base Settings, rung int) Settings {
	if rung < 0 {
		rung = 0
	}
	if rung > MaxRung {
		rung = MaxRung
	}
	s := base
	s.Rung = rung
	if rung >= 1 {
		s.ShadowsEnabled = false
	}
	if rung >= 2 {
		s.PixelRatioCap = math.Max(1, base.PixelRatioCap*0.5)
	}
	if rung >= 3 {
		s.MaxPrimitives = max(1, base.MaxPrimitives/2)
	}
	if rung >= 4 {
		s.Antialiasing = false
	}
	drop := Level(rung / 2)
	if drop > base.Level {
		s.Level = LevelLow
	} else {
		s.Level = base.Level - drop
	}
	return s
}

// Policy is the incremental form of [Derive]. Observe is called once per
// telemetry window with that window's average frame time.
type Policy struct {
	mu    sync.Mutex
	th    Thresholds
	base  Settings
	rung  int
	over  int
	under int

	current atomic.Pointer[Settings]
}

func NewPolicy(snap capability.Snapshot, th Thresholds) *Policy {
	p := &Policy{th: th.withDefaults()}
	p.rebase(snap)
	return p
}

// Current is safe to call from any goroutine.
func (p *Policy) Current() Settings {
	return *p.current.Load()
}

// Observe feeds one averaged frame time and reports whether the settings
// changed. Non-finite or non-positive samples are ignored.
func (p *Policy) Observe(frameTimeMs float64) (Settings, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !core.Finite(frameTimeMs) || frameTimeMs <= 0 {
		return *p.current.Load(), false
	}

	budget := p.base.FrameBudgetMs()
	switch {
	case frameTimeMs > budget*p.th.DegradeFactor:
		p.over++
		p.under = 0
	case frameTimeMs < budget*p.th.UpgradeFactor:
		p.under++
		p.over = 0
	default:
		p.over, p.under = 0, 0
	}

	next := p.rung
	if p.over >= p.th.DegradeAfter {
		next = min(MaxRung, p.rung+1)
		p.over = 0
	} else if p.under >= p.th.UpgradeAfter {
		next = max(0, p.rung-1)
		p.under = 0
	}
	if next == p.rung {
		return *p.current.Load(), false
	}

	p.rung = next
	p.over, p.under = 0, 0
	s := AtRung(p.base, p.rung)
	p.current.Store(&s)
	core.Logger().Warn("quality: rung changed", "rung", s.Rung, "level", s.Level.String(), "frame_ms", frameTimeMs)
	return s, true
}

// Rebase recomputes the baseline for a new snapshot, keeping the current rung.
func (p *Policy) Rebase(snap capability.Snapshot) Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rebase(snap)
	return *p.current.Load()
}

func (p *Policy) rebase(snap capability.Snapshot) {
	p.base = Baseline(snap, p.th.TargetFPS)
	p.over, p.under = 0, 0
	s := AtRung(p.base, p.rung)
	p.current.Store(&s)
}

// Derive replays a fresh policy over history. Same inputs, same settings.
func Derive(snap capability.Snapshot, history []float64) Settings {
	return DeriveWith(snap, DefaultThresholds(), history)
}

func DeriveWith(snap capability.Snapshot, th Thresholds, history []float64) Settings {
	p := NewPolicy(snap, th)
	for _, ms := range history {
		p.Observe(ms)
	}
	return p.Current()
}
