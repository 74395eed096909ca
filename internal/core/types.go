package core

import (
	"fmt"
	"math"
	"time"
)

// FrameStats summarizes one telemetry window (about one second of frames).
type FrameStats struct {
	FPS         int       `json:"fps"`
	FrameTimeMs float64   `json:"frame_time_ms"`
	MemoryMB    float64   `json:"memory_mb"`
	Timestamp   time.Time `json:"timestamp"`
}

// Viewport is the mount surface size in CSS-style pixels.
type Viewport struct {
	Width      int
	Height     int
	PixelRatio float64
}

func (v Viewport) Aspect() float64 {
	if v.Height <= 0 {
		return 1
	}
	return float64(v.Width) / float64(v.Height)
}

// DrawSize returns the backing buffer size after applying a pixel ratio cap.
func (v Viewport) DrawSize(ratioCap float64) (int, int) {
	r := v.PixelRatio
	if r <= 0 {
		r = 1
	}
	if ratioCap > 0 && r > ratioCap {
		r = ratioCap
	}
	return int(math.Round(float64(v.Width) * r)), int(math.Round(float64(v.Height) * r))
}

// Pointer is the latest pointer position in normalized device coordinates,
// both axes in [-1, 1].
type Pointer struct {
	X, Y   float64
	Active bool
}

type ActionKind uint8

const (
	ActionReset ActionKind = iota + 1
	ActionKick
	ActionCompileShader
	ActionSelectPreset
	ActionSetParam
	ActionSetPalette
)

func (a ActionKind) String() string {
	switch a {
	case ActionReset:
		return "reset"
	case ActionKick:
		return "kick"
	case ActionCompileShader:
		return "compile"
	case ActionSelectPreset:
		return "preset"
	case ActionSetParam:
		return "param"
	case ActionSetPalette:
		return "palette"
	default:
		return "unknown"
	}
}

// ParseActionKind accepts the names printed by String.
func ParseActionKind(s string) (ActionKind, error) {
	for k := ActionReset; k <= ActionSetPalette; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown action: %s", s)
}

// Action is a discrete user event. Which fields matter depends on Kind:
// SetParam uses Name/Value, Kick uses Vec, CompileShader uses Source,
// SelectPreset and SetPalette use Name.
type Action struct {
	Kind   ActionKind
	Name   string
	Value  float64
	Vec    [3]float64
	Source string
}

// Finite reports whether every value is neither NaN nor Inf.
func Finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Finite32 is Finite for float32 slices.
func Finite32(vals []float32) bool {
	for _, v := range vals {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FrameInput is everything a kernel sees for one tick.
type FrameInput struct {
	// Dt is the raw frame delta in seconds. Kernels cap it themselves.
	Dt       float64
	Time     float64
	Pointer  Pointer
	Viewport Viewport
}
