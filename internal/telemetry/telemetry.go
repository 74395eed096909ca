// Package telemetry turns per-frame durations into one FrameStats per
// window of about a second.
package telemetry

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/san-kum/gfxlab/internal/core"
)

const DefaultWindow = time.Second

type Sink interface {
	Emit(s core.FrameStats)
}

type SinkFunc func(core.FrameStats)

func (f SinkFunc) Emit(s core.FrameStats) { f(s) }

// Window accumulates frame durations. It is not safe for concurrent use; the
// frame loop owns it.
type Window struct {
	span    time.Duration
	elapsed time.Duration
	frames  int
	metrics []Metric
}

func NewWindow(span time.Duration, metrics ...Metric) *Window {
	if span <= 0 {
		span = DefaultWindow
	}
	return &Window{span: span, metrics: metrics}
}

// Add records one frame. When the window is full it returns the stats for it
// and starts a new one.
func (w *Window) Add(frame time.Duration, now time.Time, memBytes uint64) (core.FrameStats, bool) {
	if frame < 0 {
		frame = 0
	}
	w.elapsed += frame
	w.frames++
	ms := float64(frame) / float64(time.Millisecond)
	for _, m := range w.metrics {
		m.Observe(ms)
	}
	if w.elapsed < w.span {
		return core.FrameStats{}, false
	}

	secs := w.elapsed.Seconds()
	stats := core.FrameStats{
		FPS:         int(math.Round(float64(w.frames) / secs)),
		FrameTimeMs: secs * 1000 / float64(w.frames),
		MemoryMB:    float64(memBytes) / (1 << 20),
		Timestamp:   now,
	}
	w.elapsed = 0
	w.frames = 0
	return stats, true
}

// Metrics reports the running value of every metric.
func (w *Window) Metrics() map[string]float64 {
	out := make(map[string]float64, len(w.metrics))
	for _, m := range w.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

func (w *Window) Reset() {
	w.elapsed = 0
	w.frames = 0
	for _, m := range w.metrics {
		m.Reset()
	}
}

// Recorder keeps every emitted window in memory.
type Recorder struct {
	mu    sync.Mutex
	stats []core.FrameStats
}

func (r *Recorder) Emit(s core.FrameStats) {
	r.mu.Lock()
	r.stats = append(r.stats, s)
	r.mu.Unlock()
}

func (r *Recorder) Stats() []core.FrameStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.stats)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stats)
}

// Fanout emits to every sink in order.
type Fanout []Sink

func (f Fanout) Emit(s core.FrameStats) {
	for _, sink := range f {
		if sink != nil {
			sink.Emit(s)
		}
	}
}
