package telemetry

import "math"

// Metric is a running summary over frame times in milliseconds.
type Metric interface {
	Name() string
	Observe(frameMs float64)
	Value() float64
	Reset()
}

// Jank is the fraction of frames that blew the frame budget.
type Jank struct {
	name    string
	budget  float64
	misses  int
	samples int
}

func NewJank(budgetMs float64) *Jank {
	return &Jank{name: "jank", budget: budgetMs}
}

func (j *Jank) Name() string { return j.name }

func (j *Jank) Observe(frameMs float64) {
	j.samples++
	if frameMs > j.budget {
		j.misses++
	}
}

func (j *Jank) Value() float64 {
	if j.samples == 0 {
		return 0
	}
	return float64(j.misses) / float64(j.samples)
}

func (j *Jank) Reset() {
	j.misses = 0
	j.samples = 0
}

type PeakFrame struct {
	peak float64
}

func NewPeakFrame() *PeakFrame { return &PeakFrame{} }

func (p *PeakFrame) Name() string { return "peak_frame_ms" }

func (p *PeakFrame) Observe(frameMs float64) {
	p.peak = math.Max(p.peak, frameMs)
}

func (p *PeakFrame) Value() float64 { return p.peak }

func (p *PeakFrame) Reset() { p.peak = 0 }
