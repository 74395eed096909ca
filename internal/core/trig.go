package core

import "math"

// TrigTable holds precomputed sin/cos values; lookups interpolate linearly
// between entries.
type TrigTable struct {
	sin []float64
	cos []float64
	n   int
}

// 4096 entries, ~0.0015 rad resolution.
var DefaultTrigTable = NewTrigTable(4096)

func NewTrigTable(n int) *TrigTable {
	if n < 4 {
		n = 4
	}
	t := &TrigTable{
		sin: make([]float64, n),
		cos: make([]float64, n),
		n:   n,
	}
	for i := 0; i < n; i++ {
		angle := float64(i) * 2 * math.Pi / float64(n)
		t.sin[i] = math.Sin(angle)
		t.cos[i] = math.Cos(angle)
	}
	return t
}

func (t *TrigTable) index(x float64) (int, int, float64) {
	x = math.Mod(x, 2*math.Pi)
	if x < 0 {
		x += 2 * math.Pi
	}
	idx := x * float64(t.n) / (2 * math.Pi)
	i := int(idx)
	frac := idx - float64(i)
	return i % t.n, (i + 1) % t.n, frac
}

func (t *TrigTable) SinCos(x float64) (sin, cos float64) {
	if !Finite(x) {
		return 0, 1
	}
	i0, i1, frac := t.index(x)
	sin = t.sin[i0]*(1-frac) + t.sin[i1]*frac
	cos = t.cos[i0]*(1-frac) + t.cos[i1]*frac
	return
}

func FastSinCos(x float64) (float64, float64) {
	return DefaultTrigTable.SinCos(x)
}
