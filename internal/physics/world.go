package physics

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/gfxlab/internal/core"
)

// MaxStep caps the integration step so a stalled frame cannot blow up the
// simulation.
const MaxStep = 1.0 / 30

// Params are product-tuned defaults, not physical constants.
type Params struct {
	Gravity     float64 `yaml:"gravity"`
	Restitution float64 `yaml:"restitution"`
	// Friction multiplies velocity once per step.
	Friction  float64 `yaml:"friction"`
	FloorY    float64 `yaml:"floor_y"`
	HalfWidth float64 `yaml:"half_width"`
	HalfDepth float64 `yaml:"half_depth"`
	// Ceiling is ignored unless HasCeiling is set.
	Ceiling    float64 `yaml:"ceiling"`
	HasCeiling bool    `yaml:"has_ceiling"`
	MinRadius  float64 `yaml:"min_radius"`
	MaxRadius  float64 `yaml:"max_radius"`
	// SpawnHeight is the bottom layer of freshly reset spheres.
	SpawnHeight float64 `yaml:"spawn_height"`
	// RestSpeed is the impact speed below which contacts stop bouncing.
	// Zero keeps every contact elastic by Restitution.
	RestSpeed float64 `yaml:"rest_speed"`
}

func DefaultParams() Params {
	return Params{
		Gravity:     9.8,
		Restitution: 0.8,
		Friction:    0.99,
		FloorY:      -15,
		HalfWidth:   10,
		HalfDepth:   10,
		MinRadius:   0.3,
		MaxRadius:   1.0,
		SpawnHeight: 0,
	}
}

func (p Params) Validate() error {
	if !core.Finite(p.Gravity, p.Restitution, p.Friction, p.FloorY, p.HalfWidth, p.HalfDepth,
		p.Ceiling, p.MinRadius, p.MaxRadius, p.SpawnHeight, p.RestSpeed) {
		return fmt.Errorf("physics: non-finite parameter")
	}
	if !(p.Restitution >= 0 && p.Restitution <= 1) {
		return fmt.Errorf("physics: restitution %g outside [0, 1]", p.Restitution)
	}
	if !(p.Friction > 0 && p.Friction <= 1) {
		return fmt.Errorf("physics: friction %g outside (0, 1]", p.Friction)
	}
	if !(p.MinRadius > 0 && p.MaxRadius >= p.MinRadius) {
		return fmt.Errorf("physics: bad radius range [%g, %g]", p.MinRadius, p.MaxRadius)
	}
	if !(p.HalfWidth > p.MaxRadius && p.HalfDepth > p.MaxRadius) {
		return fmt.Errorf("physics: box %gx%g too small for radius %g", p.HalfWidth, p.HalfDepth, p.MaxRadius)
	}
	if p.HasCeiling && !(p.Ceiling-p.FloorY > 2*p.MaxRadius) {
		return fmt.Errorf("physics: ceiling %g too low", p.Ceiling)
	}
	if p.RestSpeed < 0 {
		return fmt.Errorf("physics: negative rest speed %g", p.RestSpeed)
	}
	return nil
}

type Sphere struct {
	Position mgl64.Vec3
	Velocity mgl64.Vec3
	Mass     float64
	Radius   float64
}

// NewSphere derives mass from radius³ (unit density).
func NewSphere(pos mgl64.Vec3, radius float64) (Sphere, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return Sphere{}, fmt.Errorf("physics: radius must be positive, got %g", radius)
	}
	return Sphere{Position: pos, Mass: radius * radius * radius, Radius: radius}, nil
}

func (s Sphere) finite() bool {
	return core.Finite(s.Position[0], s.Position[1], s.Position[2],
		s.Velocity[0], s.Velocity[1], s.Velocity[2])
}

// World is the whole simulation state. It holds no hidden references, so
// Tick is a plain function over it.
type World struct {
	Params  Params
	Spheres []Sphere
	Time    float64

	kick    mgl64.Vec3
	kicked  bool
	rng     *rand.Rand
	invalid int
}

func NewWorld(p Params, n int, seed int64) (*World, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	w := &World{Params: p, rng: rand.New(rand.NewSource(seed))}
	w.Reset(n)
	return w, nil
}

// Reset replaces the sphere collection with n fresh spheres stacked in a
// grid above SpawnHeight. Pending kicks are dropped.
func (w *World) Reset(n int) {
	if n < 0 {
		n = 0
	}
	spheres := make([]Sphere, n)
	for i := range spheres {
		r := w.Params.MinRadius + w.rng.Float64()*(w.Params.MaxRadius-w.Params.MinRadius)
		spheres[i] = Sphere{
			Position: w.spawnPoint(i, n),
			Mass:     r * r * r,
			Radius:   r,
		}
	}
	w.Spheres = spheres
	w.kick = mgl64.Vec3{}
	w.kicked = false
	w.Time = 0
}

func (w *World) spawnPoint(i, n int) mgl64.Vec3 {
	cell := 2*w.Params.MaxRadius + 0.1
	cols := int(2*(w.Params.HalfWidth-w.Params.MaxRadius)/cell) + 1
	rows := int(2*(w.Params.HalfDepth-w.Params.MaxRadius)/cell) + 1
	cols = min(cols, int(math.Ceil(math.Sqrt(float64(max(n, 1))))))
	rows = max(1, min(rows, cols))
	layer := i / (cols * rows)
	rem := i % (cols * rows)
	x := (float64(rem%cols) - float64(cols-1)/2) * cell
	z := (float64(rem/cols) - float64(rows-1)/2) * cell
	jitter := (w.rng.Float64() - 0.5) * 0.1
	return mgl64.Vec3{x + jitter, w.Params.SpawnHeight + float64(layer)*cell, z - jitter}
}

// Kick queues a velocity change for every sphere, applied at the next step.
func (w *World) Kick(dv mgl64.Vec3) {
	if !core.Finite(dv[0], dv[1], dv[2]) {
		return
	}
	w.kick = w.kick.Add(dv)
	w.kicked = true
}

// KineticEnergy is Σ ½mv².
func (w *World) KineticEnergy() float64 {
	var e float64
	for i := range w.Spheres {
		s := &w.Spheres[i]
		e += 0.5 * s.Mass * s.Velocity.LenSqr()
	}
	return e
}

// MaxPenetration is the deepest overlap between any two spheres.
func (w *World) MaxPenetration() float64 {
	var worst float64
	for i := range w.Spheres {
		for j := i + 1; j < len(w.Spheres); j++ {
			a, b := &w.Spheres[i], &w.Spheres[j]
			d := a.Radius + b.Radius - b.Position.Sub(a.Position).Len()
			worst = math.Max(worst, d)
		}
	}
	return worst
}

// Recovered counts spheres reset after going non-finite.
func (w *World) Recovered() int { return w.invalid }

// StepReport describes one Tick.
type StepReport struct {
	Dt        float64
	Contacts  int
	Recovered int
}

// Tick advances w by min(frameDelta, MaxStep).
func Tick(w *World, frameDelta float64) StepReport {
	dt := math.Min(frameDelta, MaxStep)
	if !(dt > 0) {
		return StepReport{}
	}
	p := w.Params
	rep := StepReport{Dt: dt}
	gravity := mgl64.Vec3{0, -p.Gravity * dt, 0}

	for i := range w.Spheres {
		s := &w.Spheres[i]
		if w.kicked {
			s.Velocity = s.Velocity.Add(w.kick)
		}
		s.Velocity = s.Velocity.Add(gravity).Mul(p.Friction)
		s.Position = s.Position.Add(s.Velocity.Mul(dt))
		bounce(s, p)
	}
	w.kick = mgl64.Vec3{}
	w.kicked = false

	for i := range w.Spheres {
		for j := i + 1; j < len(w.Spheres); j++ {
			if _, hit := Collide(&w.Spheres[i], &w.Spheres[j], p.Restitution, p.RestSpeed); hit {
				rep.Contacts++
			}
		}
	}

	for i := range w.Spheres {
		s := &w.Spheres[i]
		clamp(s, p)
		if !s.finite() {
			s.Position = w.spawnPoint(i, len(w.Spheres))
			s.Velocity = mgl64.Vec3{}
			rep.Recovered++
		}
	}
	if rep.Recovered > 0 {
		w.invalid += rep.Recovered
		core.Logger().Warn("physics: reset non-finite spheres",
			"count", rep.Recovered, "kind", core.KindSimulationStateInvalid.String())
	}

	w.Time += dt
	return rep
}

type axisBound struct {
	axis   int
	lo, hi float64
	hasHi  bool
}

func bounds(p Params) [3]axisBound {
	return [3]axisBound{
		{axis: 0, lo: -p.HalfWidth, hi: p.HalfWidth, hasHi: true},
		{axis: 1, lo: p.FloorY, hi: p.Ceiling, hasHi: p.HasCeiling},
		{axis: 2, lo: -p.HalfDepth, hi: p.HalfDepth, hasHi: true},
	}
}

// bounce clamps s inside the box and reflects the axis velocity.
func bounce(s *Sphere, p Params) {
	for _, b := range bounds(p) {
		a := b.axis
		if s.Position[a]-s.Radius < b.lo {
			s.Position[a] = b.lo + s.Radius
			if s.Velocity[a] < 0 {
				s.Velocity[a] = reflect(s.Velocity[a], p)
			}
		} else if b.hasHi && s.Position[a]+s.Radius > b.hi {
			s.Position[a] = b.hi - s.Radius
			if s.Velocity[a] > 0 {
				s.Velocity[a] = reflect(s.Velocity[a], p)
			}
		}
	}
}

func reflect(v float64, p Params) float64 {
	if math.Abs(v) < p.RestSpeed {
		return 0
	}
	return -v * p.Restitution
}

// clamp only corrects position; pair resolution may have pushed a sphere
// through a wall.
func clamp(s *Sphere, p Params) {
	for _, b := range bounds(p) {
		a := b.axis
		if s.Position[a]-s.Radius < b.lo {
			s.Position[a] = b.lo + s.Radius
		} else if b.hasHi && s.Position[a]+s.Radius > b.hi {
			s.Position[a] = b.hi - s.Radius
		}
	}
}

// Contact is the outcome of one pair resolution. Normal points from a to b.
type Contact struct {
	Normal   mgl64.Vec3
	Depth    float64
	VnBefore float64
	VnAfter  float64
}

var coincidentNormal = mgl64.Vec3{0, 1, 0}

// Collide resolves an overlapping pair in place: positional correction split
// by inverse mass, then an impulse along the normal unless the pair is
// already separating. Contacts slower than restSpeed are inelastic.
func Collide(a, b *Sphere, restitution, restSpeed float64) (Contact, bool) {
	d := b.Position.Sub(a.Position)
	dist := d.Len()
	minDist := a.Radius + b.Radius
	if !(dist < minDist) {
		return Contact{}, false
	}

	n := coincidentNormal
	if dist > 1e-9 {
		n = d.Mul(1 / dist)
	}
	c := Contact{Normal: n, Depth: minDist - dist}

	invA, invB := 1/a.Mass, 1/b.Mass
	invSum := invA + invB
	a.Position = a.Position.Sub(n.Mul(c.Depth * invA / invSum))
	b.Position = b.Position.Add(n.Mul(c.Depth * invB / invSum))

	c.VnBefore = b.Velocity.Sub(a.Velocity).Dot(n)
	c.VnAfter = c.VnBefore
	if c.VnBefore > 0 {
		return c, true
	}

	e := restitution
	if -c.VnBefore < restSpeed {
		e = 0
	}
	j := -(1 + e) * c.VnBefore / invSum
	a.Velocity = a.Velocity.Sub(n.Mul(j * invA))
	b.Velocity = b.Velocity.Add(n.Mul(j * invB))
	c.VnAfter = b.Velocity.Sub(a.Velocity).Dot(n)
	return c, true
}
