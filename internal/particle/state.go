// Package particle integrates a pointer-driven particle swarm stored as flat
// float32 arrays ready for upload.
package particle

import (
	"fmt"
	"math"
	"math/rand"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/gfxlab/internal/core"
)

type Params struct {
	AttractorStrength float64 `yaml:"attractor_strength"`
	NoiseStrength     float64 `yaml:"noise_strength"`
	NoiseFrequency    float64 `yaml:"noise_frequency"`
	// NoisePhase desynchronizes particles: particle i is offset by i*NoisePhase.
	NoisePhase float64 `yaml:"noise_phase"`
	Damping    float64 `yaml:"damping"`
	MaxRadius  float64 `yaml:"max_radius"`
	MinSize    float64 `yaml:"min_size"`
	MaxSize    float64 `yaml:"max_size"`
	Palette    string  `yaml:"palette"`
}

func DefaultParams() Params {
	return Params{
		AttractorStrength: 2.0,
		NoiseStrength:     0.5,
		NoiseFrequency:    0.5,
		NoisePhase:        0.1,
		Damping:           0.98,
		MaxRadius:         10,
		MinSize:           0.05,
		MaxSize:           0.2,
		Palette:           "rainbow",
	}
}

func (p Params) Validate() error {
	if !core.Finite(p.AttractorStrength, p.NoiseStrength, p.NoiseFrequency, p.NoisePhase,
		p.Damping, p.MaxRadius, p.MinSize, p.MaxSize) {
		return fmt.Errorf("particle: non-finite parameter")
	}
	if !(p.Damping >= 0 && p.Damping <= 1) {
		return fmt.Errorf("particle: damping %g outside [0, 1]", p.Damping)
	}
	if !(p.MaxRadius > 0) {
		return fmt.Errorf("particle: max radius must be positive")
	}
	if !(p.MinSize >= 0 && p.MaxSize >= p.MinSize) {
		return fmt.Errorf("particle: bad size range [%g, %g]", p.MinSize, p.MaxSize)
	}
	if _, ok := palettes[p.Palette]; !ok {
		return fmt.Errorf("particle: unknown palette %q", p.Palette)
	}
	return nil
}

// State holds n particles in parallel arrays: vec3 fields have 3n entries,
// Sizes has n.
type State struct {
	Positions  []float32
	Velocities []float32
	Colors     []float32
	Sizes      []float32

	n       int
	palette string
}

func (s *State) Len() int { return s.n }

func (s *State) Palette() string { return s.palette }

// NewState scatters n particles inside a sphere of radius spread, at rest.
func NewState(n int, palette string, p Params, rng *rand.Rand) (*State, error) {
	if n < 0 {
		return nil, fmt.Errorf("particle: negative count %d", n)
	}
	pal, ok := palettes[palette]
	if !ok {
		return nil, fmt.Errorf("particle: unknown palette %q", palette)
	}
	s := &State{
		Positions:  make([]float32, 3*n),
		Velocities: make([]float32, 3*n),
		Colors:     make([]float32, 3*n),
		Sizes:      make([]float32, n),
		n:          n,
		palette:    palette,
	}
	spread := p.MaxRadius * 0.5
	for i := 0; i < n; i++ {
		dir := mgl64.Vec3{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		if dir.LenSqr() < 1e-12 {
			dir = mgl64.Vec3{1, 0, 0}
		}
		pos := dir.Normalize().Mul(spread * math.Cbrt(rng.Float64()))
		s.Positions[i*3] = float32(pos[0])
		s.Positions[i*3+1] = float32(pos[1])
		s.Positions[i*3+2] = float32(pos[2])
	}
	s.paint(pal, p, rng)
	return s, nil
}

func (s *State) paint(pal Palette, p Params, rng *rand.Rand) {
	for i := 0; i < s.n; i++ {
		t := 0.0
		if s.n > 1 {
			t = float64(i) / float64(s.n-1)
		}
		c := pal(t)
		s.Colors[i*3] = float32(c[0])
		s.Colors[i*3+1] = float32(c[1])
		s.Colors[i*3+2] = float32(c[2])
		s.Sizes[i] = float32(p.MinSize + rng.Float64()*(p.MaxSize-p.MinSize))
	}
}

// Resize reallocates for n particles. Existing particles keep their motion;
// new ones are scattered fresh. Colors and sizes are reassigned.
func (s *State) Resize(n int, p Params, rng *rand.Rand) error {
	if n == s.n {
		return nil
	}
	fresh, err := NewState(n, s.palette, p, rng)
	if err != nil {
		return err
	}
	keep := min(n, s.n)
	copy(fresh.Positions, s.Positions[:3*keep])
	copy(fresh.Velocities, s.Velocities[:3*keep])
	*s = *fresh
	return nil
}

// Repaint switches palette without touching motion.
func (s *State) Repaint(palette string, p Params, rng *rand.Rand) error {
	pal, ok := palettes[palette]
	if !ok {
		return fmt.Errorf("particle: unknown palette %q", palette)
	}
	s.palette = palette
	s.paint(pal, p, rng)
	return nil
}

// Tick advances every particle by dt toward target. It touches only the
// first Len() entries of each array.
func Tick(s *State, p Params, target mgl64.Vec3, t, dt float64) {
	if !(dt > 0) {
		return
	}
	damping := float32(p.Damping)
	maxR := p.MaxRadius
	pos, vel := s.Positions, s.Velocities

	for i := 0; i < s.n; i++ {
		o := i * 3
		var fx, fy, fz float64

		if p.AttractorStrength != 0 {
			dx := target[0] - float64(pos[o])
			dy := target[1] - float64(pos[o+1])
			dz := target[2] - float64(pos[o+2])
			d := math.Sqrt(dx*dx + dy*dy + dz*dz)
			if d > 1e-9 {
				mag := p.AttractorStrength / (1 + d) / d
				fx, fy, fz = dx*mag, dy*mag, dz*mag
			}
		}
		if p.NoiseStrength != 0 {
			phase := t*p.NoiseFrequency + float64(i)*p.NoisePhase
			sn, cs := core.FastSinCos(phase)
			sn2, _ := core.FastSinCos(phase * 1.3)
			fx += p.NoiseStrength * sn
			fy += p.NoiseStrength * cs
			fz += p.NoiseStrength * sn2
		}

		vel[o] = (vel[o] + float32(fx*dt)) * damping
		vel[o+1] = (vel[o+1] + float32(fy*dt)) * damping
		vel[o+2] = (vel[o+2] + float32(fz*dt)) * damping

		x := float64(pos[o]) + float64(vel[o])*dt
		y := float64(pos[o+1]) + float64(vel[o+1])*dt
		z := float64(pos[o+2]) + float64(vel[o+2])*dt
		if r := math.Sqrt(x*x + y*y + z*z); r > maxR {
			k := maxR / r
			x, y, z = x*k, y*k, z*k
		}
		if !core.Finite(x, y, z) {
			x, y, z = 0, 0, 0
			vel[o], vel[o+1], vel[o+2] = 0, 0, 0
		}
		pos[o], pos[o+1], pos[o+2] = float32(x), float32(y), float32(z)
	}
}

// Speeds returns |v| per particle, for diagnostics.
func (s *State) Speeds() []float64 {
	out := make([]float64, s.n)
	for i := range out {
		o := i * 3
		vx, vy, vz := float64(s.Velocities[o]), float64(s.Velocities[o+1]), float64(s.Velocities[o+2])
		out[i] = math.Sqrt(vx*vx + vy*vy + vz*vz)
	}
	return out
}

// Palette maps t in [0, 1] to an RGB colour.
type Palette func(t float64) mgl64.Vec3

var palettes = map[string]Palette{
	"rainbow": func(t float64) mgl64.Vec3 {
		return hsv(t*0.85, 0.8, 1)
	},
	"fire": func(t float64) mgl64.Vec3 {
		return mgl64.Vec3{1, 0.2 + 0.7*t, 0.1 * t}
	},
	"ocean": func(t float64) mgl64.Vec3 {
		return mgl64.Vec3{0.05, 0.3 + 0.4*t, 0.6 + 0.4*t}
	},
	"mono": func(t float64) mgl64.Vec3 {
		v := 0.6 + 0.4*t
		return mgl64.Vec3{v, v, v}
	},
}

// Palettes lists palette names in sorted order.
func Palettes() []string {
	names := make([]string, 0, len(palettes))
	for n := range palettes {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func hsv(h, s, v float64) mgl64.Vec3 {
	h = math.Mod(h, 1) * 6
	i := math.Floor(h)
	f := h - i
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	switch int(i) {
	case 0:
		return mgl64.Vec3{v, t, p}
	case 1:
		return mgl64.Vec3{q, v, p}
	case 2:
		return mgl64.Vec3{p, v, t}
	case 3:
		return mgl64.Vec3{p, q, v}
	case 4:
		return mgl64.Vec3{t, p, v}
	default:
		return mgl64.Vec3{v, p, q}
	}
}
