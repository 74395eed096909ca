package particle

import (
	"fmt"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gogpu/gputypes"
	"github.com/san-kum/gfxlab/internal/core"
	"github.com/san-kum/gfxlab/internal/quality"
	"github.com/san-kum/gfxlab/internal/resource"
)

const (
	bufPositions = "positions"
	bufColors    = "colors"
	bufSizes     = "sizes"
	bufUniforms  = "uniforms"
)

type Kernel struct {
	params Params
	count  int
	rng    *rand.Rand

	state  *State
	target mgl64.Vec3
	time   float64
	dirty  bool

	hPos, hCol, hSize, hUni resource.Handle
}

func NewKernel(p Params, count int, seed int64) *Kernel {
	return &Kernel{params: p, count: count, rng: rand.New(rand.NewSource(seed))}
}

func (k *Kernel) State() *State { return k.state }

func (k *Kernel) Spec(s quality.Settings) (resource.Spec, error) {
	if err := k.params.Validate(); err != nil {
		return resource.Spec{}, err
	}
	n := min(k.count, s.MaxPrimitives)
	if n <= 0 {
		n = 1
	}
	return resource.Spec{
		Count: n,
		Buffers: []resource.BufferSpec{
			resource.FloatBuffer(bufPositions, n, 3, gputypes.BufferUsageVertex),
			resource.FloatBuffer(bufColors, n, 3, gputypes.BufferUsageVertex),
			resource.FloatBuffer(bufSizes, n, 1, gputypes.BufferUsageVertex),
			resource.UniformBuffer(bufUniforms, 16),
		},
	}, nil
}

func (k *Kernel) Setup(_ *resource.Manager, g *resource.Generation, _ quality.Settings) error {
	var err error
	for label, h := range map[string]*resource.Handle{
		bufPositions: &k.hPos, bufColors: &k.hCol, bufSizes: &k.hSize, bufUniforms: &k.hUni,
	} {
		if *h, err = g.Handle(label); err != nil {
			return err
		}
	}
	if k.state == nil {
		k.state, err = NewState(g.Count(), k.params.Palette, k.params, k.rng)
	} else {
		err = k.state.Resize(g.Count(), k.params, k.rng)
	}
	k.dirty = true
	return err
}

// Tick follows the pointer: its NDC position is mapped onto the z=0 plane
// inside the containment sphere. An inactive or non-finite pointer attracts
// to the origin.
func (k *Kernel) Tick(in core.FrameInput) {
	k.target = mgl64.Vec3{}
	if in.Pointer.Active && core.Finite(in.Pointer.X, in.Pointer.Y) {
		reach := k.params.MaxRadius * 0.8
		k.target = mgl64.Vec3{in.Pointer.X * reach, in.Pointer.Y * reach, 0}
	}
	k.time = in.Time
	Tick(k.state, k.params, k.target, in.Time, in.Dt)
}

func (k *Kernel) Render(g *resource.Generation) error {
	if err := g.WriteFloats(k.hPos, k.state.Positions); err != nil {
		return err
	}
	if k.dirty {
		if err := g.WriteFloats(k.hCol, k.state.Colors); err != nil {
			return err
		}
		if err := g.WriteFloats(k.hSize, k.state.Sizes); err != nil {
			return err
		}
		k.dirty = false
	}
	u := [16]float32{
		float32(k.time),
		float32(k.state.Len()),
		float32(k.target[0]), float32(k.target[1]), float32(k.target[2]),
		float32(k.params.MaxRadius),
	}
	return g.WriteFloats(k.hUni, u[:])
}

func (k *Kernel) Apply(_ *resource.Manager, _ *resource.Generation, a core.Action) error {
	switch a.Kind {
	case core.ActionReset:
		s, err := NewState(k.state.Len(), k.state.Palette(), k.params, k.rng)
		if err != nil {
			return err
		}
		k.state = s
		k.dirty = true
	case core.ActionSetPalette:
		if err := k.state.Repaint(a.Name, k.params, k.rng); err != nil {
			return err
		}
		k.params.Palette = a.Name
		k.dirty = true
	case core.ActionSetParam:
		if !core.Finite(a.Value) {
			return core.Errorf(core.KindSimulationStateInvalid, "particle.SetParam", "non-finite %s", a.Name)
		}
		p := k.params
		switch a.Name {
		case "attractor":
			p.AttractorStrength = a.Value
		case "noise":
			p.NoiseStrength = a.Value
		case "damping":
			p.Damping = a.Value
		default:
			return fmt.Errorf("particle: unknown parameter %q", a.Name)
		}
		if err := p.Validate(); err != nil {
			return err
		}
		k.params = p
	default:
		return fmt.Errorf("particle: unsupported action %s", a.Kind)
	}
	return nil
}

func (k *Kernel) Metrics() map[string]float64 {
	if k.state == nil {
		return nil
	}
	var mean float64
	sp := k.state.Speeds()
	for _, v := range sp {
		mean += v
	}
	if len(sp) > 0 {
		mean /= float64(len(sp))
	}
	return map[string]float64{"particles": float64(k.state.Len()), "mean_speed": mean}
}

func (k *Kernel) Points() []mgl64.Vec3 {
	if k.state == nil {
		return nil
	}
	out := make([]mgl64.Vec3, k.state.Len())
	for i := range out {
		p := k.state.Positions[i*3:]
		out[i] = mgl64.Vec3{float64(p[0]), float64(p[1]), float64(p[2])}
	}
	return out
}
