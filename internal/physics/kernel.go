package physics

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gogpu/gputypes"
	"github.com/san-kum/gfxlab/internal/core"
	"github.com/san-kum/gfxlab/internal/quality"
	"github.com/san-kum/gfxlab/internal/resource"
)

const (
	bufSpheres  = "spheres"
	bufUniforms = "uniforms"
)

// DefaultKick is the impulse used when a kick action carries no vector.
var DefaultKick = mgl64.Vec3{0, 12, 0}

// Kernel runs a World inside the experiment lifecycle.
type Kernel struct {
	params Params
	count  int
	seed   int64

	world   *World
	spheres resource.Handle
	uniform resource.Handle
	packed  []float32
	last    StepReport
}

func NewKernel(p Params, count int, seed int64) *Kernel {
	return &Kernel{params: p, count: count, seed: seed}
}

func (k *Kernel) World() *World { return k.world }

// Spec sizes one vec4 (centre, radius) per sphere.
func (k *Kernel) Spec(s quality.Settings) (resource.Spec, error) {
	n := min(k.count, s.MaxPrimitives)
	if n <= 0 {
		n = 1
	}
	return resource.Spec{
		Count: n,
		Buffers: []resource.BufferSpec{
			resource.FloatBuffer(bufSpheres, n, 4, gputypes.BufferUsageStorage),
			resource.UniformBuffer(bufUniforms, 16),
		},
	}, nil
}

func (k *Kernel) Setup(_ *resource.Manager, g *resource.Generation, _ quality.Settings) error {
	var err error
	if k.spheres, err = g.Handle(bufSpheres); err != nil {
		return err
	}
	if k.uniform, err = g.Handle(bufUniforms); err != nil {
		return err
	}
	if k.world == nil {
		if k.world, err = NewWorld(k.params, g.Count(), k.seed); err != nil {
			return err
		}
	} else if len(k.world.Spheres) != g.Count() {
		k.world.Reset(g.Count())
	}
	k.packed = make([]float32, g.Count()*4)
	return nil
}

func (k *Kernel) Tick(in core.FrameInput) {
	k.last = Tick(k.world, in.Dt)
}

func (k *Kernel) Render(g *resource.Generation) error {
	for i, s := range k.world.Spheres {
		k.packed[i*4] = float32(s.Position[0])
		k.packed[i*4+1] = float32(s.Position[1])
		k.packed[i*4+2] = float32(s.Position[2])
		k.packed[i*4+3] = float32(s.Radius)
	}
	if err := g.WriteFloats(k.spheres, k.packed); err != nil {
		return err
	}
	u := [16]float32{
		float32(k.world.Time),
		float32(len(k.world.Spheres)),
		float32(k.params.FloorY),
		float32(k.world.KineticEnergy()),
	}
	return g.WriteFloats(k.uniform, u[:])
}

func (k *Kernel) Apply(_ *resource.Manager, _ *resource.Generation, a core.Action) error {
	switch a.Kind {
	case core.ActionReset:
		k.world.Reset(len(k.world.Spheres))
	case core.ActionKick:
		if !core.Finite(a.Vec[:]...) {
			return core.Errorf(core.KindSimulationStateInvalid, "physics.Kick", "non-finite kick %v", a.Vec)
		}
		dv := mgl64.Vec3(a.Vec)
		if dv.LenSqr() == 0 {
			dv = DefaultKick
		}
		k.world.Kick(dv)
	case core.ActionSetParam:
		if !core.Finite(a.Value) {
			return core.Errorf(core.KindSimulationStateInvalid, "physics.SetParam", "non-finite %s", a.Name)
		}
		p := k.world.Params
		switch a.Name {
		case "gravity":
			p.Gravity = a.Value
		case "restitution":
			p.Restitution = a.Value
		case "friction":
			p.Friction = a.Value
		default:
			return fmt.Errorf("physics: unknown parameter %q", a.Name)
		}
		if err := p.Validate(); err != nil {
			return err
		}
		k.world.Params = p
		k.params = p
	default:
		return fmt.Errorf("physics: unsupported action %s", a.Kind)
	}
	return nil
}

// Metrics reports values for the live viewer.
func (k *Kernel) Metrics() map[string]float64 {
	if k.world == nil {
		return nil
	}
	return map[string]float64{
		"kinetic_energy": k.world.KineticEnergy(),
		"contacts":       float64(k.last.Contacts),
		"recovered":      float64(k.world.Recovered()),
	}
}

// Points returns sphere centres for the terminal projection.
func (k *Kernel) Points() []mgl64.Vec3 {
	if k.world == nil {
		return nil
	}
	out := make([]mgl64.Vec3, len(k.world.Spheres))
	for i, s := range k.world.Spheres {
		out[i] = s.Position
	}
	return out
}
