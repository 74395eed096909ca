// Package geometry renders rotating solids: one mesh, many instances.
package geometry

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gogpu/gputypes"
	"github.com/san-kum/gfxlab/internal/core"
	"github.com/san-kum/gfxlab/internal/quality"
	"github.com/san-kum/gfxlab/internal/resource"
)

const (
	bufVertices  = "vertices"
	bufInstances = "instances"
	bufUniforms  = "uniforms"
	texShadow    = "shadow_map"

	shadowMapSize = 1024
)

type Params struct {
	Shape     string     `yaml:"shape"`
	Instances int        `yaml:"instances"`
	Spin      [3]float64 `yaml:"spin"`
	Spacing   float64    `yaml:"spacing"`
}

func DefaultParams() Params {
	return Params{Shape: "cube", Instances: 9, Spin: [3]float64{0.7, 1.1, 0}, Spacing: 3}
}

func (p Params) Validate() error {
	if _, ok := shapes[p.Shape]; !ok {
		return fmt.Errorf("geometry: unknown shape %q", p.Shape)
	}
	if !core.Finite(p.Spin[0], p.Spin[1], p.Spin[2], p.Spacing) {
		return fmt.Errorf("geometry: non-finite parameter")
	}
	if p.Spacing < 0 {
		return fmt.Errorf("geometry: negative spacing %g", p.Spacing)
	}
	return nil
}

type Mesh struct {
	// Triangles as flat xyz triples.
	Vertices []float32
}

func (m Mesh) Len() int { return len(m.Vertices) / 3 }

var shapes = map[string]func() Mesh{
	"cube":        Cube,
	"octahedron":  Octahedron,
	"icosahedron": Icosahedron,
}

// Shapes lists the available mesh names.
func Shapes() []string { return []string{"cube", "octahedron", "icosahedron"} }

func Cube() Mesh {
	corners := [8]mgl64.Vec3{
		{-1, -1, -1}, {1, -1, -1}, {1, 1, -1}, {-1, 1, -1},
		{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1},
	}
	faces := [6][4]int{
		{0, 1, 2, 3}, {5, 4, 7, 6}, {4, 0, 3, 7},
		{1, 5, 6, 2}, {3, 2, 6, 7}, {4, 5, 1, 0},
	}
	var m Mesh
	for _, f := range faces {
		for _, i := range [6]int{f[0], f[1], f[2], f[0], f[2], f[3]} {
			m.Vertices = append(m.Vertices, vec32(corners[i])...)
		}
	}
	return m
}

func Octahedron() Mesh {
	tips := [6]mgl64.Vec3{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}}
	tris := [8][3]int{
		{0, 2, 4}, {4, 2, 1}, {1, 2, 5}, {5, 2, 0},
		{4, 3, 0}, {1, 3, 4}, {5, 3, 1}, {0, 3, 5},
	}
	var m Mesh
	for _, t := range tris {
		for _, i := range t {
			m.Vertices = append(m.Vertices, vec32(tips[i])...)
		}
	}
	return m
}

// Icosahedron is the unit-radius base of an icosphere, without subdivision.
func Icosahedron() Mesh {
	phi := (1 + math.Sqrt(5)) / 2
	verts := [12]mgl64.Vec3{
		{-1, phi, 0}, {1, phi, 0}, {-1, -phi, 0}, {1, -phi, 0},
		{0, -1, phi}, {0, 1, phi}, {0, -1, -phi}, {0, 1, -phi},
		{phi, 0, -1}, {phi, 0, 1}, {-phi, 0, -1}, {-phi, 0, 1},
	}
	tris := [20][3]int{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}
	var m Mesh
	for _, t := range tris {
		for _, i := range t {
			m.Vertices = append(m.Vertices, vec32(verts[i].Normalize())...)
		}
	}
	return m
}

func vec32(v mgl64.Vec3) []float32 {
	return []float32{float32(v[0]), float32(v[1]), float32(v[2])}
}

type Kernel struct {
	params  Params
	mesh    Mesh
	shadows bool

	angle  mgl64.Vec3
	offset []mgl64.Vec3
	models []float32

	hVerts, hInst, hUni resource.Handle
	uploaded            bool
}

func NewKernel(p Params) (*Kernel, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Instances <= 0 {
		p.Instances = 1
	}
	return &Kernel{params: p, mesh: shapes[p.Shape]()}, nil
}

// Spec holds one model matrix per instance; a shadow-map texture is included
// only when shadows are enabled.
func (k *Kernel) Spec(s quality.Settings) (resource.Spec, error) {
	n := max(1, min(k.params.Instances, s.MaxPrimitives))
	spec := resource.Spec{
		Count: n,
		Buffers: []resource.BufferSpec{
			{Label: bufVertices, Size: uint64(len(k.mesh.Vertices)) * 4, Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst},
			resource.FloatBuffer(bufInstances, n, 16, gputypes.BufferUsageStorage),
			resource.UniformBuffer(bufUniforms, 16),
		},
	}
	if s.ShadowsEnabled {
		spec.Textures = append(spec.Textures, resource.TextureSpec{
			Label:  texShadow,
			Width:  shadowMapSize,
			Height: shadowMapSize,
			Format: gputypes.TextureFormatDepth32Float,
			Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
		})
	}
	return spec, nil
}

func (k *Kernel) Setup(_ *resource.Manager, g *resource.Generation, s quality.Settings) error {
	var err error
	if k.hVerts, err = g.Handle(bufVertices); err != nil {
		return err
	}
	if k.hInst, err = g.Handle(bufInstances); err != nil {
		return err
	}
	if k.hUni, err = g.Handle(bufUniforms); err != nil {
		return err
	}
	_, herr := g.Handle(texShadow)
	k.shadows = s.ShadowsEnabled && herr == nil

	n := g.Count()
	side := int(math.Ceil(math.Sqrt(float64(n))))
	k.offset = make([]mgl64.Vec3, n)
	for i := range k.offset {
		x := float64(i%side) - float64(side-1)/2
		z := float64(i/side) - float64(side-1)/2
		k.offset[i] = mgl64.Vec3{x * k.params.Spacing, 0, z * k.params.Spacing}
	}
	k.models = make([]float32, n*16)
	k.uploaded = false
	return nil
}

// Model returns the model matrix of instance i.
func (k *Kernel) Model(i int) mgl64.Mat4 {
	phase := float64(i) * 0.3
	rot := mgl64.HomogRotate3DX(k.angle[0] + phase).
		Mul4(mgl64.HomogRotate3DY(k.angle[1] + phase)).
		Mul4(mgl64.HomogRotate3DZ(k.angle[2]))
	o := k.offset[i]
	return mgl64.Translate3D(o[0], o[1], o[2]).Mul4(rot)
}

func (k *Kernel) Tick(in core.FrameInput) {
	dt := math.Min(in.Dt, 0.1)
	if !(dt > 0) {
		return
	}
	spin := mgl64.Vec3(k.params.Spin)
	if in.Pointer.Active && core.Finite(in.Pointer.X, in.Pointer.Y) {
		spin = spin.Add(mgl64.Vec3{in.Pointer.Y, in.Pointer.X, 0})
	}
	k.angle = k.angle.Add(spin.Mul(dt))
	for i := range 3 {
		k.angle[i] = math.Mod(k.angle[i], 2*math.Pi)
	}
}

func (k *Kernel) Render(g *resource.Generation) error {
	if !k.uploaded {
		if err := g.WriteFloats(k.hVerts, k.mesh.Vertices); err != nil {
			return err
		}
		k.uploaded = true
	}
	for i := range k.offset {
		m := k.Model(i)
		for j, v := range m {
			k.models[i*16+j] = float32(v)
		}
	}
	if err := g.WriteFloats(k.hInst, k.models); err != nil {
		return err
	}
	shadow := float32(0)
	if k.shadows {
		shadow = 1
	}
	u := [16]float32{float32(k.angle[0]), float32(k.angle[1]), float32(k.angle[2]), shadow}
	return g.WriteFloats(k.hUni, u[:])
}

func (k *Kernel) Apply(_ *resource.Manager, _ *resource.Generation, a core.Action) error {
	switch a.Kind {
	case core.ActionReset:
		k.angle = mgl64.Vec3{}
	case core.ActionKick:
		if !core.Finite(a.Vec[:]...) {
			return core.Errorf(core.KindSimulationStateInvalid, "geometry.Kick", "non-finite kick %v", a.Vec)
		}
		k.angle = k.angle.Add(mgl64.Vec3(a.Vec))
	case core.ActionSetParam:
		if !core.Finite(a.Value) {
			return core.Errorf(core.KindSimulationStateInvalid, "geometry.SetParam", "non-finite %s", a.Name)
		}
		switch a.Name {
		case "spin_x":
			k.params.Spin[0] = a.Value
		case "spin_y":
			k.params.Spin[1] = a.Value
		case "spin_z":
			k.params.Spin[2] = a.Value
		default:
			return fmt.Errorf("geometry: unknown parameter %q", a.Name)
		}
	default:
		return fmt.Errorf("geometry: unsupported action %s", a.Kind)
	}
	return nil
}

func (k *Kernel) Metrics() map[string]float64 {
	return map[string]float64{"instances": float64(len(k.offset)), "triangles": float64(k.mesh.Len() / 3 * len(k.offset))}
}

// Points returns every mesh vertex of every instance in world space.
func (k *Kernel) Points() []mgl64.Vec3 {
	out := make([]mgl64.Vec3, 0, len(k.offset)*k.mesh.Len())
	for i := range k.offset {
		m := k.Model(i)
		for v := 0; v < k.mesh.Len(); v++ {
			p := k.mesh.Vertices[v*3:]
			out = append(out, m.Mul4x1(mgl64.Vec4{float64(p[0]), float64(p[1]), float64(p[2]), 1}).Vec3())
		}
	}
	return out
}
