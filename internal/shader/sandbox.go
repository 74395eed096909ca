package shader

import (
	"fmt"

	"github.com/san-kum/gfxlab/internal/core"
	"github.com/san-kum/gfxlab/internal/quality"
	"github.com/san-kum/gfxlab/internal/resource"
)

const (
	labelProgram  = "program"
	labelUniforms = "uniforms"
)

// Uniforms is the per-frame feed, written every frame whatever is bound.
type Uniforms struct {
	Time          float64
	Width, Height float64
	Pointer       core.Pointer
	Params        [4]float32
}

// Pack lays the values out as the 16-float block declared in [Prelude].
func (u Uniforms) Pack() [16]float32 {
	var out [16]float32
	out[0] = float32(u.Time)
	out[4] = float32(u.Width)
	out[5] = float32(u.Height)
	out[8] = float32(u.Pointer.X)
	out[9] = float32(u.Pointer.Y)
	if u.Pointer.Active {
		out[10] = 1
	}
	copy(out[12:], u.Params[:])
	return out
}

// Sandbox keeps exactly one bound program and swaps it only when a new one
// compiles and uploads.
type Sandbox struct {
	compiler *Compiler
	presets  *PresetSet
	initial  string

	bound    *Program
	lastErr  error
	uniforms Uniforms
	ratioCap float64

	hProgram, hUniforms resource.Handle
}

func NewSandbox(c *Compiler, presets *PresetSet, initial string) *Sandbox {
	return &Sandbox{compiler: c, presets: presets, initial: initial}
}

// Bound is the program currently in use.
func (s *Sandbox) Bound() *Program { return s.bound }

// LastError is the most recent compile failure, cleared by a good compile.
func (s *Sandbox) LastError() error { return s.lastErr }

func (s *Sandbox) Spec(_ quality.Settings) (resource.Spec, error) {
	prog := s.bound
	if prog == nil {
		_, p, err := s.presets.Get(s.initial)
		if err != nil {
			return resource.Spec{}, core.Wrap(core.KindShaderCompile, "shader.Spec", err)
		}
		prog = p
	}
	return resource.Spec{
		Count:    1,
		Buffers:  []resource.BufferSpec{resource.UniformBuffer(labelUniforms, 16)},
		Programs: []resource.ProgramSpec{{Label: labelProgram, SPIRV: prog.SPIRV}},
	}, nil
}

func (s *Sandbox) Setup(_ *resource.Manager, g *resource.Generation, st quality.Settings) error {
	var err error
	if s.hProgram, err = g.Handle(labelProgram); err != nil {
		return err
	}
	if s.hUniforms, err = g.Handle(labelUniforms); err != nil {
		return err
	}
	if s.bound == nil {
		_, s.bound, err = s.presets.Get(s.initial)
	}
	s.ratioCap = st.PixelRatioCap
	return err
}

func (s *Sandbox) Tick(in core.FrameInput) {
	w, h := in.Viewport.DrawSize(s.ratioCap)
	s.uniforms.Time = in.Time
	s.uniforms.Width, s.uniforms.Height = float64(w), float64(h)
	s.uniforms.Pointer = in.Pointer
}

func (s *Sandbox) Render(g *resource.Generation) error {
	u := s.uniforms.Pack()
	return g.WriteFloats(s.hUniforms, u[:])
}

// Apply handles compile and preset actions. A compile failure is returned
// as a ShaderCompileError and leaves the bound program in place.
func (s *Sandbox) Apply(m *resource.Manager, g *resource.Generation, a core.Action) error {
	switch a.Kind {
	case core.ActionCompileShader:
		prog, err := s.compiler.CompileFragment("custom", a.Source)
		if err != nil {
			s.lastErr = err
			return err
		}
		return s.bind(m, g, prog)
	case core.ActionSelectPreset:
		_, prog, err := s.presets.Get(a.Name)
		if err != nil {
			return err
		}
		return s.bind(m, g, prog)
	case core.ActionSetParam:
		var i int
		if _, err := fmt.Sscanf(a.Name, "param%d", &i); err != nil || i < 0 || i > 3 {
			return fmt.Errorf("shader: unknown parameter %q", a.Name)
		}
		if !core.Finite(a.Value) {
			return core.Errorf(core.KindSimulationStateInvalid, "shader.SetParam", "non-finite %s", a.Name)
		}
		s.uniforms.Params[i] = float32(a.Value)
		return nil
	default:
		return fmt.Errorf("shader: unsupported action %s", a.Kind)
	}
}

func (s *Sandbox) bind(m *resource.Manager, g *resource.Generation, prog *Program) error {
	h, err := m.ReplaceProgram(g, labelProgram, prog.SPIRV)
	if err != nil {
		s.lastErr = err
		return err
	}
	s.hProgram = h
	s.bound = prog
	s.lastErr = nil
	core.Logger().Info("shader: program bound", "name", prog.Name, "hash", prog.Hash)
	return nil
}

func (s *Sandbox) Metrics() map[string]float64 {
	failed := 0.0
	if s.lastErr != nil {
		failed = 1
	}
	return map[string]float64{"compile_failed": failed}
}
