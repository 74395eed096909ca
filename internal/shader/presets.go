package shader

import (
	"errors"
	"fmt"
	"slices"
)

type Preset struct {
	Name     string
	Title    string
	Fragment string
}

var builtins = []Preset{
	{Name: "gradient", Title: "Gradient", Fragment: mustRead("presets/gradient.wgsl")},
	{Name: "plasma", Title: "Plasma", Fragment: mustRead("presets/plasma.wgsl")},
	{Name: "ripple", Title: "Ripple", Fragment: mustRead("presets/ripple.wgsl")},
	{Name: "pointer_glow", Title: "Pointer glow", Fragment: mustRead("presets/pointer_glow.wgsl")},
}

// Builtins returns the built-in presets in display order.
func Builtins() []Preset {
	return slices.Clone(builtins)
}

// PresetSet is a catalog of presets that all compiled when it was loaded.
type PresetSet struct {
	order    []string
	presets  map[string]Preset
	programs map[string]*Program
}

// LoadPresets compiles every preset up front. Any failure fails the load,
// naming each broken preset.
func LoadPresets(c *Compiler, presets []Preset) (*PresetSet, error) {
	s := &PresetSet{
		presets:  make(map[string]Preset, len(presets)),
		programs: make(map[string]*Program, len(presets)),
	}
	var errs []error
	for _, p := range presets {
		if _, dup := s.presets[p.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate preset %q", p.Name))
			continue
		}
		prog, err := c.CompileFragment(p.Name, p.Fragment)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.order = append(s.order, p.Name)
		s.presets[p.Name] = p
		s.programs[p.Name] = prog
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("shader: loading presets: %w", err)
	}
	return s, nil
}

func (s *PresetSet) Names() []string { return slices.Clone(s.order) }

func (s *PresetSet) Get(name string) (Preset, *Program, error) {
	p, ok := s.presets[name]
	if !ok {
		return Preset{}, nil, fmt.Errorf("unknown preset: %s", name)
	}
	return p, s.programs[name], nil
}
