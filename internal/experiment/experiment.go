// Package experiment holds the static catalog of experiments and the
// registry that builds a kernel for each experiment kind.
package experiment

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/gfxlab/internal/core"
	"github.com/san-kum/gfxlab/internal/quality"
	"github.com/san-kum/gfxlab/internal/resource"
	"gopkg.in/yaml.v3"
)

// Kernel is the per-experiment update and upload logic. The lifecycle
// controller calls Spec and Setup while initializing, then Tick and Render
// once per frame. Apply runs between ticks.
type Kernel interface {
	Spec(s quality.Settings) (resource.Spec, error)
	Setup(m *resource.Manager, g *resource.Generation, s quality.Settings) error
	Tick(in core.FrameInput)
	Render(g *resource.Generation) error
	Apply(m *resource.Manager, g *resource.Generation, a core.Action) error
	Metrics() map[string]float64
}

// PointSource is implemented by kernels that can show a point cloud in the
// terminal viewer.
type PointSource interface {
	Points() []mgl64.Vec3
}

type Kind uint8

const (
	KindGeometry Kind = iota + 1
	KindParticle
	KindShader
	KindPhysics
)

var kindNames = map[Kind]string{
	KindGeometry: "geometry",
	KindParticle: "particle",
	KindShader:   "shader",
	KindPhysics:  "physics",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown kind: %s", s)
}

func (k Kind) MarshalYAML() (any, error) { return k.String(), nil }

func (k *Kind) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseKind(n.Value)
	if err != nil {
		return err
	}
	*k = v
	return nil
}

type Difficulty uint8

const (
	Beginner Difficulty = iota + 1
	Intermediate
	Advanced
)

func (d Difficulty) String() string {
	switch d {
	case Beginner:
		return "beginner"
	case Intermediate:
		return "intermediate"
	case Advanced:
		return "advanced"
	default:
		return "unknown"
	}
}

func ParseDifficulty(s string) (Difficulty, error) {
	for _, d := range []Difficulty{Beginner, Intermediate, Advanced} {
		if strings.EqualFold(s, d.String()) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown difficulty: %s", s)
}

func (d Difficulty) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Difficulty) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseDifficulty(n.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MemoryClass is a rough hint of how much device memory an experiment wants.
type MemoryClass uint8

const (
	MemoryLow MemoryClass = iota + 1
	MemoryMedium
	MemoryHigh
)

func (m MemoryClass) String() string {
	switch m {
	case MemoryLow:
		return "low"
	case MemoryMedium:
		return "medium"
	case MemoryHigh:
		return "high"
	default:
		return "unknown"
	}
}

func ParseMemoryClass(s string) (MemoryClass, error) {
	for _, m := range []MemoryClass{MemoryLow, MemoryMedium, MemoryHigh} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown memory class: %s", s)
}

func (m MemoryClass) MarshalYAML() (any, error) { return m.String(), nil }

func (m *MemoryClass) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseMemoryClass(n.Value)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Descriptor is a read-only catalog entry.
type Descriptor struct {
	ID                      string      `yaml:"id"`
	Title                   string      `yaml:"title"`
	Description             string      `yaml:"description"`
	Kind                    Kind        `yaml:"kind"`
	Difficulty              Difficulty  `yaml:"difficulty"`
	RequiresAdvancedShaders bool        `yaml:"requires_advanced_shaders"`
	BaselineMemoryClass     MemoryClass `yaml:"baseline_memory_class"`
	Tags                    []string    `yaml:"tags,omitempty"`
}

func (d Descriptor) validate() error {
	if d.ID == "" {
		return fmt.Errorf("descriptor %q has no id", d.Title)
	}
	if _, ok := kindNames[d.Kind]; !ok {
		return fmt.Errorf("descriptor %s: missing kind", d.ID)
	}
	return nil
}

// Catalog is an ordered list of descriptors with unique IDs.
type Catalog []Descriptor

func (c Catalog) Find(id string) (Descriptor, error) {
	for _, d := range c {
		if d.ID == id {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("unknown experiment: %s", id)
}

func (c Catalog) validate() error {
	seen := make(map[string]bool, len(c))
	for _, d := range c {
		if err := d.validate(); err != nil {
			return err
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate experiment id: %s", d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

func DefaultCatalog() Catalog {
	return Catalog{
		{
			ID:                  "rotating-solids",
			Title:               "Rotating Solids",
			Description:         "Instanced cubes spinning on three axes, with optional shadow mapping.",
			Kind:                KindGeometry,
			Difficulty:          Beginner,
			BaselineMemoryClass: MemoryLow,
			Tags:                []string{"3d", "transforms"},
		},
		{
			ID:                  "particle-swarm",
			Title:               "Particle Swarm",
			Description:         "Thousands of particles pulled toward the pointer through a noise field.",
			Kind:                KindParticle,
			Difficulty:          Intermediate,
			BaselineMemoryClass: MemoryMedium,
			Tags:                []string{"particles", "interaction"},
		},
		{
			ID:                      "shader-sandbox",
			Title:                   "Shader Sandbox",
			Description:             "Edit a WGSL fragment shader live; broken code keeps the last good program.",
			Kind:                    KindShader,
			Difficulty:              Advanced,
			RequiresAdvancedShaders: true,
			BaselineMemoryClass:     MemoryLow,
			Tags:                    []string{"wgsl", "shaders"},
		},
		{
			ID:                  "bouncing-spheres",
			Title:               "Bouncing Spheres",
			Description:         "Rigid spheres with gravity, restitution and pairwise impulse collisions.",
			Kind:                KindPhysics,
			Difficulty:          Intermediate,
			BaselineMemoryClass: MemoryMedium,
			Tags:                []string{"physics", "collisions"},
		},
	}
}

type catalogFile struct {
	Experiments Catalog `yaml:"experiments"`
}

// LoadCatalog reads a YAML catalog of the form "experiments: [...]".
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	if err := f.Experiments.validate(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return f.Experiments, nil
}

func SaveCatalog(path string, c Catalog) error {
	data, err := yaml.Marshal(catalogFile{Experiments: c})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
