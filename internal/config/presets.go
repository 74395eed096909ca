package config

import (
	"slices"

	"github.com/san-kum/gfxlab/internal/geometry"
	"github.com/san-kum/gfxlab/internal/particle"
	"github.com/san-kum/gfxlab/internal/physics"
)

func physicsPreset(count int, edit func(*physics.Params)) *Config {
	p := physics.DefaultParams()
	edit(&p)
	return &Config{Physics: PhysicsConfig{Params: p, Count: count}}
}

func particlePreset(count int, edit func(*particle.Params)) *Config {
	p := particle.DefaultParams()
	edit(&p)
	return &Config{Particles: ParticleConfig{Params: p, Count: count}}
}

var Presets = map[string]map[string]*Config{
	"physics": {
		"default": physicsPreset(DefaultSpheres, func(*physics.Params) {}),
		"rain": physicsPreset(120, func(p *physics.Params) {
			p.SpawnHeight = 10
			p.MinRadius, p.MaxRadius = 0.2, 0.4
		}),
		"pile": physicsPreset(200, func(p *physics.Params) {
			p.Restitution = 0.3
			p.HalfWidth, p.HalfDepth = 4, 4
			p.RestSpeed = 0.5
		}),
		"bouncy": physicsPreset(30, func(p *physics.Params) {
			p.Restitution = 0.95
			p.Friction = 1
		}),
	},
	"particle": {
		"default": particlePreset(DefaultParticles, func(*particle.Params) {}),
		"swarm": particlePreset(5000, func(p *particle.Params) {
			p.AttractorStrength = 6
			p.NoiseStrength = 1.5
		}),
		"calm": particlePreset(1000, func(p *particle.Params) {
			p.AttractorStrength = 0.5
			p.NoiseStrength = 0.1
			p.Palette = "ocean"
		}),
		"embers": particlePreset(3000, func(p *particle.Params) {
			p.Damping = 0.95
			p.Palette = "fire"
		}),
	},
	"geometry": {
		"cube":       {Geometry: geometry.Params{Shape: "cube", Instances: 9, Spin: [3]float64{0.7, 1.1, 0}, Spacing: 3}},
		"octahedron": {Geometry: geometry.Params{Shape: "octahedron", Instances: 16, Spin: [3]float64{0, 1.5, 0.4}, Spacing: 2.5}},
		"icosphere":  {Geometry: geometry.Params{Shape: "icosahedron", Instances: 25, Spin: [3]float64{0.3, 0.9, 0.2}, Spacing: 2.4}},
	},
	"shader": {
		"plasma":  {Shader: ShaderConfig{Initial: "plasma"}},
		"ripple":  {Shader: ShaderConfig{Initial: "ripple"}},
		"pointer": {Shader: ShaderConfig{Initial: "pointer_glow"}},
	},
}

func GetPreset(kind, preset string) *Config {
	kindPresets, ok := Presets[kind]
	if !ok {
		return nil
	}
	cfg, ok := kindPresets[preset]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(kind string) []string {
	kindPresets, ok := Presets[kind]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(kindPresets))
	for name := range kindPresets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
