package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/san-kum/gfxlab/internal/geometry"
	"github.com/san-kum/gfxlab/internal/particle"
	"github.com/san-kum/gfxlab/internal/physics"
	"github.com/san-kum/gfxlab/internal/quality"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSpheres   = 50
	DefaultParticles = 2000
	DefaultShader    = "gradient"
	DefaultDuration  = 10.0
	DefaultFrameRate = 60
	DefaultRunsDir   = "runs"
)

type Config struct {
	Seed      int64              `yaml:"seed"`
	Catalog   string             `yaml:"catalog,omitempty"`
	Physics   PhysicsConfig      `yaml:"physics"`
	Particles ParticleConfig     `yaml:"particles"`
	Geometry  geometry.Params    `yaml:"geometry"`
	Shader    ShaderConfig       `yaml:"shader"`
	Quality   quality.Thresholds `yaml:"quality"`
	Telemetry TelemetryConfig    `yaml:"telemetry"`
}

type PhysicsConfig struct {
	physics.Params `yaml:",inline"`
	Count          int `yaml:"count"`
}

type ParticleConfig struct {
	particle.Params `yaml:",inline"`
	Count           int `yaml:"count"`
}

type ShaderConfig struct {
	Initial string `yaml:"initial"`
	Debug   bool   `yaml:"debug"`
}

// TelemetryConfig drives headless runs: how long to run, at what simulated
// frame rate, and where runs are recorded.
type TelemetryConfig struct {
	Duration  float64 `yaml:"duration"`
	FrameRate int     `yaml:"frame_rate"`
	RunsDir   string  `yaml:"runs_dir"`
	Record    bool    `yaml:"record"`
}

func DefaultConfig() *Config {
	return &Config{
		Physics:   PhysicsConfig{Params: physics.DefaultParams(), Count: DefaultSpheres},
		Particles: ParticleConfig{Params: particle.DefaultParams(), Count: DefaultParticles},
		Geometry:  geometry.DefaultParams(),
		Shader:    ShaderConfig{Initial: DefaultShader},
		Quality:   quality.DefaultThresholds(),
		Telemetry: TelemetryConfig{
			Duration:  DefaultDuration,
			FrameRate: DefaultFrameRate,
			RunsDir:   DefaultRunsDir,
			Record:    true,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	var errs []error
	if err := c.Physics.Params.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Particles.Params.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Geometry.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Physics.Count <= 0 {
		errs = append(errs, fmt.Errorf("physics: count must be positive"))
	}
	if c.Particles.Count <= 0 {
		errs = append(errs, fmt.Errorf("particles: count must be positive"))
	}
	if c.Telemetry.Duration <= 0 {
		errs = append(errs, fmt.Errorf("telemetry: duration must be positive"))
	}
	if c.Telemetry.FrameRate <= 0 {
		errs = append(errs, fmt.Errorf("telemetry: frame rate must be positive"))
	}
	if c.Quality.TargetFPS < 0 {
		errs = append(errs, fmt.Errorf("quality: negative target fps"))
	}
	return errors.Join(errs...)
}

// Apply overlays the non-zero parts of a preset for one experiment kind.
func (c *Config) Apply(kind string, p *Config) {
	if p == nil {
		return
	}
	switch kind {
	case "physics":
		c.Physics = p.Physics
	case "particle":
		c.Particles = p.Particles
	case "geometry":
		c.Geometry = p.Geometry
	case "shader":
		c.Shader = p.Shader
	}
}
