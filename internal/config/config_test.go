package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Physics.Count != DefaultSpheres {
		t.Errorf("expected %d spheres, got %d", DefaultSpheres, cfg.Physics.Count)
	}
	if cfg.Physics.Gravity != 9.8 {
		t.Errorf("expected gravity 9.8, got %f", cfg.Physics.Gravity)
	}
	if cfg.Shader.Initial != DefaultShader {
		t.Errorf("expected shader %s, got %s", DefaultShader, cfg.Shader.Initial)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"restitution", func(c *Config) { c.Physics.Restitution = 1.5 }},
		{"damping", func(c *Config) { c.Particles.Damping = -1 }},
		{"spheres", func(c *Config) { c.Physics.Count = 0 }},
		{"particles", func(c *Config) { c.Particles.Count = -3 }},
		{"duration", func(c *Config) { c.Telemetry.Duration = 0 }},
		{"frame rate", func(c *Config) { c.Telemetry.FrameRate = 0 }},
		{"nan friction", func(c *Config) { c.Physics.Friction = math.NaN() }},
		{"nan damping", func(c *Config) { c.Particles.Damping = math.NaN() }},
		{"nan spin", func(c *Config) { c.Geometry.Spin[1] = math.NaN() }},
		{"shape", func(c *Config) { c.Geometry.Shape = "torus" }},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.edit(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gfxlab.yaml")
	data := "seed: 7\nphysics:\n  gravity: 3.5\n  count: 12\nquality:\n  target_fps: 45\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Seed != 7 || cfg.Physics.Gravity != 3.5 || cfg.Physics.Count != 12 {
		t.Errorf("yaml values not applied: %+v", cfg.Physics)
	}
	if cfg.Physics.Restitution != 0.8 {
		t.Errorf("expected default restitution to survive, got %f", cfg.Physics.Restitution)
	}
	if cfg.Quality.TargetFPS != 45 || cfg.Quality.DegradeAfter != 3 {
		t.Errorf("unexpected quality thresholds: %+v", cfg.Quality)
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("physics:\n  restitution: 4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := DefaultConfig()
	cfg.Particles.Palette = "fire"
	cfg.Geometry.Shape = "octahedron"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Particles.Palette != "fire" || got.Geometry.Shape != "octahedron" {
		t.Errorf("round trip lost values: %+v %+v", got.Particles, got.Geometry)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("physics", "pile")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Physics.Restitution != 0.3 {
		t.Errorf("expected restitution 0.3, got %f", cfg.Physics.Restitution)
	}
	if cfg.Physics.Gravity != 9.8 {
		t.Errorf("presets start from defaults, got gravity %f", cfg.Physics.Gravity)
	}
	if cfg.Physics.RestSpeed != 0.5 {
		t.Errorf("pile rest speed = %f, want 0.5", cfg.Physics.RestSpeed)
	}
	if DefaultConfig().Physics.RestSpeed != 0 {
		t.Error("default contacts must stay elastic by restitution")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if GetPreset("physics", "nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if GetPreset("nonexistent", "rain") != nil {
		t.Error("expected nil for nonexistent kind")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("particle")
	if len(presets) != 4 || presets[0] != "calm" {
		t.Errorf("expected sorted particle presets, got %v", presets)
	}
	if ListPresets("nonexistent") != nil {
		t.Error("expected nil for nonexistent kind")
	}
}

func TestPresetsValidate(t *testing.T) {
	for kind := range Presets {
		for _, name := range ListPresets(kind) {
			cfg := DefaultConfig()
			cfg.Apply(kind, GetPreset(kind, name))
			if err := cfg.Validate(); err != nil {
				t.Errorf("%s/%s: %v", kind, name, err)
			}
		}
	}
}
