package experiment

import (
	"fmt"
	"slices"
	"sync"

	"github.com/san-kum/gfxlab/internal/config"
	"github.com/san-kum/gfxlab/internal/geometry"
	"github.com/san-kum/gfxlab/internal/particle"
	"github.com/san-kum/gfxlab/internal/physics"
	"github.com/san-kum/gfxlab/internal/shader"
)

type Registry struct {
	cfg     *config.Config
	kernels map[Kind]func() (Kernel, error)

	presetsOnce sync.Once
	sources     []shader.Preset
	compiler    *shader.Compiler
	presets     *shader.PresetSet
	presetsErr  error
}

func NewRegistry(cfg *config.Config) *Registry {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	r := &Registry{
		cfg:     cfg,
		kernels: make(map[Kind]func() (Kernel, error)),
		sources: shader.Builtins(),
	}

	r.kernels[KindPhysics] = func() (Kernel, error) {
		if err := cfg.Physics.Params.Validate(); err != nil {
			return nil, err
		}
		return physics.NewKernel(cfg.Physics.Params, cfg.Physics.Count, cfg.Seed), nil
	}
	r.kernels[KindParticle] = func() (Kernel, error) {
		if err := cfg.Particles.Params.Validate(); err != nil {
			return nil, err
		}
		return particle.NewKernel(cfg.Particles.Params, cfg.Particles.Count, cfg.Seed), nil
	}
	r.kernels[KindGeometry] = func() (Kernel, error) {
		return geometry.NewKernel(cfg.Geometry)
	}
	r.kernels[KindShader] = func() (Kernel, error) {
		c, set, err := r.ShaderPresets()
		if err != nil {
			return nil, err
		}
		return shader.NewSandbox(c, set, cfg.Shader.Initial), nil
	}

	return r
}

// ShaderPresets compiles the built-in presets once; later calls return the
// same set or the same error.
func (r *Registry) ShaderPresets() (*shader.Compiler, *shader.PresetSet, error) {
	r.presetsOnce.Do(func() {
		r.compiler = shader.NewCompiler().WithDebug(r.cfg.Shader.Debug)
		r.presets, r.presetsErr = shader.LoadPresets(r.compiler, r.sources)
	})
	return r.compiler, r.presets, r.presetsErr
}

// Catalog loads the catalog at path, or the default catalog when path is
// empty, and checks it against the registry. Shader presets are compiled
// here when the catalog has a shader entry, so a broken preset fails the
// load instead of the first activation.
func (r *Registry) Catalog(path string) (Catalog, error) {
	c := DefaultCatalog()
	if path != "" {
		var err error
		if c, err = LoadCatalog(path); err != nil {
			return nil, err
		}
	}
	for _, d := range c {
		if _, ok := r.kernels[d.Kind]; !ok {
			return nil, fmt.Errorf("catalog: %s: no kernel for kind %s", d.ID, d.Kind)
		}
	}
	if slices.ContainsFunc(c, func(d Descriptor) bool { return d.Kind == KindShader }) {
		if _, _, err := r.ShaderPresets(); err != nil {
			return nil, fmt.Errorf("catalog: shader presets: %w", err)
		}
	}
	return c, nil
}

// Register replaces the constructor for a kind.
func (r *Registry) Register(k Kind, fn func() (Kernel, error)) {
	r.kernels[k] = fn
}

func (r *Registry) NewKernel(d Descriptor) (Kernel, error) {
	fn, ok := r.kernels[d.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown kind: %s", d.Kind)
	}
	k, err := fn()
	if err != nil {
		return nil, fmt.Errorf("experiment %s: %w", d.ID, err)
	}
	return k, nil
}

func (r *Registry) ListKinds() []string {
	names := make([]string, 0, len(r.kernels))
	for k := range r.kernels {
		names = append(names, k.String())
	}
	slices.Sort(names)
	return names
}
