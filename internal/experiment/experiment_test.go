package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/gfxlab/internal/capability"
	"github.com/san-kum/gfxlab/internal/config"
	"github.com/san-kum/gfxlab/internal/core"
	"github.com/san-kum/gfxlab/internal/gpu"
	"github.com/san-kum/gfxlab/internal/quality"
	"github.com/san-kum/gfxlab/internal/resource"
	"github.com/san-kum/gfxlab/internal/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	require.NoError(t, c.validate())

	kinds := map[Kind]bool{}
	for _, d := range c {
		kinds[d.Kind] = true
	}
	assert.Len(t, kinds, 4, "every kind has an entry")

	d, err := c.Find("shader-sandbox")
	require.NoError(t, err)
	assert.True(t, d.RequiresAdvancedShaders)

	_, err = c.Find("nope")
	assert.Error(t, err)
}

func TestParseEnums(t *testing.T) {
	k, err := ParseKind("Physics")
	require.NoError(t, err)
	assert.Equal(t, KindPhysics, k)
	_, err = ParseKind("audio")
	assert.Error(t, err)

	d, err := ParseDifficulty("advanced")
	require.NoError(t, err)
	assert.Equal(t, Advanced, d)

	m, err := ParseMemoryClass("medium")
	require.NoError(t, err)
	assert.Equal(t, MemoryMedium, m)
	assert.Equal(t, "unknown", Kind(0).String())
}

func TestCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, SaveCatalog(path, DefaultCatalog()))

	got, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), got)
}

func TestLoadCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad kind", "experiments:\n  - id: a\n    kind: audio\n"},
		{"no kind", "experiments:\n  - id: a\n    title: A\n"},
		{"no id", "experiments:\n  - title: A\n    kind: shader\n"},
		{"duplicate", "experiments:\n  - id: a\n    kind: shader\n  - id: a\n    kind: physics\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))
			_, err := LoadCatalog(path)
			assert.Error(t, err)
		})
	}
}

func TestRegistry_BuildsEveryKind(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Physics.Count = 10
	cfg.Particles.Count = 100
	r := NewRegistry(cfg)
	assert.Equal(t, []string{"geometry", "particle", "physics", "shader"}, r.ListKinds())

	s := quality.Baseline(capability.Conservative(), 0)
	for _, d := range DefaultCatalog() {
		t.Run(d.ID, func(t *testing.T) {
			k, err := r.NewKernel(d)
			require.NoError(t, err)

			m := resource.NewManager(gpu.NewHeadless(gpu.HeadlessOptions{}))
			spec, err := k.Spec(s)
			require.NoError(t, err)
			g, err := m.ReplaceAll(spec)
			require.NoError(t, err)
			require.NoError(t, k.Setup(m, g, s))

			k.Tick(core.FrameInput{Dt: 1.0 / 60, Time: 1.0 / 60, Viewport: core.Viewport{Width: 80, Height: 24, PixelRatio: 1}})
			require.NoError(t, k.Render(g))
			assert.NotNil(t, k.Metrics())

			m.Dispose(g)
			assert.Zero(t, m.LiveObjects())
		})
	}
}

func TestRegistry_Errors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Geometry.Shape = "teapot"
	r := NewRegistry(cfg)

	_, err := r.NewKernel(Descriptor{ID: "x", Kind: Kind(99)})
	assert.EqualError(t, err, "unknown kind: unknown")

	_, err = r.NewKernel(Descriptor{ID: "solids", Kind: KindGeometry})
	assert.ErrorContains(t, err, "solids")

	r.Register(KindGeometry, func() (Kernel, error) { return nil, assert.AnError })
	_, err = r.NewKernel(Descriptor{ID: "solids", Kind: KindGeometry})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRegistry_CatalogCompilesPresets(t *testing.T) {
	r := NewRegistry(nil)
	c, err := r.Catalog("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), c)
	require.NotNil(t, r.presets, "presets compiled at load")
	assert.Equal(t, []string{"gradient", "plasma", "ripple", "pointer_glow"}, r.presets.Names())

	r = NewRegistry(nil)
	r.sources = append(r.sources, shader.Preset{Name: "broken", Fragment: "fn fs_main( {"})
	_, err = r.Catalog("")
	assert.ErrorContains(t, err, "shader presets")
	_, err = r.NewKernel(Descriptor{ID: "sandbox", Kind: KindShader})
	assert.Error(t, err, "the compile error sticks")

	r = NewRegistry(nil)
	r.sources = []shader.Preset{{Name: "broken", Fragment: "fn fs_main( {"}}
	c = Catalog{DefaultCatalog()[0]}
	require.NotEqual(t, KindShader, c[0].Kind)
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, SaveCatalog(path, c))
	_, err = r.Catalog(path)
	assert.NoError(t, err, "no shader entry, presets stay lazy")
	assert.Nil(t, r.presets)
}
