package viz

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/gfxlab/internal/capability"
	"github.com/san-kum/gfxlab/internal/config"
	"github.com/san-kum/gfxlab/internal/experiment"
	"github.com/san-kum/gfxlab/internal/host"
	"github.com/san-kum/gfxlab/internal/lifecycle"
	"github.com/san-kum/gfxlab/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanvas_Dots(t *testing.T) {
	c := NewCanvas(2, 1)
	w, h := c.Dots()
	assert.Equal(t, 4, w)
	assert.Equal(t, 4, h)

	c.Set(0, 0)
	c.Set(3, 3)
	c.Set(99, 99)
	assert.True(t, c.IsSet(0, 0))
	assert.True(t, c.IsSet(3, 3))
	assert.False(t, c.IsSet(1, 0))
	assert.Equal(t, string([]rune{0x2801, 0x2880}), c.String())

	c.Unset(0, 0)
	assert.False(t, c.IsSet(0, 0))
	c.Clear()
	assert.Equal(t, string([]rune{0x2800, 0x2800}), c.String())
}

func TestCanvas_DrawLine(t *testing.T) {
	c := NewCanvas(4, 1)
	c.DrawLine(0, 0, 7, 3)
	assert.True(t, c.IsSet(0, 0))
	assert.True(t, c.IsSet(7, 3))
}

func TestProject(t *testing.T) {
	cam := NewCamera(mgl64.Vec3{}, 10)
	viewProj := mgl64.Perspective(mgl64.DegToRad(45), 1, 0.1, 100).Mul4(cam.View())

	x, y, ok := Project(viewProj, mgl64.Vec3{}, 101, 101)
	require.True(t, ok)
	assert.Equal(t, 50, x)
	assert.Equal(t, 50, y)

	behind := cam.Eye().Mul(2)
	_, _, ok = Project(viewProj, behind, 101, 101)
	assert.False(t, ok)
}

func TestCamera_Clamps(t *testing.T) {
	cam := NewCamera(mgl64.Vec3{}, 10)
	cam.Rotate(0, 10)
	assert.Less(t, cam.Pitch, 1.6)
	cam.Zoom(0)
	assert.Greater(t, cam.Distance, 0.0)
}

func TestThemes(t *testing.T) {
	assert.Equal(t, "neon", GetTheme("missing").Name)
	names := ThemeNames()
	require.NotEmpty(t, names)
	assert.Equal(t, names[1%len(names)], nextTheme(names[0]).Name)
}

func newTestModel(t *testing.T) (Model, *lifecycle.Controller, *Feed) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Particles.Count = 200
	h, dev, err := host.NewHeadless("integrated", 0)
	require.NoError(t, err)

	feed := &Feed{}
	sched := host.NewManualScheduler()
	registry := experiment.NewRegistry(cfg)
	ctrl := lifecycle.New(lifecycle.Options{
		Registry:   registry,
		Resources:  resource.NewManager(dev),
		Capability: capability.NewCache(h),
		Scheduler:  sched,
		Telemetry:  feed,
		Errors:     feed,
	})
	m := NewModel(Options{
		Controller: ctrl,
		Scheduler:  sched,
		Registry:   registry,
		Catalog:    experiment.DefaultCatalog(),
		Feed:       feed,
	})
	require.NoError(t, m.Activate())
	t.Cleanup(ctrl.Dispose)
	return m, ctrl, feed
}

func key(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestModel_TicksDriveFrames(t *testing.T) {
	m, ctrl, feed := newTestModel(t)
	now := time.Unix(1000, 0)
	for i := range 130 {
		var cmd tea.Cmd
		m, cmd = update(m, TickMsg(now.Add(time.Duration(i)*time.Second/60)))
		require.NotNil(t, cmd)
	}
	assert.Equal(t, uint64(130), ctrl.Frames())
	assert.NotEmpty(t, feed.Stats())
	assert.Nil(t, feed.LastError())

	blank := strings.Count(m.canvas.String(), string(rune(brailleBlank)))
	assert.Less(t, blank, m.canvas.Width*m.canvas.Height, "solids should be drawn")
	assert.Contains(t, m.View(), "ROTATING SOLIDS")
}

func TestModel_Keys(t *testing.T) {
	m, ctrl, _ := newTestModel(t)

	m, _ = update(m, key(" "))
	assert.Equal(t, lifecycle.Suspended, ctrl.State())
	m, _ = update(m, key(" "))
	assert.Equal(t, lifecycle.Active, ctrl.State())

	m, _ = update(m, key("tab"))
	assert.Equal(t, "particle-swarm", ctrl.Descriptor().ID)
	assert.Equal(t, lifecycle.Active, ctrl.State())

	theme := m.theme.Name
	m, _ = update(m, key("t"))
	assert.NotEqual(t, theme, m.theme.Name)

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyUp})
	assert.True(t, m.pointer)
	assert.InDelta(t, pointerStep, m.py, 1e-12)

	m, cmd := update(m, key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, lifecycle.Disposed, ctrl.State())
}

func TestModel_BrokenShaderReported(t *testing.T) {
	m, ctrl, feed := newTestModel(t)
	m, _ = update(m, key("tab"))
	m, _ = update(m, key("tab"))
	require.Equal(t, "shader-sandbox", ctrl.Descriptor().ID)

	frames := ctrl.Frames()
	m, _ = update(m, key("b"))
	require.NotNil(t, feed.LastError())
	assert.Equal(t, frames, ctrl.Frames(), "compile must not wait for a frame")
	assert.Contains(t, m.View(), "ShaderCompileError")

	m, _ = update(m, TickMsg(time.Unix(1000, 0)))
	assert.Equal(t, 1, feed.Errors())
}

func TestModel_Resize(t *testing.T) {
	m, _, _ := newTestModel(t)
	m, _ = update(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Equal(t, 66, m.canvas.Width)
	assert.Equal(t, 36, m.canvas.Height)
}
