package viz

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/gfxlab/internal/core"
	"github.com/san-kum/gfxlab/internal/experiment"
	"github.com/san-kum/gfxlab/internal/host"
	"github.com/san-kum/gfxlab/internal/lifecycle"
	"github.com/san-kum/gfxlab/internal/particle"
)

const (
	width       = 60
	height      = 22
	pointerStep = 0.1
	frameRate   = 60
)

// brokenShader is what the B key sends to the sandbox.
const brokenShader = `@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(u.time, ;
}`

type TickMsg time.Time

type Options struct {
	Controller *lifecycle.Controller
	Scheduler  *host.ManualScheduler
	Registry   *experiment.Registry
	Catalog    experiment.Catalog
	Feed       *Feed
	// Start is the index into Catalog activated first.
	Start int
}

type Model struct {
	ctrl    *lifecycle.Controller
	sched   *host.ManualScheduler
	catalog experiment.Catalog
	feed    *Feed
	idx     int

	palettes []string
	presets  []string
	choice   int

	canvas  *Canvas
	camera  *Camera
	theme   Theme
	styles  styles
	px, py  float64
	pointer bool

	status   string
	showHelp bool
	err      error
}

func NewModel(o Options) Model {
	m := Model{
		ctrl:     o.Controller,
		sched:    o.Scheduler,
		catalog:  o.Catalog,
		feed:     o.Feed,
		idx:      o.Start,
		palettes: particle.Palettes(),
		canvas:   NewCanvas(width, height),
		theme:    Themes[0],
		styles:   newStyles(Themes[0]),
	}
	if len(m.catalog) > 0 {
		m.camera = cameraFor(m.catalog[m.idx].Kind)
	}
	if m.feed == nil {
		m.feed = &Feed{}
	}
	if o.Registry != nil {
		if _, set, err := o.Registry.ShaderPresets(); err == nil {
			m.presets = set.Names()
		}
	}
	return m
}

// Surface is the mount surface matching the canvas, one pixel per dot.
func (m Model) Surface() lifecycle.Surface {
	w, h := m.canvas.Dots()
	return lifecycle.Surface{Width: w, Height: h, PixelRatio: 1}
}

// Activate mounts the current catalog entry, disposing whatever ran before.
func (m *Model) Activate() error {
	m.ctrl.Dispose()
	d := m.catalog[m.idx]
	m.err = m.ctrl.Activate(context.Background(), d, m.Surface())
	m.camera = cameraFor(d.Kind)
	m.choice = 0
	m.status = "running"
	if m.err != nil {
		m.status = "failed"
	}
	return m.err
}

func cameraFor(k experiment.Kind) *Camera {
	switch k {
	case experiment.KindPhysics:
		return NewCamera(mgl64.Vec3{0, -8, 0}, 45)
	case experiment.KindGeometry:
		return NewCamera(mgl64.Vec3{}, 18)
	default:
		return NewCamera(mgl64.Vec3{}, 30)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())
	case tea.WindowSizeMsg:
		cols := max(msg.Width-54, 20)
		rows := max(msg.Height-4, 8)
		m.canvas.Resize(cols, rows)
		w, h := m.canvas.Dots()
		m.ctrl.OnViewportResize(w, h)
	case TickMsg:
		m.sched.Step(time.Time(msg))
		m.draw()
		return m, tick()
	}
	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	kind := m.catalog[m.idx].Kind
	switch key {
	case "q", "ctrl+c":
		m.ctrl.Dispose()
		return m, tea.Quit
	case " ":
		switch m.ctrl.State() {
		case lifecycle.Active:
			if m.ctrl.Suspend() == nil {
				m.status = "suspended"
			}
		case lifecycle.Suspended:
			if m.ctrl.Resume() == nil {
				m.status = "running"
			}
		}
	case "tab":
		m.idx = (m.idx + 1) % len(m.catalog)
		m.Activate()
	case "r":
		m.ctrl.Dispatch(core.Action{Kind: core.ActionReset})
	case "k":
		m.ctrl.Dispatch(core.Action{Kind: core.ActionKick})
	case "p":
		m.cycleChoice(kind)
	case "b":
		if kind == experiment.KindShader {
			m.ctrl.Dispatch(core.Action{Kind: core.ActionCompileShader, Source: brokenShader})
		}
	case "up":
		m.movePointer(0, pointerStep)
	case "down":
		m.movePointer(0, -pointerStep)
	case "left":
		m.movePointer(-pointerStep, 0)
	case "right":
		m.movePointer(pointerStep, 0)
	case "esc":
		m.pointer = false
		m.ctrl.ClearPointer()
	case "x":
		m.camera.Rotate(0.1, 0)
	case "X":
		m.camera.Rotate(-0.1, 0)
	case "y":
		m.camera.Rotate(0, 0.1)
	case "Y":
		m.camera.Rotate(0, -0.1)
	case "+", "=":
		m.camera.Zoom(1 / 1.2)
	case "-", "_":
		m.camera.Zoom(1.2)
	case "t":
		m.theme = nextTheme(m.theme.Name)
		m.styles = newStyles(m.theme)
	case "?":
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m *Model) movePointer(dx, dy float64) {
	m.px = core.Clamp(m.px+dx, -1, 1)
	m.py = core.Clamp(m.py+dy, -1, 1)
	m.pointer = true
	m.ctrl.SetPointer(m.px, m.py)
}

func (m *Model) cycleChoice(kind experiment.Kind) {
	var names []string
	var action core.ActionKind
	switch kind {
	case experiment.KindParticle:
		names, action = m.palettes, core.ActionSetPalette
	case experiment.KindShader:
		names, action = m.presets, core.ActionSelectPreset
	}
	if len(names) == 0 {
		return
	}
	m.choice = (m.choice + 1) % len(names)
	m.ctrl.Dispatch(core.Action{Kind: action, Name: names[m.choice]})
}

func (m *Model) draw() {
	m.canvas.Clear()
	if m.camera == nil {
		return
	}
	var points []mgl64.Vec3
	m.ctrl.Inspect(func(k experiment.Kernel) {
		if ps, ok := k.(experiment.PointSource); ok {
			points = ps.Points()
		}
	})
	w, h := m.canvas.Dots()
	viewProj := m.ctrl.Projection().Mul4(m.camera.View())
	for _, p := range points {
		if x, y, ok := Project(viewProj, p, w, h); ok {
			m.canvas.Set(x, y)
		}
	}
	if m.pointer {
		x := int((m.px + 1) / 2 * float64(w-1))
		y := int((1 - m.py) / 2 * float64(h-1))
		m.canvas.Cross(x, y, 3)
	}
}

func (m Model) View() string {
	st := m.styles
	d := m.catalog[m.idx]
	var s strings.Builder

	s.WriteString(st.header.Render(strings.ToUpper(d.Title)) + "\n")
	state := m.ctrl.State()
	switch state {
	case lifecycle.Active:
		s.WriteString(st.good.Render(strings.ToUpper(state.String())) + "\n\n")
	case lifecycle.Suspended:
		s.WriteString(st.warn.Render(strings.ToUpper(state.String())) + "\n\n")
	default:
		s.WriteString(st.bad.Render(strings.ToUpper(state.String())) + "\n\n")
	}

	stats := m.feed.Stats()
	if len(stats) > 1 {
		fps := make([]float64, len(stats))
		for i, f := range stats {
			fps[i] = float64(f.FPS)
		}
		chart := asciigraph.Plot(fps, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("FPS"))
		s.WriteString(st.graph.Render(chart) + "\n\n")
	}

	row := func(label, value string) {
		s.WriteString(st.label.Render(label) + st.value.Render(value) + "\n")
	}
	if last, ok := m.ctrl.LastStats(); ok {
		row("FPS", fmt.Sprintf("%d", last.FPS))
		row("Frame", fmt.Sprintf("%.2f ms", last.FrameTimeMs))
		row("Memory", fmt.Sprintf("%.2f MB", last.MemoryMB))
	}
	q := m.ctrl.Settings()
	row("Quality", fmt.Sprintf("%s (rung %d)", q.Level, q.Rung))
	row("Primitives", fmt.Sprintf("%d", q.MaxPrimitives))
	row("Shadows", fmt.Sprintf("%v", q.ShadowsEnabled))

	metrics := m.ctrl.Metrics()
	if len(metrics) > 0 {
		s.WriteString("\nMETRICS\n")
		for _, k := range slices.Sorted(maps.Keys(metrics)) {
			row(k, fmt.Sprintf("%.3f", metrics[k]))
		}
	}

	if m.err != nil {
		s.WriteString("\n" + st.bad.Render(wrap(m.err.Error(), 40)) + "\n")
	} else if e := m.feed.LastError(); e != nil {
		s.WriteString("\n" + st.bad.Render(wrap(e.Error(), 40)) + "\n")
	}

	s.WriteString(st.help.Render("SP:Suspend TAB:Next R:Reset K:Kick\nP:Palette/Preset ←↑↓→:Pointer\nT:Theme ?:Help Q:Quit"))

	main := lipgloss.JoinHorizontal(lipgloss.Top, st.canvas.Render(m.canvas.String()), st.panel.Render(s.String()))
	if m.showHelp {
		return st.panel.Render(helpText) + "\n" + main
	}
	return main
}

const helpText = `Space   suspend or resume the frame loop
Tab     dispose and activate the next experiment
Arrows  move the pointer (Esc releases it)
R / K   reset / kick the simulation
P       next particle palette or shader preset
B       send a broken shader to the sandbox
X Y     orbit the camera, + - zoom
T       cycle themes`

func wrap(s string, n int) string {
	var b strings.Builder
	line := 0
	for _, word := range strings.Fields(s) {
		if line > 0 && line+len(word)+1 > n {
			b.WriteByte('\n')
			line = 0
		} else if line > 0 {
			b.WriteByte(' ')
			line++
		}
		b.WriteString(word)
		line += len(word)
	}
	return b.String()
}

// Run activates the starting experiment and blocks until the viewer quits.
func Run(o Options) error {
	m := NewModel(o)
	m.Activate()
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
