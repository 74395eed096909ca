package lifecycle

import (
	"context"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/gfxlab/internal/capability"
	"github.com/san-kum/gfxlab/internal/core"
	"github.com/san-kum/gfxlab/internal/experiment"
	"github.com/san-kum/gfxlab/internal/quality"
	"github.com/san-kum/gfxlab/internal/resource"
	"github.com/san-kum/gfxlab/internal/telemetry"
)

const (
	fovY  = 45.0
	zNear = 0.1
	zFar  = 100.0
)

type Options struct {
	Registry   *experiment.Registry
	Resources  *resource.Manager
	Capability *capability.Cache
	Scheduler  Scheduler
	Telemetry  telemetry.Sink
	Errors     ErrorSink
	Thresholds quality.Thresholds
	// Window is the telemetry window span. Zero means one second.
	Window time.Duration
}

// Controller owns the active experiment, its kernel and its generation of
// device resources. All methods are safe for concurrent use.
type Controller struct {
	opts Options

	mu         sync.Mutex
	state      State
	epoch      uint64
	pending    FrameID
	hasPending bool

	desc       experiment.Descriptor
	kernel     experiment.Kernel
	gen        *resource.Generation
	policy     *quality.Policy
	viewport   core.Viewport
	projection mgl64.Mat4
	pointer    core.Pointer
	actions    []core.Action

	window    *telemetry.Window
	lastFrame time.Time
	simTime   float64
	frames    uint64

	settings atomic.Pointer[quality.Settings]
	last     atomic.Pointer[core.FrameStats]
}

func New(opts Options) *Controller {
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.SinkFunc(func(core.FrameStats) {})
	}
	if opts.Errors == nil {
		opts.Errors = ErrorSinkFunc(func(*core.Error) {})
	}
	return &Controller{opts: opts}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Settings returns the quality settings in effect. The zero value is
// returned before the first activation.
func (c *Controller) Settings() quality.Settings {
	if s := c.settings.Load(); s != nil {
		return *s
	}
	return quality.Settings{}
}

// LastStats is the most recent telemetry window, if any.
func (c *Controller) LastStats() (core.FrameStats, bool) {
	if s := c.last.Load(); s != nil {
		return *s, true
	}
	return core.FrameStats{}, false
}

func (c *Controller) Descriptor() experiment.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desc
}

func (c *Controller) Projection() mgl64.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

func (c *Controller) Frames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Metrics merges the kernel's metrics with the telemetry window metrics.
func (c *Controller) Metrics() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]float64{}
	if c.kernel != nil {
		for k, v := range c.kernel.Metrics() {
			out[k] = v
		}
	}
	if c.window != nil {
		for k, v := range c.window.Metrics() {
			out[k] = v
		}
	}
	return out
}

// Inspect runs fn with the active kernel while no frame is in flight.
func (c *Controller) Inspect(fn func(k experiment.Kernel)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kernel != nil {
		fn(c.kernel)
	}
}

func (c *Controller) publish(s quality.Settings) {
	c.settings.Store(&s)
}

// Activate brings up an experiment on surface. It is valid from
// Uninitialized or Disposed. On any failure partial resources are released,
// the error goes to the error sink and the controller is Uninitialized again.
func (c *Controller) Activate(ctx context.Context, d experiment.Descriptor, surface Surface) error {
	const op = "lifecycle.Activate"
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Uninitialized && c.state != Disposed {
		return transitionError(op, c.state)
	}
	c.setState(Initializing)
	if c.gen != nil {
		c.opts.Resources.Dispose(c.gen)
		c.gen = nil
	}
	c.kernel = nil

	if err := c.activate(ctx, d, surface); err != nil {
		e := asError(core.KindUnknown, op, err)
		c.rollback()
		core.Logger().Warn("lifecycle: activation failed", "experiment", d.ID, "kind", e.Kind, "err", e)
		c.opts.Errors.Report(e)
		return e
	}

	c.setState(Active)
	core.Logger().Info("lifecycle: active", "experiment", d.ID, "settings", c.Settings().String())
	c.schedule()
	return nil
}

func (c *Controller) activate(ctx context.Context, d experiment.Descriptor, surface Surface) error {
	const op = "lifecycle.Activate"
	if err := ctx.Err(); err != nil {
		return err
	}

	snap := c.opts.Capability.Get()
	if !snap.Renderable() {
		return core.Errorf(core.KindCapabilityUnavailable, op, "no renderable device (%s)", snap)
	}
	if d.RequiresAdvancedShaders && !snap.SupportsAdvancedShaders {
		return core.Errorf(core.KindCapabilityUnavailable, op, "%s needs advanced shaders, host is %s", d.ID, snap.Tier)
	}

	c.policy = quality.NewPolicy(snap, c.opts.Thresholds)
	settings := c.policy.Current()
	c.publish(settings)

	kernel, err := c.opts.Registry.NewKernel(d)
	if err != nil {
		return err
	}
	c.kernel = kernel
	c.desc = d

	if err := c.allocate(settings); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.viewport = surface.viewport()
	c.projection = perspective(c.viewport)
	c.pointer = core.Pointer{}
	c.actions = nil
	c.window = telemetry.NewWindow(c.opts.Window,
		telemetry.NewJank(settings.FrameBudgetMs()), telemetry.NewPeakFrame())
	c.lastFrame = time.Time{}
	c.simTime = 0
	c.frames = 0
	return nil
}

// allocate builds a generation for the kernel's spec, retrying once with the
// halved spec when the device runs out of room, then runs Setup on it.
func (c *Controller) allocate(s quality.Settings) error {
	const op = "lifecycle.allocate"
	spec, err := c.kernel.Spec(s)
	if err != nil {
		return err
	}
	gen, err := c.opts.Resources.ReplaceAll(spec)
	if core.KindOf(err) == core.KindResourceExhausted {
		half := spec.Halve()
		core.Logger().Warn("lifecycle: allocation exhausted, retrying halved",
			"count", spec.Count, "halved", half.Count, "bytes", half.Bytes())
		gen, err = c.opts.Resources.ReplaceAll(half)
	}
	if err != nil {
		return asError(core.KindResourceExhausted, op, err)
	}
	if err := c.kernel.Setup(c.opts.Resources, gen, s); err != nil {
		c.opts.Resources.Dispose(gen)
		if c.gen == gen {
			c.gen = nil
		}
		return err
	}
	c.gen = gen
	return nil
}

func (c *Controller) rollback() {
	if c.gen != nil {
		c.opts.Resources.Dispose(c.gen)
		c.gen = nil
	}
	if g := c.opts.Resources.Take(); g != nil {
		c.opts.Resources.Dispose(g)
	}
	c.kernel = nil
	c.policy = nil
	c.window = nil
	c.desc = experiment.Descriptor{}
	c.setState(Uninitialized)
}

// Suspend stops the frame loop. No frame body runs after it returns.
func (c *Controller) Suspend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Active {
		return transitionError("lifecycle.Suspend", c.state)
	}
	c.cancel()
	c.setState(Suspended)
	return nil
}

// Resume restarts the frame loop without reallocating anything.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Suspended {
		return transitionError("lifecycle.Resume", c.state)
	}
	c.lastFrame = time.Time{}
	c.setState(Active)
	c.schedule()
	return nil
}

// Dispose stops the loop and releases every device object. It may be called
// from any state, any number of times.
func (c *Controller) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Disposed {
		return
	}
	c.cancel()
	if c.gen != nil {
		c.opts.Resources.Dispose(c.gen)
		c.gen = nil
	}
	c.kernel = nil
	c.actions = nil
	c.setState(Disposed)
	core.Logger().Info("lifecycle: disposed", "experiment", c.desc.ID, "frames", c.frames)
}

// OnViewportResize updates the viewport and projection. Device resources are
// left alone.
func (c *Controller) OnViewportResize(width, height int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Active && c.state != Suspended {
		return transitionError("lifecycle.OnViewportResize", c.state)
	}
	if width <= 0 || height <= 0 {
		return nil
	}
	c.viewport.Width, c.viewport.Height = width, height
	c.projection = perspective(c.viewport)
	return nil
}

// Dispatch applies shader compiles and preset swaps immediately, outside any
// frame, and returns their failure. Other actions are queued and applied
// before the next tick; their failures go to the error sink.
func (c *Controller) Dispatch(a core.Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Active && c.state != Suspended {
		return transitionError("lifecycle.Dispatch", c.state)
	}
	switch a.Kind {
	case core.ActionCompileShader, core.ActionSelectPreset:
		if err := c.kernel.Apply(c.opts.Resources, c.gen, a); err != nil {
			return c.actionFailed(a, err)
		}
		return nil
	}
	c.actions = append(c.actions, a)
	return nil
}

// SetPointer records the pointer position in normalized device coordinates.
func (c *Controller) SetPointer(x, y float64) {
	if !core.Finite(x, y) {
		return
	}
	c.mu.Lock()
	c.pointer = core.Pointer{X: core.Clamp(x, -1, 1), Y: core.Clamp(y, -1, 1), Active: true}
	c.mu.Unlock()
}

func (c *Controller) ClearPointer() {
	c.mu.Lock()
	c.pointer = core.Pointer{}
	c.mu.Unlock()
}

// RefreshCapability re-probes the host and rebases quality if it changed.
func (c *Controller) RefreshCapability() (capability.Snapshot, bool) {
	snap, changed := c.opts.Capability.Refresh()
	if !changed {
		return snap, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.policy != nil && (c.state == Active || c.state == Suspended) {
		prev := c.Settings()
		next := c.policy.Rebase(snap)
		c.publish(next)
		c.reconfigure(prev, next)
	}
	return snap, true
}

func (c *Controller) setState(s State) {
	if c.state != s {
		core.Logger().Debug("lifecycle: transition", "from", c.state, "to", s)
	}
	c.state = s
}

func (c *Controller) schedule() {
	epoch := c.epoch
	c.pending = c.opts.Scheduler.Request(func(now time.Time) { c.frame(epoch, now) })
	c.hasPending = true
}

func (c *Controller) cancel() {
	if c.hasPending {
		c.opts.Scheduler.Cancel(c.pending)
		c.hasPending = false
	}
	c.epoch++
}

// frame is one tick: queued actions, kernel update, upload, submit,
// telemetry, then the next request.
func (c *Controller) frame(epoch uint64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || c.state != Active {
		return
	}
	c.hasPending = false

	var delta time.Duration
	if !c.lastFrame.IsZero() {
		delta = max(now.Sub(c.lastFrame), 0)
	}
	c.lastFrame = now
	dt := delta.Seconds()
	c.simTime += math.Min(dt, 1)

	c.applyActions()

	c.kernel.Tick(core.FrameInput{Dt: dt, Time: c.simTime, Pointer: c.pointer, Viewport: c.viewport})
	if err := c.kernel.Render(c.gen); err != nil {
		c.opts.Errors.Report(asError(core.KindUnknown, "lifecycle.Render", err))
	}
	if err := c.opts.Resources.Device().Submit(); err != nil {
		c.opts.Errors.Report(asError(core.KindUnknown, "lifecycle.Submit", err))
	}
	c.frames++

	if stats, ok := c.window.Add(delta, now, c.opts.Resources.BytesInUse()); ok {
		c.last.Store(&stats)
		c.opts.Telemetry.Emit(stats)
		prev := c.Settings()
		if next, changed := c.policy.Observe(stats.FrameTimeMs); changed {
			c.publish(next)
			c.reconfigure(prev, next)
		}
	}

	if c.state == Active {
		c.schedule()
	}
}

func (c *Controller) applyActions() {
	if len(c.actions) == 0 {
		return
	}
	actions := slices.Clone(c.actions)
	c.actions = c.actions[:0]
	for _, a := range actions {
		if err := c.kernel.Apply(c.opts.Resources, c.gen, a); err != nil {
			c.actionFailed(a, err)
		}
	}
}

func (c *Controller) actionFailed(a core.Action, err error) *core.Error {
	e := asError(core.KindOf(err), "lifecycle.Dispatch", err)
	core.Logger().Debug("lifecycle: action failed", "action", a.Kind, "kind", e.Kind, "err", err)
	c.opts.Errors.Report(e)
	return e
}

// reconfigure reallocates when a settings change alters what the kernel
// needs on the device. On failure the previous settings are published again:
// the old generation stays in use if it is still live, otherwise it is
// reallocated. If that fails too the controller rolls back to Uninitialized.
func (c *Controller) reconfigure(prev, next quality.Settings) {
	const op = "lifecycle.Reconfigure"
	if prev.MaxPrimitives == next.MaxPrimitives && prev.ShadowsEnabled == next.ShadowsEnabled {
		return
	}
	err := c.allocate(next)
	if err == nil {
		core.Logger().Info("lifecycle: reconfigured", "primitives", next.MaxPrimitives, "count", c.gen.Count())
		return
	}
	c.opts.Errors.Report(reconfigureError(op, err))
	c.publish(prev)
	if c.gen != nil && !c.gen.Disposed() {
		core.Logger().Warn("lifecycle: reconfigure failed, keeping generation", "err", err)
		return
	}
	if err := c.allocate(prev); err != nil {
		core.Logger().Warn("lifecycle: reconfigure failed, rolling back", "experiment", c.desc.ID, "err", err)
		c.opts.Errors.Report(reconfigureError(op, err))
		c.cancel()
		c.rollback()
	}
}

func reconfigureError(op string, err error) *core.Error {
	kind := core.KindOf(err)
	if kind == core.KindUnknown {
		kind = core.KindResourceExhausted
	}
	return asError(kind, op, err)
}

func perspective(v core.Viewport) mgl64.Mat4 {
	return mgl64.Perspective(mgl64.DegToRad(fovY), v.Aspect(), zNear, zFar)
}
