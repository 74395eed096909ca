package automation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/san-kum/gfxlab/internal/capability"
	"github.com/san-kum/gfxlab/internal/config"
	"github.com/san-kum/gfxlab/internal/core"
	"github.com/san-kum/gfxlab/internal/experiment"
	"github.com/san-kum/gfxlab/internal/host"
	"github.com/san-kum/gfxlab/internal/lifecycle"
	"github.com/san-kum/gfxlab/internal/quality"
	"github.com/san-kum/gfxlab/internal/resource"
	"github.com/san-kum/gfxlab/internal/storage"
	"github.com/san-kum/gfxlab/internal/telemetry"
)

const DefaultProfile = "integrated"

// Surface is the mount surface of every headless run.
var Surface = lifecycle.Surface{Width: 1280, Height: 720}

// Runner runs steps against one base configuration. Sink and Errors, when
// set, see every run; they must be safe for concurrent use if scenarios run
// in parallel.
type Runner struct {
	Config  *config.Config
	Catalog experiment.Catalog
	Sink    telemetry.Sink
	Errors  lifecycle.ErrorSink
	// Start is the simulated clock origin. Zero means time.Now.
	Start time.Time
}

type Result struct {
	Step       Step
	Descriptor experiment.Descriptor
	Adapter    string
	Frames     uint64
	Initial    quality.Settings
	Final      quality.Settings
	Metrics    map[string]float64
	Stats      []core.FrameStats
	Errors     []*core.Error
	// State is the controller state at the end of the run, before dispose.
	State lifecycle.State
	// Leaked counts device objects still alive after dispose.
	Leaked int
}

// Record converts the result into a storable run.
func (r *Result) Record(seed int64) storage.Run {
	return storage.Run{
		RunMetadata: storage.RunMetadata{
			Experiment: r.Descriptor.ID,
			Kind:       r.Descriptor.Kind.String(),
			Profile:    r.Step.Profile,
			Adapter:    r.Adapter,
			Seed:       seed,
			Duration:   r.Step.Duration,
			Frames:     r.Frames,
			Settings:   r.Final,
			Metrics:    r.Metrics,
		},
		Stats: r.Stats,
	}
}

// resolve fills the step's zero fields from cfg and applies its preset.
func (r *Runner) resolve(step Step) (Step, *config.Config, experiment.Descriptor, error) {
	cfg := config.DefaultConfig()
	if r.Config != nil {
		c := *r.Config
		cfg = &c
	}
	catalog := r.Catalog
	if catalog == nil {
		catalog = experiment.DefaultCatalog()
	}
	d, err := catalog.Find(step.Experiment)
	if err != nil {
		return step, nil, d, err
	}
	if step.Preset != "" {
		p := config.GetPreset(d.Kind.String(), step.Preset)
		if p == nil {
			return step, nil, d, fmt.Errorf("unknown preset: %s (available: %v)", step.Preset, config.ListPresets(d.Kind.String()))
		}
		cfg.Apply(d.Kind.String(), p)
	}
	if step.Profile == "" {
		step.Profile = DefaultProfile
	}
	if step.Duration == 0 {
		step.Duration = cfg.Telemetry.Duration
	}
	if step.FrameRate == 0 {
		step.FrameRate = cfg.Telemetry.FrameRate
	}
	return step, cfg, d, nil
}

// Run activates the step's experiment on a fresh headless device, drives it
// for Duration simulated seconds and disposes it.
func (r *Runner) Run(ctx context.Context, step Step) (*Result, error) {
	if err := step.validate(); err != nil {
		return nil, err
	}
	step, cfg, d, err := r.resolve(step)
	if err != nil {
		return nil, err
	}
	step.Actions, step.Squeeze = slices.Clone(step.Actions), slices.Clone(step.Squeeze)
	step.sort()
	h, dev, err := host.NewHeadless(step.Profile, step.Budget)
	if err != nil {
		return nil, err
	}

	res := &Result{Step: step, Descriptor: d, Adapter: dev.Name()}
	rec := &telemetry.Recorder{}
	sink := telemetry.Fanout{rec}
	if r.Sink != nil {
		sink = append(sink, r.Sink)
	}
	mgr := resource.NewManager(dev)
	sched := host.NewManualScheduler()
	ctrl := lifecycle.New(lifecycle.Options{
		Registry:   experiment.NewRegistry(cfg),
		Resources:  mgr,
		Capability: capability.NewCache(h),
		Scheduler:  sched,
		Telemetry:  sink,
		Errors: lifecycle.ErrorSinkFunc(func(e *core.Error) {
			res.Errors = append(res.Errors, e)
			if r.Errors != nil {
				r.Errors.Report(e)
			}
		}),
		Thresholds: cfg.Quality,
	})

	surface := Surface
	surface.PixelRatio = h.PixelRatio()
	if err := ctrl.Activate(ctx, d, surface); err != nil {
		return res, err
	}
	res.Initial = ctrl.Settings()

	start := r.Start
	if start.IsZero() {
		start = time.Now()
	}
	clock := host.NewClock(start, step.FrameRate)
	frames := int(step.Duration * float64(step.FrameRate))
	next, squeeze := 0, 0
	for i := range frames {
		if err := ctx.Err(); err != nil {
			ctrl.Dispose()
			return res, err
		}
		elapsed := float64(i) / float64(step.FrameRate)
		for next < len(step.Actions) && step.Actions[next].At <= elapsed {
			a, _ := step.Actions[next].Action()
			if err := ctrl.Dispatch(a); err != nil {
				core.Logger().Warn("automation: dispatch failed", "action", a.Kind, "err", err)
			}
			next++
		}
		for squeeze < len(step.Squeeze) && step.Squeeze[squeeze].At <= elapsed {
			b := step.Squeeze[squeeze].Budget
			if b == 0 {
				b = dev.Stats().Bytes
			}
			core.Logger().Info("automation: device budget squeezed", "budget", b, "in_use", mgr.BytesInUse())
			dev.SetBudget(b)
			squeeze++
		}
		clock.Run(sched, 1)
	}

	res.Frames = ctrl.Frames()
	res.State = ctrl.State()
	res.Final = ctrl.Settings()
	res.Metrics = ctrl.Metrics()
	ctrl.Dispose()
	res.Stats = rec.Stats()
	res.Leaked = mgr.LiveObjects()
	return res, nil
}

// RunScenario runs every step and returns results in step order. A failed
// step does not stop the others; the failures are joined.
func (r *Runner) RunScenario(ctx context.Context, s *Scenario) ([]*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	results := make([]*Result, len(s.Steps))
	errs := make([]error, len(s.Steps))

	run := func(idx int) {
		res, err := r.Run(ctx, s.Steps[idx])
		results[idx] = res
		if err != nil {
			errs[idx] = fmt.Errorf("step %d (%s): %w", idx+1, s.Steps[idx].Experiment, err)
		}
	}

	if !s.Parallel {
		for i := range s.Steps {
			run(i)
		}
		return results, errors.Join(errs...)
	}

	var wg sync.WaitGroup
	for i := range s.Steps {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			run(idx)
		}(i)
	}
	wg.Wait()

	return results, errors.Join(errs...)
}
