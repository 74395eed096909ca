package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/san-kum/gfxlab/internal/config"
	"github.com/san-kum/gfxlab/internal/core"
	"github.com/san-kum/gfxlab/internal/experiment"
	"github.com/san-kum/gfxlab/internal/geometry"
	"github.com/san-kum/gfxlab/internal/lifecycle"
	"github.com/san-kum/gfxlab/internal/particle"
	"github.com/san-kum/gfxlab/internal/physics"
	"github.com/san-kum/gfxlab/internal/quality"
	"github.com/san-kum/gfxlab/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivate_HalvedRetry(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Particles.Count = 200
	r := newRig(rigOptions{profile: "software", budget: 4000, cfg: cfg})
	defer r.ctrl.Dispose()

	require.NoError(t, r.ctrl.Activate(context.Background(), descriptor("particle-swarm"), surface))
	assert.Empty(t, r.errs)
	r.ctrl.Inspect(func(k experiment.Kernel) {
		assert.Equal(t, 100, k.(*particle.Kernel).State().Len())
	})
	assert.Equal(t, 5, r.run(5))
	assert.Empty(t, r.errs)
}

func TestFrameLoop_DegradesAndDropsShadowMap(t *testing.T) {
	r := newRig(rigOptions{fps: 10})
	defer r.ctrl.Dispose()

	require.NoError(t, r.ctrl.Activate(context.Background(), descriptor("rotating-solids"), surface))
	require.True(t, r.ctrl.Settings().ShadowsEnabled)
	live := r.mgr.LiveObjects()

	r.run(30)
	assert.Equal(t, 0, r.ctrl.Settings().Rung, "two slow windows are not enough")

	r.run(1)
	s := r.ctrl.Settings()
	assert.Equal(t, 1, s.Rung)
	assert.False(t, s.ShadowsEnabled)
	assert.Equal(t, live-1, r.mgr.LiveObjects(), "shadow map released")
	assert.Empty(t, r.errs)
}

func TestReconfigure_KeepsGenerationWhenBudgetShrinks(t *testing.T) {
	r := newRig(rigOptions{fps: 10})
	defer r.ctrl.Dispose()

	require.NoError(t, r.ctrl.Activate(context.Background(), descriptor("rotating-solids"), surface))
	before := r.ctrl.Settings()
	live := r.mgr.LiveObjects()

	r.run(30)
	r.dev.SetBudget(r.dev.Stats().Bytes)
	r.run(1)

	assert.Equal(t, lifecycle.Active, r.ctrl.State())
	assert.Equal(t, live, r.mgr.LiveObjects(), "old generation still in use")
	assert.Equal(t, before, r.ctrl.Settings(), "previous settings restored")
	require.Len(t, r.errs, 1)
	assert.Equal(t, core.KindResourceExhausted, r.errs[0].Kind)
	assert.Equal(t, 1, r.run(1))

	r.dev.SetBudget(256 << 20)
	r.run(29)
	s := r.ctrl.Settings()
	assert.Equal(t, 2, s.Rung)
	assert.False(t, s.ShadowsEnabled)
	assert.Equal(t, live-1, r.mgr.LiveObjects())
	assert.Len(t, r.errs, 1)
}

// refusingKernel fails Setup once refuse is set, as a driver might after
// the device is reset underneath it.
type refusingKernel struct {
	experiment.Kernel
	refuse *atomic.Bool
}

func (k refusingKernel) Setup(m *resource.Manager, g *resource.Generation, s quality.Settings) error {
	if k.refuse.Load() {
		return errors.New("driver refused setup")
	}
	return k.Kernel.Setup(m, g, s)
}

func TestReconfigure_RollsBackWhenNothingFits(t *testing.T) {
	r := newRig(rigOptions{fps: 10})
	defer r.ctrl.Dispose()
	var refuse atomic.Bool
	r.registry.Register(experiment.KindGeometry, func() (experiment.Kernel, error) {
		k, err := geometry.NewKernel(geometry.DefaultParams())
		if err != nil {
			return nil, err
		}
		return refusingKernel{Kernel: k, refuse: &refuse}, nil
	})

	require.NoError(t, r.ctrl.Activate(context.Background(), descriptor("rotating-solids"), surface))
	r.run(30)
	refuse.Store(true)
	r.run(1)

	assert.Equal(t, lifecycle.Uninitialized, r.ctrl.State())
	assert.Zero(t, r.mgr.LiveObjects())
	assert.Zero(t, r.sched.Pending())
	require.Len(t, r.errs, 2)
	for _, e := range r.errs {
		assert.Equal(t, core.KindResourceExhausted, e.Kind)
		assert.Contains(t, e.Error(), "driver refused setup")
	}
	assert.Zero(t, r.run(3))

	refuse.Store(false)
	require.NoError(t, r.ctrl.Activate(context.Background(), descriptor("rotating-solids"), surface))
	assert.Equal(t, lifecycle.Active, r.ctrl.State())
}

func TestFrameLoop_HalvesPrimitivesUnderLoad(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Physics.Count = 1000
	r := newRig(rigOptions{fps: 10, cfg: cfg})
	defer r.ctrl.Dispose()

	require.NoError(t, r.ctrl.Activate(context.Background(), descriptor("bouncing-spheres"), surface))
	count := func() int {
		n := 0
		r.ctrl.Inspect(func(k experiment.Kernel) { n = len(k.(*physics.Kernel).World().Spheres) })
		return n
	}
	require.Equal(t, 800, count())

	r.run(91)
	s := r.ctrl.Settings()
	assert.Equal(t, 3, s.Rung)
	assert.Equal(t, 400, s.MaxPrimitives)
	assert.Equal(t, 400, count())
	assert.Equal(t, 400, r.mgr.Current().Count())
	assert.Equal(t, lifecycle.Active, r.ctrl.State())
}

func TestRefreshCapability_Rebases(t *testing.T) {
	r := newRig(rigOptions{})
	defer r.ctrl.Dispose()

	require.NoError(t, r.ctrl.Activate(context.Background(), descriptor("rotating-solids"), surface))
	assert.Equal(t, 1.5, r.ctrl.Settings().PixelRatioCap)

	_, changed := r.ctrl.RefreshCapability()
	assert.False(t, changed)

	r.host.SetPixelRatio(1)
	snap, changed := r.ctrl.RefreshCapability()
	assert.True(t, changed)
	assert.Equal(t, 1.0, snap.PixelRatio)
	assert.Equal(t, 1.0, r.ctrl.Settings().PixelRatioCap)
}

func TestSuspend_FromAnotherGoroutine(t *testing.T) {
	r := newRig(rigOptions{})
	defer r.ctrl.Dispose()
	require.NoError(t, r.ctrl.Activate(context.Background(), descriptor("particle-swarm"), surface))

	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for !stop.Load() {
			r.run(1)
		}
	}()

	for r.ctrl.Frames() < 20 {
		// let the loop get going
	}
	require.NoError(t, r.ctrl.Suspend())
	frames := r.ctrl.Frames()
	for range 1000 {
		assert.Equal(t, frames, r.ctrl.Frames())
	}
	stop.Store(true)
	wg.Wait()
	assert.Equal(t, frames, r.ctrl.Frames(), "no frame body after Suspend returned")
}

func TestDispose_FromUninitialized(t *testing.T) {
	r := newRig(rigOptions{})
	r.ctrl.Dispose()
	assert.Equal(t, lifecycle.Disposed, r.ctrl.State())
	assert.Zero(t, r.mgr.LiveObjects())
}
