package lifecycle_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/gfxlab/internal/core"
	"github.com/san-kum/gfxlab/internal/experiment"
	"github.com/san-kum/gfxlab/internal/lifecycle"
	"github.com/san-kum/gfxlab/internal/shader"
)

var _ = Describe("Controller", func() {
	var r *rig
	ctx := context.Background()

	BeforeEach(func() {
		r = newRig(rigOptions{})
	})

	AfterEach(func() {
		r.ctrl.Dispose()
	})

	It("starts uninitialized", func() {
		Expect(r.ctrl.State()).To(Equal(lifecycle.Uninitialized))
		Expect(r.sched.Pending()).To(BeZero())
	})

	Describe("Activate", func() {
		It("allocates the scene and schedules the first frame", func() {
			Expect(r.ctrl.Activate(ctx, descriptor("bouncing-spheres"), surface)).To(Succeed())
			Expect(r.ctrl.State()).To(Equal(lifecycle.Active))
			Expect(r.mgr.LiveObjects()).To(BeNumerically(">", 0))
			Expect(r.sched.Pending()).To(Equal(1))
			Expect(r.ctrl.Settings().Level.String()).To(Equal("medium"))
		})

		It("rejects a second activation while active", func() {
			Expect(r.ctrl.Activate(ctx, descriptor("bouncing-spheres"), surface)).To(Succeed())
			err := r.ctrl.Activate(ctx, descriptor("particle-swarm"), surface)
			Expect(core.KindOf(err)).To(Equal(core.KindInvalidTransition))
			Expect(r.ctrl.State()).To(Equal(lifecycle.Active))
		})

		It("fails with CapabilityUnavailable on a host with no renderable device", func() {
			r = newRig(rigOptions{profile: "nodevice"})
			err := r.ctrl.Activate(ctx, descriptor("rotating-solids"), surface)
			Expect(errors.Is(err, core.ErrCapabilityUnavailable)).To(BeTrue())
			Expect(r.ctrl.State()).To(Equal(lifecycle.Uninitialized))
			Expect(r.mgr.LiveObjects()).To(BeZero())
			Expect(r.errs).To(HaveLen(1))
			Expect(r.errs[0].Kind).To(Equal(core.KindCapabilityUnavailable))
		})

		It("refuses advanced shader experiments on a low tier host", func() {
			r = newRig(rigOptions{profile: "software"})
			err := r.ctrl.Activate(ctx, descriptor("shader-sandbox"), surface)
			Expect(core.KindOf(err)).To(Equal(core.KindCapabilityUnavailable))
			Expect(r.ctrl.Activate(ctx, descriptor("rotating-solids"), surface)).To(Succeed())
		})

		It("rolls back to uninitialized with nothing allocated when memory runs out", func() {
			r = newRig(rigOptions{profile: "software", budget: 1024})
			err := r.ctrl.Activate(ctx, descriptor("particle-swarm"), surface)
			Expect(errors.Is(err, core.ErrResourceExhausted)).To(BeTrue())
			Expect(r.ctrl.State()).To(Equal(lifecycle.Uninitialized))
			Expect(r.mgr.LiveObjects()).To(BeZero())
			Expect(r.mgr.BytesInUse()).To(BeZero())
			Expect(r.sched.Pending()).To(BeZero())
			Expect(r.errs).To(HaveLen(1))
		})

		It("honours a cancelled context", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			Expect(r.ctrl.Activate(cctx, descriptor("rotating-solids"), surface)).To(MatchError(context.Canceled))
			Expect(r.ctrl.State()).To(Equal(lifecycle.Uninitialized))
			Expect(r.mgr.LiveObjects()).To(BeZero())
		})
	})

	Describe("frame loop", func() {
		BeforeEach(func() {
			Expect(r.ctrl.Activate(ctx, descriptor("particle-swarm"), surface)).To(Succeed())
		})

		It("ticks once per scheduled frame and emits telemetry each second", func() {
			Expect(r.run(130)).To(Equal(130))
			Expect(r.ctrl.Frames()).To(BeEquivalentTo(130))
			stats := r.stats.Stats()
			Expect(stats).To(HaveLen(2))
			Expect(stats[0].FPS).To(BeNumerically("~", 60, 1))
			Expect(stats[0].MemoryMB).To(BeNumerically(">", 0))
			last, ok := r.ctrl.LastStats()
			Expect(ok).To(BeTrue())
			Expect(last).To(Equal(stats[1]))
		})

		It("stops on suspend and resumes without reallocating", func() {
			r.run(5)
			live := r.mgr.LiveObjects()
			Expect(r.ctrl.Suspend()).To(Succeed())
			Expect(r.sched.Pending()).To(BeZero())
			Expect(r.run(10)).To(BeZero())
			Expect(r.ctrl.Frames()).To(BeEquivalentTo(5))

			Expect(r.ctrl.Resume()).To(Succeed())
			Expect(r.mgr.LiveObjects()).To(Equal(live))
			r.run(5)
			Expect(r.ctrl.Frames()).To(BeEquivalentTo(10))
		})

		It("rejects out-of-order transitions", func() {
			Expect(core.KindOf(r.ctrl.Resume())).To(Equal(core.KindInvalidTransition))
			Expect(r.ctrl.Suspend()).To(Succeed())
			Expect(core.KindOf(r.ctrl.Suspend())).To(Equal(core.KindInvalidTransition))
		})

		It("applies queued actions between ticks", func() {
			Expect(r.ctrl.Dispatch(core.Action{Kind: core.ActionSetPalette, Name: "fire"})).To(Succeed())
			Expect(r.ctrl.Dispatch(core.Action{Kind: core.ActionSetPalette, Name: "plaid"})).To(Succeed())
			r.run(1)
			Expect(r.errs).To(HaveLen(1))
			Expect(r.ctrl.State()).To(Equal(lifecycle.Active))
		})

		It("recomputes the projection on resize without touching resources", func() {
			before := r.ctrl.Projection()
			live := r.mgr.LiveObjects()
			Expect(r.ctrl.OnViewportResize(400, 800)).To(Succeed())
			Expect(r.ctrl.Projection()).NotTo(Equal(before))
			Expect(r.mgr.LiveObjects()).To(Equal(live))
		})
	})

	Describe("Dispose", func() {
		It("releases everything and is idempotent", func() {
			Expect(r.ctrl.Activate(ctx, descriptor("rotating-solids"), surface)).To(Succeed())
			r.run(3)
			r.ctrl.Dispose()
			r.ctrl.Dispose()
			Expect(r.ctrl.State()).To(Equal(lifecycle.Disposed))
			Expect(r.mgr.LiveObjects()).To(BeZero())
			Expect(r.sched.Pending()).To(BeZero())
			Expect(r.run(3)).To(BeZero())
		})

		It("allows a fresh activation afterwards", func() {
			Expect(r.ctrl.Activate(ctx, descriptor("rotating-solids"), surface)).To(Succeed())
			r.ctrl.Dispose()
			Expect(r.ctrl.Activate(ctx, descriptor("bouncing-spheres"), surface)).To(Succeed())
			Expect(r.ctrl.Descriptor().Kind).To(Equal(experiment.KindPhysics))
		})

		It("rejects input once disposed", func() {
			r.ctrl.Dispose()
			Expect(core.KindOf(r.ctrl.Dispatch(core.Action{Kind: core.ActionReset}))).To(Equal(core.KindInvalidTransition))
			Expect(core.KindOf(r.ctrl.OnViewportResize(10, 10))).To(Equal(core.KindInvalidTransition))
		})
	})

	Describe("shader sandbox", func() {
		It("keeps the bound program when a compile fails", func() {
			Expect(r.ctrl.Activate(ctx, descriptor("shader-sandbox"), surface)).To(Succeed())
			var bound *shader.Program
			r.ctrl.Inspect(func(k experiment.Kernel) { bound = k.(*shader.Sandbox).Bound() })

			err := r.ctrl.Dispatch(core.Action{Kind: core.ActionCompileShader, Source: "fn broken( {"})
			var ce *core.Error
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(ce.Kind).To(Equal(core.KindShaderCompile))
			Expect(r.errs).To(HaveLen(1))
			Expect(r.errs[0]).To(BeIdenticalTo(ce))
			Expect(r.ctrl.Frames()).To(BeZero())

			r.ctrl.Inspect(func(k experiment.Kernel) {
				Expect(k.(*shader.Sandbox).Bound()).To(BeIdenticalTo(bound))
			})
			Expect(r.ctrl.State()).To(Equal(lifecycle.Active))
			r.run(2)
			Expect(r.ctrl.Frames()).To(BeEquivalentTo(2))
			Expect(r.errs).To(HaveLen(1))
		})

		It("compiles and swaps presets while suspended", func() {
			Expect(r.ctrl.Activate(ctx, descriptor("shader-sandbox"), surface)).To(Succeed())
			Expect(r.ctrl.Suspend()).To(Succeed())

			Expect(r.ctrl.Dispatch(core.Action{Kind: core.ActionSelectPreset, Name: "ripple"})).To(Succeed())
			r.ctrl.Inspect(func(k experiment.Kernel) {
				Expect(k.(*shader.Sandbox).Bound().Name).To(Equal("ripple"))
			})

			err := r.ctrl.Dispatch(core.Action{Kind: core.ActionCompileShader, Source: "fn broken( {"})
			Expect(core.KindOf(err)).To(Equal(core.KindShaderCompile))
			err = r.ctrl.Dispatch(core.Action{Kind: core.ActionSelectPreset, Name: "nope"})
			Expect(err).To(HaveOccurred())
			Expect(r.errs).To(HaveLen(2))
			r.ctrl.Inspect(func(k experiment.Kernel) {
				Expect(k.(*shader.Sandbox).Bound().Name).To(Equal("ripple"))
			})
			Expect(r.ctrl.Frames()).To(BeZero())
			Expect(r.ctrl.State()).To(Equal(lifecycle.Suspended))
		})

		It("queues cheap actions until the next tick", func() {
			Expect(r.ctrl.Activate(ctx, descriptor("shader-sandbox"), surface)).To(Succeed())
			Expect(r.ctrl.Dispatch(core.Action{Kind: core.ActionSetParam, Name: "param9"})).To(Succeed())
			Expect(r.errs).To(BeEmpty())
			r.run(1)
			Expect(r.errs).To(HaveLen(1))
		})
	})
})
