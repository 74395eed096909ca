package host

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/san-kum/gfxlab/internal/capability"
	"github.com/san-kum/gfxlab/internal/gpu"
	"github.com/san-kum/gfxlab/internal/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfiles_Tiers(t *testing.T) {
	tests := []struct {
		profile    string
		tier       capability.Tier
		advanced   bool
		renderable bool
	}{
		{"discrete", capability.TierHigh, true, true},
		{"integrated", capability.TierMedium, true, true},
		{"software", capability.TierLow, false, true},
		{"nodevice", capability.TierLow, false, false},
	}
	require.Equal(t, []string{"discrete", "integrated", "nodevice", "software"}, Profiles())
	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			h, _, err := NewHeadless(tt.profile, 0)
			require.NoError(t, err)
			snap := capability.Probe(h)
			assert.Equal(t, tt.tier, snap.Tier)
			assert.Equal(t, tt.advanced, snap.SupportsAdvancedShaders)
			assert.Equal(t, tt.renderable, snap.Renderable())
		})
	}

	_, _, err := NewHeadless("quantum", 0)
	assert.Error(t, err)
}

func TestHost_FailAndRatio(t *testing.T) {
	h, _, err := NewHeadless("discrete", 0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, capability.Probe(h).PixelRatio)

	h.SetPixelRatio(1.25)
	assert.Equal(t, 1.25, capability.Probe(h).PixelRatio)

	h.Fail(errors.New("context lost"))
	_, err = h.AdapterInfo()
	assert.Error(t, err)
	assert.Equal(t, capability.Conservative(), capability.Probe(h))

	h.Fail(nil)
	assert.Equal(t, capability.TierHigh, capability.Probe(h).Tier)

	_, err = New(nil, 1).Limits()
	assert.Error(t, err)
}

func TestHeadless_BudgetOverride(t *testing.T) {
	_, dev, err := NewHeadless("software", 4096)
	require.NoError(t, err)
	_, err = dev.CreateBuffer(gpu.BufferDescriptor{Label: "big", Size: 8192, Usage: gputypes.BufferUsageStorage})
	assert.ErrorIs(t, err, gpu.ErrOutOfMemory)
	_, err = dev.CreateBuffer(gpu.BufferDescriptor{Label: "small", Size: 4096, Usage: gputypes.BufferUsageStorage})
	assert.NoError(t, err)
}

func TestManualScheduler_Order(t *testing.T) {
	s := NewManualScheduler()
	var got []int
	for i := range 3 {
		s.Request(func(time.Time) { got = append(got, i) })
	}
	assert.Equal(t, 3, s.Pending())
	assert.Equal(t, 3, s.Step(time.Now()))
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Zero(t, s.Pending())
}

func TestManualScheduler_Cancel(t *testing.T) {
	s := NewManualScheduler()
	ran := 0
	id := s.Request(func(time.Time) { ran++ })
	s.Cancel(id)
	s.Cancel(lifecycle.FrameID(99))
	assert.Zero(t, s.Step(time.Now()))
	assert.Zero(t, ran)
}

func TestManualScheduler_CancelDuringStep(t *testing.T) {
	s := NewManualScheduler()
	var second lifecycle.FrameID
	ran := 0
	s.Request(func(time.Time) { s.Cancel(second) })
	second = s.Request(func(time.Time) { ran++ })
	assert.Equal(t, 1, s.Step(time.Now()))
	assert.Zero(t, ran)
}

func TestClock_RequestsWaitForNextStep(t *testing.T) {
	s := NewManualScheduler()
	c := NewClock(time.Unix(0, 0), 50)
	var stamps []time.Time
	var loop lifecycle.FrameFunc
	loop = func(now time.Time) {
		stamps = append(stamps, now)
		s.Request(loop)
	}
	s.Request(loop)

	assert.Equal(t, 4, c.Run(s, 4))
	require.Len(t, stamps, 4)
	assert.Equal(t, 20*time.Millisecond, stamps[1].Sub(stamps[0]))
	assert.Equal(t, time.Unix(0, 0).Add(80*time.Millisecond), c.Now)
}
