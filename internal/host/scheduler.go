package host

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/san-kum/gfxlab/internal/lifecycle"
)

// ManualScheduler runs frame callbacks only when stepped. Headless runs, the
// terminal viewer and tests drive it with their own clock.
type ManualScheduler struct {
	mu      sync.Mutex
	next    lifecycle.FrameID
	pending map[lifecycle.FrameID]lifecycle.FrameFunc
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{pending: make(map[lifecycle.FrameID]lifecycle.FrameFunc)}
}

func (s *ManualScheduler) Request(fn lifecycle.FrameFunc) lifecycle.FrameID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.pending[s.next] = fn
	return s.next
}

func (s *ManualScheduler) Cancel(id lifecycle.FrameID) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Step runs the callbacks requested before the call, in request order, and
// returns how many ran. Callbacks requested during the step wait for the
// next one.
func (s *ManualScheduler) Step(now time.Time) int {
	s.mu.Lock()
	ids := slices.Sorted(maps.Keys(s.pending))
	s.mu.Unlock()

	ran := 0
	for _, id := range ids {
		s.mu.Lock()
		fn, ok := s.pending[id]
		delete(s.pending, id)
		s.mu.Unlock()
		if !ok {
			continue
		}
		fn(now)
		ran++
	}
	return ran
}

// Clock is a simulated frame clock for fixed-step runs.
type Clock struct {
	Now   time.Time
	Frame time.Duration
}

func NewClock(start time.Time, fps int) *Clock {
	if fps <= 0 {
		fps = 60
	}
	return &Clock{Now: start, Frame: time.Second / time.Duration(fps)}
}

// Run steps s n times, advancing the clock by one frame before each step.
func (c *Clock) Run(s *ManualScheduler, n int) int {
	ran := 0
	for range n {
		c.Now = c.Now.Add(c.Frame)
		ran += s.Step(c.Now)
	}
	return ran
}
