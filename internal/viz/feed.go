package viz

import (
	"slices"
	"sync"

	"github.com/san-kum/gfxlab/internal/core"
)

const historyCapacity = 120

// Feed collects telemetry and errors from the controller for display.
type Feed struct {
	mu    sync.Mutex
	stats []core.FrameStats
	errs  []*core.Error
}

func (f *Feed) Emit(s core.FrameStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = append(f.stats, s)
	if len(f.stats) > historyCapacity {
		f.stats = f.stats[len(f.stats)-historyCapacity:]
	}
}

func (f *Feed) Report(err *core.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *Feed) Stats() []core.FrameStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.stats)
}

// LastError is the newest reported error, or nil.
func (f *Feed) LastError() *core.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) == 0 {
		return nil
	}
	return f.errs[len(f.errs)-1]
}

func (f *Feed) Errors() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}
