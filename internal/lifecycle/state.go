// Package lifecycle drives one active experiment through its states and runs
// its frame loop on a host scheduler.
package lifecycle

import (
	"errors"
	"time"

	"github.com/san-kum/gfxlab/internal/core"
)

type State uint8

const (
	Uninitialized State = iota
	Initializing
	Active
	Suspended
	Disposed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Active:
		return "active"
	case Suspended:
		return "suspended"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Surface is the mount target handed over at activation.
type Surface struct {
	Width      int
	Height     int
	PixelRatio float64
}

func (s Surface) viewport() core.Viewport {
	return core.Viewport{Width: s.Width, Height: s.Height, PixelRatio: s.PixelRatio}
}

type FrameID uint64

// FrameFunc is a frame callback; now is the host's frame timestamp.
type FrameFunc func(now time.Time)

// Scheduler is the host's frame callback source. Cancel must be synchronous:
// once it returns, the host will not start fn for that id.
type Scheduler interface {
	Request(fn FrameFunc) FrameID
	Cancel(id FrameID)
}

type ErrorSink interface {
	Report(err *core.Error)
}

type ErrorSinkFunc func(*core.Error)

func (f ErrorSinkFunc) Report(err *core.Error) { f(err) }

// asError keeps an existing *core.Error and classifies anything else.
func asError(kind core.Kind, op string, err error) *core.Error {
	var e *core.Error
	if errors.As(err, &e) {
		return e
	}
	return &core.Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

func transitionError(op string, from State) *core.Error {
	return core.Errorf(core.KindInvalidTransition, op, "not allowed from %s", from)
}
