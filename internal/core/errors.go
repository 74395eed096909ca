package core

import (
	"errors"
	"fmt"
)

// Kind classifies a runtime failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindCapabilityUnavailable: the host lacks minimum rendering support.
	KindCapabilityUnavailable
	// KindResourceExhausted: the device rejected an allocation.
	KindResourceExhausted
	// KindShaderCompile: shader source failed to compile. Recoverable.
	KindShaderCompile
	// KindSimulationStateInvalid: integration produced a non-finite value.
	KindSimulationStateInvalid
	// KindInvalidTransition: a lifecycle operation was called in the wrong state.
	KindInvalidTransition
)

func (k Kind) String() string {
	switch k {
	case KindCapabilityUnavailable:
		return "CapabilityUnavailable"
	case KindResourceExhausted:
		return "ResourceExhausted"
	case KindShaderCompile:
		return "ShaderCompileError"
	case KindSimulationStateInvalid:
		return "SimulationStateInvalid"
	case KindInvalidTransition:
		return "InvalidTransition"
	default:
		return "Unknown"
	}
}

// Domain errors for runtime operations.
var (
	ErrCapabilityUnavailable  = errors.New("gfxlab: capability unavailable")
	ErrResourceExhausted      = errors.New("gfxlab: resource exhausted")
	ErrShaderCompile          = errors.New("gfxlab: shader compile failed")
	ErrSimulationStateInvalid = errors.New("gfxlab: simulation state invalid")
	ErrInvalidTransition      = errors.New("gfxlab: invalid lifecycle transition")
)

func (k Kind) sentinel() error {
	switch k {
	case KindCapabilityUnavailable:
		return ErrCapabilityUnavailable
	case KindResourceExhausted:
		return ErrResourceExhausted
	case KindShaderCompile:
		return ErrShaderCompile
	case KindSimulationStateInvalid:
		return ErrSimulationStateInvalid
	case KindInvalidTransition:
		return ErrInvalidTransition
	}
	return nil
}

// Error is the structured error surfaced to runtime callers.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

// KindOf reports the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
