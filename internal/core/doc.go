// Package core provides the shared primitives of the experiment runtime.
//
// The package is a leaf: every other runtime package depends on it and it
// depends on nothing inside the module.
//
//   - [FrameStats]: one telemetry window worth of frame statistics
//   - [Viewport]: mount surface dimensions
//   - [Pointer] and [Action]: user input pushed in by the host
//   - [Error] and [Kind]: the runtime error taxonomy
//
// # Errors
//
// Every failure surfaced to a caller is an [*Error] carrying a [Kind].
// Sentinels support errors.Is:
//
//	if errors.Is(err, core.ErrResourceExhausted) {
//	    // retry with a smaller spec
//	}
//
// # Logging
//
// The runtime logs through a package-level *slog.Logger that is silent by
// default. Call [SetLogger] to enable output.
package core
