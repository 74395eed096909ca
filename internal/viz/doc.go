// Package viz is the terminal front-end for the runtime.
//
// It plays the part of the host page: bubbletea ticks drive the frame
// scheduler, key presses become pointer moves and actions, and the kernel's
// point cloud is projected onto a braille [Canvas] next to the telemetry the
// controller emits.
//
// # Key Bindings
//
//	Space    - Suspend/Resume
//	Tab      - Next experiment
//	Arrows   - Move the pointer
//	Esc      - Release the pointer
//	R        - Reset
//	K        - Kick
//	P        - Next palette or shader preset
//	B        - Compile a broken shader (sandbox only)
//	X/Y +/-  - Rotate and zoom the camera
//	T        - Cycle color themes
//	?        - Show help overlay
//	Q        - Dispose and quit
package viz
