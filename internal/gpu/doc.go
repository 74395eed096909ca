// Package gpu defines the device primitives the runtime allocates through.
//
// A [Device] creates and destroys buffers, textures and SPIR-V programs and
// accepts one submission per frame. The resource manager is the only caller
// of the create/destroy half of the interface.
//
// [Headless] is the in-process implementation used by the CLI and tests. It
// enforces [gputypes.Limits] and a byte budget, and fails with
// [ErrOutOfMemory] or [ErrLimitExceeded] exactly where a driver would:
//
//	dev := gpu.NewHeadless(gpu.HeadlessOptions{Budget: 64 << 20})
//	id, err := dev.CreateBuffer(gpu.BufferDescriptor{Size: 1 << 20})
package gpu
