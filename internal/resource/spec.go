package resource

import (
	"github.com/gogpu/gputypes"
	"github.com/san-kum/gfxlab/internal/gpu"
)

type BufferSpec struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
	// PerPrimitive buffers scale with Spec.Count when the spec is halved.
	PerPrimitive bool
}

type TextureSpec struct {
	Label  string
	Width  uint32
	Height uint32
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
}

type ProgramSpec struct {
	Label string
	SPIRV []uint32
}

// Spec lists every GPU object one generation owns. Count is the number of
// primitives (particles, spheres, vertices) the per-primitive buffers are
// sized for.
type Spec struct {
	Count    int
	Buffers  []BufferSpec
	Textures []TextureSpec
	Programs []ProgramSpec
}

// Bytes is the total memory the spec asks for.
func (s Spec) Bytes() uint64 {
	var n uint64
	for _, b := range s.Buffers {
		n += b.Size
	}
	for _, t := range s.Textures {
		n += uint64(t.Width) * uint64(t.Height) * gpu.BytesPerPixel(t.Format)
	}
	for _, p := range s.Programs {
		n += uint64(len(p.SPIRV)) * 4
	}
	return n
}

// Halve returns the fallback spec with half the primitives. Per-primitive
// buffers shrink proportionally; everything else is unchanged.
func (s Spec) Halve() Spec {
	out := Spec{
		Count:    max(1, s.Count/2),
		Textures: append([]TextureSpec(nil), s.Textures...),
		Programs: append([]ProgramSpec(nil), s.Programs...),
		Buffers:  make([]BufferSpec, len(s.Buffers)),
	}
	for i, b := range s.Buffers {
		if b.PerPrimitive && s.Count > 0 {
			per := b.Size / uint64(s.Count)
			b.Size = max(per, per*uint64(out.Count))
		}
		out.Buffers[i] = b
	}
	return out
}

// FloatBuffer is a per-primitive buffer of n elements of width float32s.
func FloatBuffer(label string, n, width int, usage gputypes.BufferUsage) BufferSpec {
	return BufferSpec{
		Label:        label,
		Size:         uint64(n) * uint64(width) * 4,
		Usage:        usage | gputypes.BufferUsageCopyDst,
		PerPrimitive: true,
	}
}

// UniformBuffer is a fixed-size uniform block of n float32s.
func UniformBuffer(label string, n int) BufferSpec {
	return BufferSpec{
		Label: label,
		Size:  uint64(n) * 4,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	}
}
