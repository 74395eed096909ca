package gpu

import (
	"errors"

	"github.com/gogpu/gputypes"
)

var (
	ErrOutOfMemory   = errors.New("gpu: out of device memory")
	ErrLimitExceeded = errors.New("gpu: descriptor exceeds device limits")
	ErrUnknownObject = errors.New("gpu: unknown object")
	ErrDeviceLost    = errors.New("gpu: device lost")
)

type ObjectID uint64

type ObjectKind uint8

const (
	KindBuffer ObjectKind = iota + 1
	KindTexture
	KindProgram
)

func (k ObjectKind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindTexture:
		return "texture"
	case KindProgram:
		return "program"
	default:
		return "unknown"
	}
}

type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

type TextureDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
}

type ProgramDescriptor struct {
	Label string
	SPIRV []uint32
}

type Stats struct {
	Objects     int
	Bytes       uint64
	Submissions uint64
}

// Device is the set of low-level create/destroy primitives. Only the
// resource manager calls the Create*/Destroy methods.
type Device interface {
	Name() string
	AdapterInfo() gputypes.AdapterInfo
	Limits() gputypes.Limits
	Features() gputypes.Features

	CreateBuffer(d BufferDescriptor) (ObjectID, error)
	WriteBuffer(id ObjectID, offset uint64, data []byte) error
	CreateTexture(d TextureDescriptor) (ObjectID, error)
	CreateProgram(d ProgramDescriptor) (ObjectID, error)
	Destroy(id ObjectID) error

	// Submit issues one frame of recorded work.
	Submit() error
	Stats() Stats
	Cleanup()
}

// BytesPerPixel returns the storage size of one texel for common formats.
func BytesPerPixel(f gputypes.TextureFormat) uint64 {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm,
		gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint:
		return 1
	case gputypes.TextureFormatRGBA16Float:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	default:
		return 4
	}
}
