// Package accel schedules particle splats onto a compute device in
// memory-bounded batches of work chunks, falling back to CPU accumulation
// when no device is usable.
package accel

import (
	"fmt"
	"sync"

	"github.com/pthm-cable/fluidmesh/grid"
)

// Capabilities describes the limits of a compute device.
type Capabilities struct {
	Name             string
	MaxWorkGroupSize int   // invocations per work group
	GlobalMemSize    int64 // bytes
	MaxMemAllocSize  int64 // bytes per allocation
	LocalMemSize     int64 // bytes
}

// KernelKind selects one of the splat kernels.
type KernelKind int

const (
	KernelPoints            KernelKind = iota // field += w
	KernelPointValues                         // field += w*v
	KernelWeightPointValues                   // field += w*v, weight += w
	KernelLevelSetPoints                      // field = min(field, |x-p| - r)
)

// AllKernels lists every kernel kind.
var AllKernels = []KernelKind{KernelPoints, KernelPointValues, KernelWeightPointValues, KernelLevelSetPoints}

func (k KernelKind) String() string {
	switch k {
	case KernelPoints:
		return "points"
	case KernelPointValues:
		return "point_values"
	case KernelWeightPointValues:
		return "weight_point_values"
	case KernelLevelSetPoints:
		return "level_set_points"
	}
	return fmt.Sprintf("kernel(%d)", int(k))
}

// Additive reports whether the kernel's results are summed into the field
// (as opposed to min-reduced).
func (k KernelKind) Additive() bool {
	return k != KernelLevelSetPoints
}

// Device is a compute accelerator. Run is a blocking round trip: it returns
// once the kernel has finished and output buffers hold the results.
type Device interface {
	Capabilities() (Capabilities, error)
	Build(kinds ...KernelKind) error
	Alloc(n int) (*Buffer, error)
	Run(kind KernelKind, b *Batch) error
}

// Buffer is a device allocation of float32 elements. Release returns the
// memory to the device and is safe to call more than once.
type Buffer struct {
	Data []float32

	once    sync.Once
	release func()
}

// NewBuffer wraps data as a device buffer. release runs on the first call
// to Release and may be nil.
func NewBuffer(data []float32, release func()) *Buffer {
	return &Buffer{Data: data, release: release}
}

// Len returns the element count.
func (b *Buffer) Len() int { return len(b.Data) }

// Bytes returns the allocation size in bytes.
func (b *Buffer) Bytes() int64 { return int64(len(b.Data)) * 4 }

// Release frees the buffer.
func (b *Buffer) Release() {
	b.once.Do(func() {
		if b.release != nil {
			b.release()
		}
		b.Data = nil
	})
}

// ParticleStride is the number of floats per particle slot: x, y, z, value.
const ParticleStride = 4

// Batch is the payload of one device launch. Chunk c reads particle slots
// [c*ParticlesPerChunk, (c+1)*ParticlesPerChunk) and writes ChunkDims.Len()
// outputs starting at c*ChunkDims.Len(). Unused particle slots hold +Inf
// positions.
type Batch struct {
	NumChunks         int
	ChunkDims         grid.Dims
	ParticlesPerChunk int

	Radius float32
	DX     float32

	Particles *Buffer // ParticleStride floats per slot
	Offsets   *Buffer // world origin of each chunk, 3 floats
	Field     *Buffer // kernel output
	Weights   *Buffer // weight output, KernelWeightPointValues only
}
