package accel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chewxy/math32"

	"github.com/pthm-cable/fluidmesh/field"
	"github.com/pthm-cable/fluidmesh/parallel"
)

// ErrOutOfMemory is returned when an allocation exceeds device limits.
var ErrOutOfMemory = errors.New("accel: device out of memory")

// DefaultCapabilities are the limits reported by a default SoftwareDevice.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Name:             "software",
		MaxWorkGroupSize: 256,
		GlobalMemSize:    1 << 30,
		MaxMemAllocSize:  256 << 20,
		LocalMemSize:     32 << 10,
	}
}

// SoftwareDevice emulates a compute device on the CPU. It enforces the
// memory limits in its Capabilities and runs chunks concurrently.
type SoftwareDevice struct {
	caps Capabilities

	mu    sync.Mutex
	used  int64
	built map[KernelKind]bool
}

// NewSoftwareDevice returns a device reporting caps.
func NewSoftwareDevice(caps Capabilities) *SoftwareDevice {
	return &SoftwareDevice{caps: caps, built: make(map[KernelKind]bool)}
}

// Capabilities implements Device.
func (d *SoftwareDevice) Capabilities() (Capabilities, error) {
	return d.caps, nil
}

// Build implements Device.
func (d *SoftwareDevice) Build(kinds ...KernelKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range kinds {
		if k < KernelPoints || k > KernelLevelSetPoints {
			return fmt.Errorf("accel: unknown kernel %v", k)
		}
		d.built[k] = true
	}
	return nil
}

// Alloc implements Device.
func (d *SoftwareDevice) Alloc(n int) (*Buffer, error) {
	bytes := int64(n) * 4
	d.mu.Lock()
	defer d.mu.Unlock()
	if bytes > d.caps.MaxMemAllocSize {
		return nil, fmt.Errorf("%w: allocation of %d bytes exceeds limit %d", ErrOutOfMemory, bytes, d.caps.MaxMemAllocSize)
	}
	if d.used+bytes > d.caps.GlobalMemSize {
		return nil, fmt.Errorf("%w: %d bytes in use, %d requested, %d total", ErrOutOfMemory, d.used, bytes, d.caps.GlobalMemSize)
	}
	d.used += bytes
	return NewBuffer(make([]float32, n), func() {
		d.mu.Lock()
		d.used -= bytes
		d.mu.Unlock()
	}), nil
}

// Used returns the bytes currently allocated.
func (d *SoftwareDevice) Used() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.used
}

// Run implements Device.
func (d *SoftwareDevice) Run(kind KernelKind, b *Batch) error {
	d.mu.Lock()
	built := d.built[kind]
	d.mu.Unlock()
	if !built {
		return fmt.Errorf("accel: kernel %v not built", kind)
	}
	if err := b.validate(kind); err != nil {
		return err
	}

	kern := field.NewKernel(float64(b.Radius))
	parallel.For(b.NumChunks, 0, func(start, end int) {
		for c := start; c < end; c++ {
			runChunk(kind, b, kern, c)
		}
	})
	return nil
}

func (b *Batch) validate(kind KernelKind) error {
	chunkLen := b.ChunkDims.Len()
	switch {
	case b.Particles.Len() < b.NumChunks*b.ParticlesPerChunk*ParticleStride:
		return fmt.Errorf("accel: particle buffer too small (%d)", b.Particles.Len())
	case b.Offsets.Len() < b.NumChunks*3:
		return fmt.Errorf("accel: offset buffer too small (%d)", b.Offsets.Len())
	case b.Field.Len() < b.NumChunks*chunkLen:
		return fmt.Errorf("accel: field buffer too small (%d)", b.Field.Len())
	case kind == KernelWeightPointValues && (b.Weights == nil || b.Weights.Len() < b.NumChunks*chunkLen):
		return fmt.Errorf("accel: weight buffer missing or too small")
	}
	return nil
}

// runChunk evaluates one chunk's kernel at every vertex of the chunk.
func runChunk(kind KernelKind, b *Batch, kern field.Kernel, c int) {
	cd := b.ChunkDims
	chunkLen := cd.Len()
	ox := b.Offsets.Data[3*c]
	oy := b.Offsets.Data[3*c+1]
	oz := b.Offsets.Data[3*c+2]
	parts := b.Particles.Data[c*b.ParticlesPerChunk*ParticleStride : (c+1)*b.ParticlesPerChunk*ParticleStride]
	out := b.Field.Data[c*chunkLen : (c+1)*chunkLen]
	var weights []float32
	if kind == KernelWeightPointValues {
		weights = b.Weights.Data[c*chunkLen : (c+1)*chunkLen]
	}

	levelSetSupport2 := 4 * b.Radius * b.Radius

	for idx := 0; idx < chunkLen; idx++ {
		i, j, k := cd.Coords(idx)
		vx := ox + float32(i)*b.DX
		vy := oy + float32(j)*b.DX
		vz := oz + float32(k)*b.DX

		var sum, wsum float32
		if kind == KernelLevelSetPoints {
			sum = math32.MaxFloat32
		}
		for p := 0; p < len(parts); p += ParticleStride {
			dx := vx - parts[p]
			dy := vy - parts[p+1]
			dz := vz - parts[p+2]
			d2 := dx*dx + dy*dy + dz*dz

			switch kind {
			case KernelPoints:
				sum += kern.Eval(d2)
			case KernelPointValues:
				sum += kern.Eval(d2) * parts[p+3]
			case KernelWeightPointValues:
				w := kern.Eval(d2)
				sum += w * parts[p+3]
				wsum += w
			case KernelLevelSetPoints:
				if d2 < levelSetSupport2 {
					sum = math32.Min(sum, math32.Sqrt(d2)-b.Radius)
				}
			}
		}
		out[idx] = sum
		if weights != nil {
			weights[idx] = wsum
		}
	}
}
