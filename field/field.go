// Package field implements the scalar field that particles are splatted
// into before isosurface extraction.
package field

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/grid"
)

// DefaultSurfaceThreshold is the isosurface level of a new field.
const DefaultSurfaceThreshold = 0.5

// ScalarField is an implicit function sampled at the vertices of a regular
// lattice. Vertex (i, j, k) sits at Offset + dx*(i, j, k).
type ScalarField struct {
	dims   grid.Dims // vertex counts
	dx     float64
	offset r3.Vec

	radius    float64
	kernel    Kernel
	threshold float64

	maxThreshold    float32
	hasMaxThreshold bool

	values  *grid.Array3D[float32]
	isSet   *grid.Array3D[bool]
	solid   *grid.Array3D[bool]
	weights *grid.Array3D[float32] // nil unless enabled

	weightsApplied bool
	logger         *slog.Logger
}

// New allocates a field of isize x jsize x ksize vertices with cell size
// dx. The point radius defaults to dx.
func New(isize, jsize, ksize int, dx float64) *ScalarField {
	if isize < 1 || jsize < 1 || ksize < 1 {
		panic(fmt.Sprintf("field: invalid size %dx%dx%d", isize, jsize, ksize))
	}
	if dx <= 0 {
		panic(fmt.Sprintf("field: invalid cell size %v", dx))
	}
	return &ScalarField{
		dims:      grid.Dims{I: isize, J: jsize, K: ksize},
		dx:        dx,
		radius:    dx,
		kernel:    NewKernel(dx),
		threshold: DefaultSurfaceThreshold,
		values:    grid.NewArray3D[float32](isize, jsize, ksize),
		isSet:     grid.NewArray3D[bool](isize, jsize, ksize),
		solid:     grid.NewArray3D[bool](isize, jsize, ksize),
	}
}

// SetLogger sets the logger for diagnostics. nil restores slog.Default.
func (f *ScalarField) SetLogger(l *slog.Logger) { f.logger = l }

func (f *ScalarField) log() *slog.Logger {
	if f.logger != nil {
		return f.logger
	}
	return slog.Default()
}

// Dims returns the vertex counts.
func (f *ScalarField) Dims() grid.Dims { return f.dims }

// CellSize returns dx.
func (f *ScalarField) CellSize() float64 { return f.dx }

// Offset returns the world position of vertex (0, 0, 0).
func (f *ScalarField) Offset() r3.Vec { return f.offset }

// SetOffset sets the world position of vertex (0, 0, 0).
func (f *ScalarField) SetOffset(o r3.Vec) { f.offset = o }

// PointRadius returns the default kernel radius.
func (f *ScalarField) PointRadius() float64 { return f.radius }

// Kernel returns the kernel for the default radius.
func (f *ScalarField) Kernel() Kernel { return f.kernel }

// SetPointRadius sets the default kernel radius. r must be positive.
func (f *ScalarField) SetPointRadius(r float64) {
	f.kernel = NewKernel(r)
	f.radius = r
}

// SurfaceThreshold returns the isosurface level.
func (f *ScalarField) SurfaceThreshold() float64 { return f.threshold }

// SetSurfaceThreshold sets the isosurface level.
func (f *ScalarField) SetSurfaceThreshold(t float64) { f.threshold = t }

// SetMaxScalarFieldThreshold makes accumulation skip vertices whose value
// already exceeds t.
func (f *ScalarField) SetMaxScalarFieldThreshold(t float64) {
	f.maxThreshold = float32(t)
	f.hasMaxThreshold = true
}

// ClearMaxScalarFieldThreshold disables accumulation pruning.
func (f *ScalarField) ClearMaxScalarFieldThreshold() { f.hasMaxThreshold = false }

// MaxScalarFieldThreshold returns the pruning threshold and whether it is set.
func (f *ScalarField) MaxScalarFieldThreshold() (float64, bool) {
	return float64(f.maxThreshold), f.hasMaxThreshold
}

// Values exposes the raw vertex values.
func (f *ScalarField) Values() *grid.Array3D[float32] { return f.values }

// Weights exposes the weight field, or nil when disabled.
func (f *ScalarField) Weights() *grid.Array3D[float32] { return f.weights }

// HasWeightField reports whether weights are being accumulated.
func (f *ScalarField) HasWeightField() bool { return f.weights != nil }

// EnableWeightField starts accumulating kernel weights. Values added
// before this call are not weighted.
func (f *ScalarField) EnableWeightField() {
	if f.weights != nil {
		return
	}
	f.weights = grid.NewArray3D[float32](f.dims.I, f.dims.J, f.dims.K)
	f.weightsApplied = false
}

// ApplyWeightField divides each value by its accumulated weight where the
// weight is positive. It must be called once after all accumulation; later
// calls are ignored because dividing again would corrupt the values.
func (f *ScalarField) ApplyWeightField() {
	if f.weights == nil {
		return
	}
	if f.weightsApplied {
		f.log().Warn("weight field already applied; ignoring")
		return
	}
	vals := f.values.Data()
	for i, w := range f.weights.Data() {
		if w > 0 {
			vals[i] /= w
		}
	}
	f.weightsApplied = true
}

// Position returns the world position of vertex (i, j, k).
func (f *ScalarField) Position(i, j, k int) r3.Vec {
	return r3.Vec{
		X: f.offset.X + float64(i)*f.dx,
		Y: f.offset.Y + float64(j)*f.dx,
		Z: f.offset.Z + float64(k)*f.dx,
	}
}

// GridCoords converts a world position to fractional vertex coordinates.
func (f *ScalarField) GridCoords(p r3.Vec) (gx, gy, gz float64) {
	d := r3.Scale(1/f.dx, r3.Sub(p, f.offset))
	return d.X, d.Y, d.Z
}

// vertexRange returns the inclusive vertex index box covering the world
// box [lo, hi], clipped to the lattice. ok is false if it is empty.
func (f *ScalarField) vertexRange(lo, hi r3.Vec) (i0, j0, k0, i1, j1, k1 int, ok bool) {
	gx0, gy0, gz0 := f.GridCoords(lo)
	gx1, gy1, gz1 := f.GridCoords(hi)
	i0 = max(int(math.Ceil(gx0)), 0)
	j0 = max(int(math.Ceil(gy0)), 0)
	k0 = max(int(math.Ceil(gz0)), 0)
	i1 = min(int(math.Floor(gx1)), f.dims.I-1)
	j1 = min(int(math.Floor(gy1)), f.dims.J-1)
	k1 = min(int(math.Floor(gz1)), f.dims.K-1)
	return i0, j0, k0, i1, j1, k1, i0 <= i1 && j0 <= j1 && k0 <= k1
}

// RawValue returns the accumulated value at vertex (i, j, k).
func (f *ScalarField) RawValue(i, j, k int) float32 { return f.values.At(i, j, k) }

// ScalarFieldValue returns the value at vertex (i, j, k), clamped to the
// surface threshold at solid vertices.
func (f *ScalarField) ScalarFieldValue(i, j, k int) float32 {
	v := f.values.At(i, j, k)
	if f.solid.At(i, j, k) {
		if t := float32(f.threshold); v > t {
			return t
		}
	}
	return v
}

// SetValue overwrites vertex (i, j, k).
func (f *ScalarField) SetValue(i, j, k int, v float32) {
	f.values.Set(i, j, k, v)
	f.isSet.Set(i, j, k, true)
}

// AddValue adds v to vertex (i, j, k).
func (f *ScalarField) AddValue(i, j, k int, v float32) {
	*f.values.Ptr(i, j, k) += v
	f.isSet.Set(i, j, k, true)
}

// IsSet reports whether any contribution reached vertex (i, j, k).
func (f *ScalarField) IsSet(i, j, k int) bool { return f.isSet.At(i, j, k) }

// MarkSet flags vertex (i, j, k) as having received a contribution.
func (f *ScalarField) MarkSet(i, j, k int) { f.isSet.Set(i, j, k, true) }

// Fill sets every vertex value to v.
func (f *ScalarField) Fill(v float32) { f.values.Fill(v) }

// Negate flips the sign of every value.
func (f *ScalarField) Negate() {
	blas32.Scal(-1, f.vector(f.values))
}

// MergeAdd adds other's values (and weights, when both fields carry them)
// into f. Dimensions must match.
func (f *ScalarField) MergeAdd(other *ScalarField) {
	f.checkSameDims(other)
	blas32.Axpy(1, other.vector(other.values), f.vector(f.values))
	if f.weights != nil && other.weights != nil {
		blas32.Axpy(1, other.vector(other.weights), f.vector(f.weights))
	}
	f.mergeSet(other)
}

// MergeMin takes the pointwise minimum with other. Dimensions must match.
func (f *ScalarField) MergeMin(other *ScalarField) {
	f.checkSameDims(other)
	dst := f.values.Data()
	for i, v := range other.values.Data() {
		dst[i] = math32.Min(dst[i], v)
	}
	f.mergeSet(other)
}

func (f *ScalarField) mergeSet(other *ScalarField) {
	dst := f.isSet.Data()
	for i, s := range other.isSet.Data() {
		dst[i] = dst[i] || s
	}
}

func (f *ScalarField) checkSameDims(other *ScalarField) {
	if f.dims != other.dims {
		panic(fmt.Sprintf("field: dimension mismatch %s vs %s", f.dims, other.dims))
	}
}

func (f *ScalarField) vector(a *grid.Array3D[float32]) blas32.Vector {
	return blas32.Vector{N: len(a.Data()), Inc: 1, Data: a.Data()}
}

// Stats summarises the field values.
type Stats struct {
	Min, Max float64
	Set      int
	Solid    int
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("min", s.Min),
		slog.Float64("max", s.Max),
		slog.Int("set", s.Set),
		slog.Int("solid", s.Solid),
	)
}

// Stats returns the value range and flag counts.
func (f *ScalarField) Stats() Stats {
	vals := make([]float64, len(f.values.Data()))
	for i, v := range f.values.Data() {
		vals[i] = float64(v)
	}
	var s Stats
	s.Min = floats.Min(vals)
	s.Max = floats.Max(vals)
	for i, set := range f.isSet.Data() {
		if set {
			s.Set++
		}
		if f.solid.Data()[i] {
			s.Solid++
		}
	}
	return s
}
