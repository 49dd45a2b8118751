package grid

import "fmt"

// Subdivided presents a native-resolution array at n times its resolution.
// Subdivided indices are mapped to native storage by integer division; no
// storage is duplicated.
type Subdivided[T any] struct {
	native *Array3D[T]
	level  int
}

// NewSubdivided wraps native with subdivision level n (n >= 1).
func NewSubdivided[T any](native *Array3D[T], n int) *Subdivided[T] {
	if n < 1 {
		panic(fmt.Sprintf("grid: subdivision level %d < 1", n))
	}
	return &Subdivided[T]{native: native, level: n}
}

// Level returns the subdivision factor.
func (s *Subdivided[T]) Level() int { return s.level }

// Native returns the wrapped array.
func (s *Subdivided[T]) Native() *Array3D[T] { return s.native }

// NativeDims returns the extent of the wrapped array.
func (s *Subdivided[T]) NativeDims() Dims { return s.native.dims }

// Dims returns the subdivided extent.
func (s *Subdivided[T]) Dims() Dims {
	d := s.native.dims
	return Dims{I: d.I * s.level, J: d.J * s.level, K: d.K * s.level}
}

// InRange reports whether the subdivided index is valid.
func (s *Subdivided[T]) InRange(i, j, k int) bool {
	return s.Dims().Contains(i, j, k)
}

// At returns the native element covering subdivided index (i, j, k).
func (s *Subdivided[T]) At(i, j, k int) T {
	return s.native.At(i/s.level, j/s.level, k/s.level)
}

// Set writes the native element covering subdivided index (i, j, k).
func (s *Subdivided[T]) Set(i, j, k int, v T) {
	s.native.Set(i/s.level, j/s.level, k/s.level, v)
}
