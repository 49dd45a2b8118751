// Package grid provides dense 3D lattice containers shared by the scalar
// field, level sets and the accelerator's work-group views.
package grid

import "fmt"

// Dims is the extent of a 3D lattice along each axis.
type Dims struct {
	I, J, K int
}

// Len returns the number of lattice elements.
func (d Dims) Len() int {
	return d.I * d.J * d.K
}

// Index flattens (i, j, k) with i varying fastest.
func (d Dims) Index(i, j, k int) int {
	return i + d.I*(j+d.J*k)
}

// Coords is the inverse of Index.
func (d Dims) Coords(idx int) (i, j, k int) {
	i = idx % d.I
	j = (idx / d.I) % d.J
	k = idx / (d.I * d.J)
	return i, j, k
}

// Contains reports whether (i, j, k) lies inside the lattice.
func (d Dims) Contains(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 && i < d.I && j < d.J && k < d.K
}

func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%d", d.I, d.J, d.K)
}

// Array3D is a dense, row-major (i fastest) 3D array.
type Array3D[T any] struct {
	dims Dims
	data []T
}

// NewArray3D allocates a zeroed array. Negative sizes panic.
func NewArray3D[T any](isize, jsize, ksize int) *Array3D[T] {
	if isize < 0 || jsize < 0 || ksize < 0 {
		panic(fmt.Sprintf("grid: invalid array size %dx%dx%d", isize, jsize, ksize))
	}
	d := Dims{I: isize, J: jsize, K: ksize}
	return &Array3D[T]{dims: d, data: make([]T, d.Len())}
}

// NewArray3DFill allocates an array with every element set to v.
func NewArray3DFill[T any](isize, jsize, ksize int, v T) *Array3D[T] {
	a := NewArray3D[T](isize, jsize, ksize)
	a.Fill(v)
	return a
}

// Dims returns the array extent.
func (a *Array3D[T]) Dims() Dims { return a.dims }

// Data exposes the backing slice in Dims.Index order.
func (a *Array3D[T]) Data() []T { return a.data }

// InRange reports whether (i, j, k) is a valid index.
func (a *Array3D[T]) InRange(i, j, k int) bool {
	return a.dims.Contains(i, j, k)
}

// At returns the element at (i, j, k). Out-of-range indices panic.
func (a *Array3D[T]) At(i, j, k int) T {
	a.check(i, j, k)
	return a.data[a.dims.Index(i, j, k)]
}

// Set stores v at (i, j, k).
func (a *Array3D[T]) Set(i, j, k int, v T) {
	a.check(i, j, k)
	a.data[a.dims.Index(i, j, k)] = v
}

// Ptr returns a pointer to the element at (i, j, k).
func (a *Array3D[T]) Ptr(i, j, k int) *T {
	a.check(i, j, k)
	return &a.data[a.dims.Index(i, j, k)]
}

// Fill sets every element to v.
func (a *Array3D[T]) Fill(v T) {
	for i := range a.data {
		a.data[i] = v
	}
}

// Clone returns a deep copy.
func (a *Array3D[T]) Clone() *Array3D[T] {
	c := &Array3D[T]{dims: a.dims, data: make([]T, len(a.data))}
	copy(c.data, a.data)
	return c
}

// View returns a bounds-checked window starting at (oi, oj, ok). The extent
// is clipped to the array.
func (a *Array3D[T]) View(oi, oj, ok int, extent Dims) *View[T] {
	return newView(a, oi, oj, ok, extent)
}

func (a *Array3D[T]) check(i, j, k int) {
	if !a.dims.Contains(i, j, k) {
		panic(fmt.Sprintf("grid: index (%d,%d,%d) out of range %s", i, j, k, a.dims))
	}
}
