package grid

import "fmt"

// View is a window into a parent Array3D. It captures an index range over
// the parent's storage; the parent keeps ownership and must outlive it.
type View[T any] struct {
	parent     *Array3D[T]
	oi, oj, ok int
	dims       Dims
}

func newView[T any](parent *Array3D[T], oi, oj, ok int, extent Dims) *View[T] {
	pd := parent.dims
	if oi < 0 || oj < 0 || ok < 0 {
		panic(fmt.Sprintf("grid: negative view offset (%d,%d,%d)", oi, oj, ok))
	}
	clipped := Dims{
		I: max(0, min(extent.I, pd.I-oi)),
		J: max(0, min(extent.J, pd.J-oj)),
		K: max(0, min(extent.K, pd.K-ok)),
	}
	return &View[T]{parent: parent, oi: oi, oj: oj, ok: ok, dims: clipped}
}

// Dims returns the clipped view extent.
func (v *View[T]) Dims() Dims { return v.dims }

// Offset returns the view origin in parent coordinates.
func (v *View[T]) Offset() (i, j, k int) { return v.oi, v.oj, v.ok }

// InRange reports whether (i, j, k) is a valid view-local index.
func (v *View[T]) InRange(i, j, k int) bool {
	return v.dims.Contains(i, j, k)
}

// At reads the view-local element (i, j, k).
func (v *View[T]) At(i, j, k int) T {
	v.check(i, j, k)
	return v.parent.At(i+v.oi, j+v.oj, k+v.ok)
}

// Set writes the view-local element (i, j, k).
func (v *View[T]) Set(i, j, k int, val T) {
	v.check(i, j, k)
	v.parent.Set(i+v.oi, j+v.oj, k+v.ok, val)
}

// Ptr returns a pointer into the parent storage for view-local (i, j, k).
func (v *View[T]) Ptr(i, j, k int) *T {
	v.check(i, j, k)
	return v.parent.Ptr(i+v.oi, j+v.oj, k+v.ok)
}

func (v *View[T]) check(i, j, k int) {
	if !v.dims.Contains(i, j, k) {
		panic(fmt.Sprintf("grid: view index (%d,%d,%d) out of range %s", i, j, k, v.dims))
	}
}
