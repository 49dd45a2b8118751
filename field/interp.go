package field

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/grid"
)

// TrilinearInterpolation samples the field at world position p. Points
// outside the lattice return 0.
func (f *ScalarField) TrilinearInterpolation(p r3.Vec) float32 {
	gx, gy, gz := f.GridCoords(p)
	v, ok := grid.Trilinear(f.values, gx, gy, gz)
	if !ok {
		return 0
	}
	return v
}

// TricubicInterpolation samples the field at world position p with a
// Catmull-Rom spline, clamped to the surrounding 4x4x4 value range. Points
// outside the lattice return 0.
func (f *ScalarField) TricubicInterpolation(p r3.Vec) float32 {
	gx, gy, gz := f.GridCoords(p)
	v, ok := grid.Tricubic(f.values, gx, gy, gz)
	if !ok {
		return 0
	}
	return v
}

// Gradient returns the central-difference gradient of the trilinear field.
func (f *ScalarField) Gradient(p r3.Vec) r3.Vec {
	h := 0.5 * f.dx
	return r3.Gradient(p, r3.Vec{X: h, Y: h, Z: h}, func(q r3.Vec) float64 {
		return float64(f.TrilinearInterpolation(q))
	})
}
