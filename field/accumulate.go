package field

import (
	"fmt"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// AddPoint splats a unit kernel of the default radius at p.
func (f *ScalarField) AddPoint(p r3.Vec) {
	f.addPoint(p, f.kernel, 1)
}

// AddPointR splats a unit kernel of radius r at p.
func (f *ScalarField) AddPointR(p r3.Vec, r float64) {
	f.addPoint(p, f.kernelFor(r), 1)
}

// AddPointValue splats a kernel of the default radius scaled by v.
func (f *ScalarField) AddPointValue(p r3.Vec, v float64) {
	f.addPoint(p, f.kernel, float32(v))
}

// AddPointValueR splats a kernel of radius r scaled by v.
func (f *ScalarField) AddPointValueR(p r3.Vec, r, v float64) {
	f.addPoint(p, f.kernelFor(r), float32(v))
}

// AddPoints splats every point with the default radius.
func (f *ScalarField) AddPoints(pts []r3.Vec) {
	for _, p := range pts {
		f.addPoint(p, f.kernel, 1)
	}
}

// AddPointValues splats every point with its paired value. The slices must
// have equal length.
func (f *ScalarField) AddPointValues(pts []r3.Vec, vals []float64) {
	if len(pts) != len(vals) {
		panic(fmt.Sprintf("field: %d points but %d values", len(pts), len(vals)))
	}
	for i, p := range pts {
		f.addPoint(p, f.kernel, float32(vals[i]))
	}
}

func (f *ScalarField) kernelFor(r float64) Kernel {
	if r == f.radius {
		return f.kernel
	}
	return NewKernel(r)
}

func (f *ScalarField) addPoint(p r3.Vec, k Kernel, value float32) {
	r := float64(k.R)
	ext := r3.Vec{X: r, Y: r, Z: r}
	i0, j0, k0, i1, j1, k1, ok := f.vertexRange(r3.Sub(p, ext), r3.Add(p, ext))
	if !ok {
		return
	}

	for kk := k0; kk <= k1; kk++ {
		for j := j0; j <= j1; j++ {
			for i := i0; i <= i1; i++ {
				d2 := float32(r3.Norm2(r3.Sub(f.Position(i, j, kk), p)))
				if d2 >= k.R2 {
					continue
				}
				f.splat(i, j, kk, k.Eval(d2), value)
			}
		}
	}
}

// splat adds w*value at a vertex, honouring the max threshold and the
// weight field.
func (f *ScalarField) splat(i, j, k int, w, value float32) {
	idx := f.dims.Index(i, j, k)
	vals := f.values.Data()
	if f.hasMaxThreshold && vals[idx] > f.maxThreshold {
		return
	}
	vals[idx] += w * value
	f.isSet.Data()[idx] = true
	if f.weights != nil {
		f.weights.Data()[idx] += w
	}
}

// AddEllipsoid splats an anisotropic unit kernel of the default radius at p.
// G maps world offsets into the kernel's isotropic space, so a vertex at
// offset x receives w(|G·x|²).
func (f *ScalarField) AddEllipsoid(p r3.Vec, g *r3.Mat) {
	f.addEllipsoid(p, g, f.kernel, 1)
}

// AddEllipsoidR is AddEllipsoid with radius r.
func (f *ScalarField) AddEllipsoidR(p r3.Vec, g *r3.Mat, r float64) {
	f.addEllipsoid(p, g, f.kernelFor(r), 1)
}

// AddEllipsoidValue is AddEllipsoid scaled by v.
func (f *ScalarField) AddEllipsoidValue(p r3.Vec, g *r3.Mat, v float64) {
	f.addEllipsoid(p, g, f.kernel, float32(v))
}

// AddEllipsoidValueR is AddEllipsoid with radius r scaled by v.
func (f *ScalarField) AddEllipsoidValueR(p r3.Vec, g *r3.Mat, r, v float64) {
	f.addEllipsoid(p, g, f.kernelFor(r), float32(v))
}

func (f *ScalarField) addEllipsoid(p r3.Vec, g *r3.Mat, k Kernel, value float32) {
	ext := ellipsoidExtent(g, float64(k.R))
	i0, j0, k0, i1, j1, k1, ok := f.vertexRange(r3.Sub(p, ext), r3.Add(p, ext))
	if !ok {
		return
	}

	for kk := k0; kk <= k1; kk++ {
		for j := j0; j <= j1; j++ {
			for i := i0; i <= i1; i++ {
				local := g.MulVec(r3.Sub(f.Position(i, j, kk), p))
				d2 := float32(r3.Norm2(local))
				if d2 >= k.R2 {
					continue
				}
				f.splat(i, j, kk, k.Eval(d2), value)
			}
		}
	}
}

// ellipsoidExtent returns the half-size of the box bounding
// {x : |G·x| <= r}. Along each axis it is r times the norm of the
// matching row of G⁻¹.
func ellipsoidExtent(g *r3.Mat, r float64) r3.Vec {
	var inv mat.Dense
	if err := inv.Inverse(g); err != nil {
		panic(fmt.Sprintf("field: ellipsoid transform is singular: %v", err))
	}
	var e [3]float64
	for a := 0; a < 3; a++ {
		row := mat.Row(nil, a, &inv)
		e[a] = r * floats.Norm(row, 2)
	}
	return r3.Vec{X: e[0], Y: e[1], Z: e[2]}
}

// AddLevelSetPoint lowers vertices within 2r of p to the sphere distance
// |x - p| - r.
func (f *ScalarField) AddLevelSetPoint(p r3.Vec, r float64) {
	if r <= 0 {
		panic(fmt.Sprintf("field: level set radius must be positive, got %v", r))
	}
	support := 2 * r
	ext := r3.Vec{X: support, Y: support, Z: support}
	i0, j0, k0, i1, j1, k1, ok := f.vertexRange(r3.Sub(p, ext), r3.Add(p, ext))
	if !ok {
		return
	}

	s2 := float32(support * support)
	rr := float32(r)
	vals := f.values.Data()
	for kk := k0; kk <= k1; kk++ {
		for j := j0; j <= j1; j++ {
			for i := i0; i <= i1; i++ {
				d2 := float32(r3.Norm2(r3.Sub(f.Position(i, j, kk), p)))
				if d2 >= s2 {
					continue
				}
				idx := f.dims.Index(i, j, kk)
				if d := math32.Sqrt(d2) - rr; d < vals[idx] {
					vals[idx] = d
				}
				f.isSet.Data()[idx] = true
			}
		}
	}
}

// AddLevelSetPoints calls AddLevelSetPoint for every point.
func (f *ScalarField) AddLevelSetPoints(pts []r3.Vec, r float64) {
	for _, p := range pts {
		f.AddLevelSetPoint(p, r)
	}
}
