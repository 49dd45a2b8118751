package grid

import (
	"math"

	"github.com/chewxy/math32"
)

// Trilinear samples a at fractional lattice coordinates (gx, gy, gz). The
// second result is false when the 2x2x2 stencil leaves the lattice.
func Trilinear(a *Array3D[float32], gx, gy, gz float64) (float32, bool) {
	d := a.Dims()
	i, j, k := cell(gx, d.I), cell(gy, d.J), cell(gz, d.K)
	if !a.InRange(i, j, k) || !a.InRange(i+1, j+1, k+1) {
		return 0, false
	}
	fx := float32(gx - float64(i))
	fy := float32(gy - float64(j))
	fz := float32(gz - float64(k))

	c00 := lerp(a.At(i, j, k), a.At(i+1, j, k), fx)
	c10 := lerp(a.At(i, j+1, k), a.At(i+1, j+1, k), fx)
	c01 := lerp(a.At(i, j, k+1), a.At(i+1, j, k+1), fx)
	c11 := lerp(a.At(i, j+1, k+1), a.At(i+1, j+1, k+1), fx)
	c0 := lerp(c00, c10, fy)
	c1 := lerp(c01, c11, fy)
	return lerp(c0, c1, fz), true
}

// TrilinearClamped samples like Trilinear but clamps the coordinates to the
// lattice so boundary queries still resolve.
func TrilinearClamped(a *Array3D[float32], gx, gy, gz float64) float32 {
	d := a.Dims()
	gx = clampCoord(gx, d.I)
	gy = clampCoord(gy, d.J)
	gz = clampCoord(gz, d.K)
	i, j, k := int(floor(gx)), int(floor(gy)), int(floor(gz))
	i1, j1, k1 := min(i+1, d.I-1), min(j+1, d.J-1), min(k+1, d.K-1)
	fx := float32(gx - float64(i))
	fy := float32(gy - float64(j))
	fz := float32(gz - float64(k))

	c00 := lerp(a.At(i, j, k), a.At(i1, j, k), fx)
	c10 := lerp(a.At(i, j1, k), a.At(i1, j1, k), fx)
	c01 := lerp(a.At(i, j, k1), a.At(i1, j, k1), fx)
	c11 := lerp(a.At(i, j1, k1), a.At(i1, j1, k1), fx)
	return lerp(lerp(c00, c10, fy), lerp(c01, c11, fy), fz)
}

// Tricubic samples a with a Catmull-Rom tensor spline over the 4x4x4
// neighbourhood and clamps the result to that neighbourhood's range.
// Stencil indices past the lattice edge repeat the edge values. The second
// result is false when (gx, gy, gz) lies outside the lattice.
func Tricubic(a *Array3D[float32], gx, gy, gz float64) (float32, bool) {
	d := a.Dims()
	if !inLattice(gx, d.I) || !inLattice(gy, d.J) || !inLattice(gz, d.K) {
		return 0, false
	}
	i, j, k := cell(gx, d.I), cell(gy, d.J), cell(gz, d.K)
	fx := float32(gx - float64(i))
	fy := float32(gy - float64(j))
	fz := float32(gz - float64(k))

	lo, hi := float32(math32.MaxFloat32), float32(-math32.MaxFloat32)
	var planes [4]float32
	for dk := 0; dk < 4; dk++ {
		kk := clampIndex(k+dk-1, d.K)
		var rows [4]float32
		for dj := 0; dj < 4; dj++ {
			jj := clampIndex(j+dj-1, d.J)
			var p [4]float32
			for di := 0; di < 4; di++ {
				v := a.At(clampIndex(i+di-1, d.I), jj, kk)
				lo = math32.Min(lo, v)
				hi = math32.Max(hi, v)
				p[di] = v
			}
			rows[dj] = cubic(p, fx)
		}
		planes[dk] = cubic(rows, fy)
	}
	v := cubic(planes, fz)
	return math32.Max(lo, math32.Min(hi, v)), true
}

func inLattice(x float64, n int) bool {
	return x >= 0 && x <= float64(n-1)
}

func clampIndex(i, n int) int {
	return max(0, min(i, n-1))
}

func cubic(p [4]float32, x float32) float32 {
	return p[1] + 0.5*x*(p[2]-p[0]+x*(2*p[0]-5*p[1]+4*p[2]-p[3]+x*(3*(p[1]-p[2])+p[3]-p[0])))
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

func floor(x float64) float64 {
	return math.Floor(x)
}

// cell returns the lower stencil index for x, snapping a coordinate lying
// exactly on the last lattice plane into the final cell.
func cell(x float64, n int) int {
	i := int(floor(x))
	if i == n-1 && x == float64(i) && n > 1 {
		return i - 1
	}
	return i
}

func clampCoord(x float64, n int) float64 {
	if x < 0 {
		return 0
	}
	if hi := float64(n - 1); x > hi {
		return hi
	}
	return x
}
