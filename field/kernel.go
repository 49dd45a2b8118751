package field

import "fmt"

// Kernel is the smooth metaball falloff
//
//	w(d²) = 1 - c1·d⁶ + c2·d⁴ - c3·d²
//
// with w(0) = 1 and w(r) = 0. Contributions at d >= r are zero.
type Kernel struct {
	R, R2      float32
	C1, C2, C3 float32
}

// NewKernel precomputes the coefficients for radius r. r must be positive.
func NewKernel(r float64) Kernel {
	if r <= 0 {
		panic(fmt.Sprintf("field: kernel radius must be positive, got %v", r))
	}
	r2 := r * r
	r4 := r2 * r2
	r6 := r4 * r2
	return Kernel{
		R:  float32(r),
		R2: float32(r2),
		C1: float32(4.0 / (9.0 * r6)),
		C2: float32(17.0 / (9.0 * r4)),
		C3: float32(22.0 / (9.0 * r2)),
	}
}

// Eval returns the kernel weight for squared distance d2.
func (k Kernel) Eval(d2 float32) float32 {
	if d2 >= k.R2 {
		return 0
	}
	d4 := d2 * d2
	d6 := d4 * d2
	return 1 - k.C1*d6 + k.C2*d4 - k.C3*d2
}
