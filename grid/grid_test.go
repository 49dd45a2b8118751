package grid

import (
	"math"
	"testing"
)

func TestDimsIndexRoundTrip(t *testing.T) {
	d := Dims{I: 3, J: 4, K: 5}
	for idx := 0; idx < d.Len(); idx++ {
		i, j, k := d.Coords(idx)
		if got := d.Index(i, j, k); got != idx {
			t.Fatalf("Index(Coords(%d)) = %d", idx, got)
		}
	}
	if d.Index(1, 0, 0) != 1 || d.Index(0, 1, 0) != 3 || d.Index(0, 0, 1) != 12 {
		t.Error("i must vary fastest")
	}
}

func TestArrayBoundsPanic(t *testing.T) {
	a := NewArray3D[int](2, 2, 2)
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-range access")
		}
	}()
	a.At(2, 0, 0)
}

func TestViewClipsAndWritesThrough(t *testing.T) {
	a := NewArray3D[int](4, 4, 4)
	v := a.View(2, 1, 0, Dims{I: 4, J: 2, K: 10})
	if got := v.Dims(); got != (Dims{I: 2, J: 2, K: 4}) {
		t.Fatalf("clipped dims = %v", got)
	}
	v.Set(1, 1, 3, 7)
	if a.At(3, 2, 3) != 7 {
		t.Error("view write did not reach parent")
	}
	*v.Ptr(0, 0, 0) = 5
	if a.At(2, 1, 0) != 5 {
		t.Error("view pointer did not alias parent")
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic for view index outside clipped extent")
		}
	}()
	v.At(2, 0, 0)
}

func TestSubdividedMapsToNative(t *testing.T) {
	native := NewArray3D[bool](2, 2, 2)
	native.Set(1, 0, 1, true)
	s := NewSubdivided(native, 3)
	if s.Dims() != (Dims{I: 6, J: 6, K: 6}) {
		t.Fatalf("dims = %v", s.Dims())
	}
	tests := []struct {
		i, j, k int
		want    bool
	}{
		{3, 0, 3, true},
		{5, 2, 5, true},
		{2, 0, 3, false},
		{3, 3, 3, false},
	}
	for _, tt := range tests {
		if got := s.At(tt.i, tt.j, tt.k); got != tt.want {
			t.Errorf("At(%d,%d,%d) = %v, want %v", tt.i, tt.j, tt.k, got, tt.want)
		}
	}
}

func TestSubdividedRejectsLevelZero(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewSubdivided(NewArray3D[int](1, 1, 1), 0)
}

func linearArray(n int) *Array3D[float32] {
	a := NewArray3D[float32](n, n, n)
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				a.Set(i, j, k, float32(i+2*j+3*k))
			}
		}
	}
	return a
}

func TestTrilinearReproducesLinear(t *testing.T) {
	a := linearArray(4)
	tests := []struct{ x, y, z float64 }{
		{0.5, 0.5, 0.5},
		{1.25, 2.75, 0.1},
		{3, 3, 3},
		{0, 0, 0},
	}
	for _, tt := range tests {
		got, ok := Trilinear(a, tt.x, tt.y, tt.z)
		want := tt.x + 2*tt.y + 3*tt.z
		if !ok || math.Abs(float64(got)-want) > 1e-4 {
			t.Errorf("Trilinear(%v,%v,%v) = %v,%v want %v", tt.x, tt.y, tt.z, got, ok, want)
		}
	}
	if _, ok := Trilinear(a, -0.1, 1, 1); ok {
		t.Error("outside sample should report false")
	}
}

func TestTricubicClampsOvershoot(t *testing.T) {
	a := NewArray3D[float32](6, 6, 6)
	a.Set(3, 2, 2, 1)
	v, ok := Tricubic(a, 2.5, 2, 2)
	if !ok {
		t.Fatal("expected interior sample")
	}
	if v < 0 || v > 1 {
		t.Errorf("tricubic = %v escaped neighbourhood range", v)
	}
	lin := linearArray(6)
	got, _ := Tricubic(lin, 2.5, 2.25, 2.75)
	if want := 2.5 + 2*2.25 + 3*2.75; math.Abs(float64(got)-want) > 1e-3 {
		t.Errorf("tricubic linear = %v, want %v", got, want)
	}
}

func TestTricubicNearBoundary(t *testing.T) {
	a := NewArray3D[float32](6, 6, 6)
	a.Fill(1)
	tests := []struct {
		name    string
		x, y, z float64
	}{
		{"first cell layer", 0.5, 2.5, 2.5},
		{"last cell layer", 4.5, 4.5, 4.5},
		{"origin corner", 0, 0, 0},
		{"far corner", 5, 5, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Tricubic(a, tt.x, tt.y, tt.z)
			if !ok || math.Abs(float64(got)-1) > 1e-6 {
				t.Errorf("Tricubic(%v,%v,%v) = %v,%v want 1,true", tt.x, tt.y, tt.z, got, ok)
			}
		})
	}

	lin := linearArray(6)
	got, ok := Tricubic(lin, 4.75, 0.25, 2)
	if !ok || got < 4+0+6 || got > 5+2+9 {
		t.Errorf("edge linear sample = %v,%v escaped its neighbourhood", got, ok)
	}
	for _, p := range [][3]float64{{-0.01, 2, 2}, {2, 5.01, 2}, {2, 2, 6}} {
		if _, ok := Tricubic(a, p[0], p[1], p[2]); ok {
			t.Errorf("Tricubic%v should report false outside the lattice", p)
		}
	}
}
