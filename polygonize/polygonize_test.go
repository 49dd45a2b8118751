package polygonize

import (
	"errors"
	"math"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/field"
	"github.com/pthm-cable/fluidmesh/grid"
)

// sphereField returns an n³ field holding radius-|p-c| with threshold 0,
// so the surface is a sphere of the given radius around the lattice centre.
func sphereField(n int, dx, radius float64) *field.ScalarField {
	f := field.New(n, n, n, dx)
	f.SetSurfaceThreshold(0)
	half := float64(n-1) * dx / 2
	c := r3.Vec{X: half, Y: half, Z: half}
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				f.SetValue(i, j, k, float32(radius-r3.Norm(r3.Sub(f.Position(i, j, k), c))))
			}
		}
	}
	return f
}

func sphereVolume(r float64) float64 { return 4.0 / 3.0 * math.Pi * r * r * r }

func TestMarchingTetrahedraSphere(t *testing.T) {
	f := sphereField(25, 0.05, 0.4)
	m, err := MarchingTetrahedra{}.Polygonize(f, nil)
	if err != nil {
		t.Fatalf("Polygonize: %v", err)
	}
	if m.NumTriangles() == 0 {
		t.Fatal("no triangles")
	}
	if !m.IsClosed() {
		t.Errorf("sphere mesh has %d boundary edges", len(m.BoundaryEdges()))
	}
	want := sphereVolume(0.4)
	if got := m.Volume(); math.Abs(got-want)/want > 0.05 {
		t.Errorf("volume = %.4f, want %.4f within 5%%", got, want)
	}
	b := m.Bounds()
	centre := r3.Scale(0.5, r3.Add(b.Min, b.Max))
	if d := r3.Norm(r3.Sub(centre, r3.Vec{X: 0.6, Y: 0.6, Z: 0.6})); d > 0.01 {
		t.Errorf("mesh centre %v off by %.4f", centre, d)
	}
}

func TestMarchingTetrahedraSolidShellCloses(t *testing.T) {
	const n = 8
	f := field.New(n, n, n, 0.1)
	f.Fill(1)
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				if i == 0 || j == 0 || k == 0 || i == n-1 || j == n-1 || k == n-1 {
					f.SetVertexSolid(i, j, k, true)
				}
			}
		}
	}
	m, err := MarchingTetrahedra{}.Polygonize(f, nil)
	if err != nil {
		t.Fatalf("Polygonize: %v", err)
	}
	if !m.IsClosed() {
		t.Errorf("mesh against solid shell has %d boundary edges", len(m.BoundaryEdges()))
	}
	if v := m.Volume(); v <= 0 {
		t.Errorf("volume = %f, want positive (outward winding)", v)
	}
}

func TestMarchingTetrahedraMask(t *testing.T) {
	f := sphereField(12, 0.1, 0.35)
	const cells = 11

	tests := []struct {
		name  string
		mask  func() *grid.Array3D[bool]
		check func(t *testing.T, full, got int)
	}{
		{
			name: "all masked",
			mask: func() *grid.Array3D[bool] { return grid.NewArray3D[bool](cells, cells, cells) },
			check: func(t *testing.T, full, got int) {
				if got != 0 {
					t.Errorf("got %d triangles, want 0", got)
				}
			},
		},
		{
			name: "all open",
			mask: func() *grid.Array3D[bool] { return grid.NewArray3DFill(cells, cells, cells, true) },
			check: func(t *testing.T, full, got int) {
				if got != full {
					t.Errorf("got %d triangles, want %d", got, full)
				}
			},
		},
		{
			name: "half open",
			mask: func() *grid.Array3D[bool] {
				a := grid.NewArray3D[bool](cells, cells, cells)
				for k := 0; k < cells; k++ {
					for j := 0; j < cells; j++ {
						for i := 0; i < cells/2; i++ {
							a.Set(i, j, k, true)
						}
					}
				}
				return a
			},
			check: func(t *testing.T, full, got int) {
				if got == 0 || got >= full {
					t.Errorf("got %d triangles, want between 0 and %d", got, full)
				}
			},
		},
	}

	full, err := MarchingTetrahedra{}.Polygonize(f, nil)
	if err != nil {
		t.Fatalf("Polygonize: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := MarchingTetrahedra{}.Polygonize(f, tt.mask())
			if err != nil {
				t.Fatalf("Polygonize: %v", err)
			}
			tt.check(t, full.NumTriangles(), m.NumTriangles())
		})
	}
}

func TestMarchingTetrahedraMaskDims(t *testing.T) {
	f := sphereField(6, 0.1, 0.2)
	if _, err := (MarchingTetrahedra{}).Polygonize(f, grid.NewArray3D[bool](6, 6, 6)); err == nil {
		t.Error("expected error for vertex-sized mask")
	}
}

func TestSDFXSphere(t *testing.T) {
	f := sphereField(25, 0.05, 0.4)
	m, err := SDFX{Cells: 32}.Polygonize(f, nil)
	if err != nil {
		t.Fatalf("Polygonize: %v", err)
	}
	if m.NumTriangles() == 0 {
		t.Fatal("no triangles")
	}
	want := sphereVolume(0.4)
	if got := math.Abs(m.Volume()); math.Abs(got-want)/want > 0.15 {
		t.Errorf("volume = %.4f, want %.4f within 15%%", got, want)
	}
}

func TestSDFXRejectsMask(t *testing.T) {
	f := sphereField(6, 0.1, 0.2)
	_, err := SDFX{}.Polygonize(f, grid.NewArray3D[bool](5, 5, 5))
	if !errors.Is(err, ErrMaskUnsupported) {
		t.Errorf("err = %v, want ErrMaskUnsupported", err)
	}
}

func TestFieldSDFOutsideLattice(t *testing.T) {
	f := sphereField(6, 0.1, 0.2)
	s := NewFieldSDF(f)
	bb := s.BoundingBox()
	if math.Abs(bb.Max.X-0.5) > 1e-12 {
		t.Errorf("bbox max x = %f, want 0.5", bb.Max.X)
	}
	centre := v3.Vec{X: bb.Max.X / 2, Y: bb.Max.Y / 2, Z: bb.Max.Z / 2}
	if v := s.Evaluate(centre); v >= 0 {
		t.Errorf("centre evaluates to %f, want negative", v)
	}
	far := bb.Max
	far.X += 1
	if v := s.Evaluate(far); v <= 0 {
		t.Errorf("outside point evaluates to %f, want positive", v)
	}
}
