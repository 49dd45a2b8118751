package mesher

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/accel"
	"github.com/pthm-cable/fluidmesh/field"
	"github.com/pthm-cable/fluidmesh/levelset"
	"github.com/pthm-cable/fluidmesh/mesh"
	"github.com/pthm-cable/fluidmesh/telemetry"
)

func sphereVolume(r float64) float64 { return 4.0 / 3.0 * math.Pi * r * r * r }

// cloud returns n particles inside a 20x12x12 grid of 0.05 cells, plus one
// touching the low x wall.
func cloud(n int) []r3.Vec {
	rng := rand.New(rand.NewPCG(7, 11))
	pts := make([]r3.Vec, 0, n+1)
	for range n {
		pts = append(pts, r3.Vec{
			X: 0.1 + 0.8*rng.Float64(),
			Y: 0.1 + 0.4*rng.Float64(),
			Z: 0.1 + 0.4*rng.Float64(),
		})
	}
	return append(pts, r3.Vec{X: 0.02, Y: 0.3, Z: 0.3})
}

func TestSingleParticleSphere(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		minFrac float64 // mesh radius bounds as a fraction of r
		maxFrac float64
	}{
		{"level set", nil, 0.85, 1.05},
		{"metaball", []Option{WithMetaballs(0.5)}, 0.3, 0.95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const r = 0.1
			centre := r3.Vec{X: 0.25, Y: 0.25, Z: 0.25}
			m := New(10, 10, 10, 0.05, tt.opts...)
			out, err := m.MeshParticles([]r3.Vec{centre}, r, nil)
			if err != nil {
				t.Fatalf("MeshParticles: %v", err)
			}
			if !out.IsClosed() {
				t.Fatalf("mesh has %d boundary edges", len(out.BoundaryEdges()))
			}
			if out.Volume() <= 0 {
				t.Errorf("volume = %v, want positive", out.Volume())
			}
			for _, v := range out.Vertices {
				d := r3.Norm(r3.Sub(v, centre))
				if d < tt.minFrac*r || d > tt.maxFrac*r {
					t.Fatalf("vertex %v at distance %.4f, want within [%.3f, %.3f]", v, d, tt.minFrac*r, tt.maxFrac*r)
				}
			}
		})
	}
}

func TestSingleParticleVolume(t *testing.T) {
	const r = 0.1
	m := New(10, 10, 10, 0.05)
	m.SetSubdivisionLevel(2)
	out, err := m.MeshParticles([]r3.Vec{{X: 0.25, Y: 0.25, Z: 0.25}}, r, nil)
	if err != nil {
		t.Fatalf("MeshParticles: %v", err)
	}
	want := sphereVolume(r)
	if got := out.Volume(); math.Abs(got-want)/want > 0.1 {
		t.Errorf("volume = %.6f, want %.6f within 10%%", got, want)
	}
}

func TestSlicedMatchesWhole(t *testing.T) {
	pts := cloud(40)
	const r = 0.08

	whole, err := New(20, 12, 12, 0.05).MeshParticles(pts, r, nil)
	if err != nil {
		t.Fatalf("whole: %v", err)
	}
	if !whole.IsClosed() {
		t.Fatalf("whole mesh has %d boundary edges", len(whole.BoundaryEdges()))
	}
	wantVol := whole.Volume()

	for _, n := range []int{2, 3, 6, 7, 20} {
		t.Run(fmt.Sprintf("%d slices", n), func(t *testing.T) {
			m := New(20, 12, 12, 0.05)
			m.SetNumPolygonizationSlices(n)
			out, err := m.MeshParticles(pts, r, nil)
			if err != nil {
				t.Fatalf("%d slices: %v", n, err)
			}
			if !out.IsClosed() {
				t.Errorf("%d slices: %d boundary edges", n, len(out.BoundaryEdges()))
			}
			if got := out.Volume(); math.Abs(got-wantVol) > 1e-6*wantVol {
				t.Errorf("%d slices: volume %.8f, want %.8f", n, got, wantVol)
			}
			if out.NumTriangles() != whole.NumTriangles() {
				t.Errorf("%d slices: %d triangles, want %d", n, out.NumTriangles(), whole.NumTriangles())
			}
			if out.NumVertices() != whole.NumVertices() {
				t.Errorf("%d slices: %d vertices, want %d (seam duplicates left)", n, out.NumVertices(), whole.NumVertices())
			}
			if st := m.LastStats(); st.Welded == 0 {
				t.Errorf("%d slices: no seam vertices welded", n)
			}
		})
	}
}

func TestSlicedWithSolidMatchesWhole(t *testing.T) {
	pts := cloud(40)
	const r = 0.08

	// Obstacle box [0.4,0.6]x[0.2,0.4]x[0.2,0.4] on the mesh lattice.
	box := boxMesh(r3.Vec{X: 0.4, Y: 0.2, Z: 0.2}, r3.Vec{X: 0.6, Y: 0.4, Z: 0.4})
	ls := levelset.NewMeshLevelSet(20, 12, 12, 0.05)
	if err := ls.CalculateSignedDistanceField(box, 2); err != nil {
		t.Fatalf("CalculateSignedDistanceField: %v", err)
	}

	whole, err := New(20, 12, 12, 0.05).MeshParticles(pts, r, ls)
	if err != nil {
		t.Fatalf("whole: %v", err)
	}
	m := New(20, 12, 12, 0.05)
	m.SetNumPolygonizationSlices(3)
	sliced, err := m.MeshParticles(pts, r, ls)
	if err != nil {
		t.Fatalf("sliced: %v", err)
	}

	if !whole.IsClosed() || !sliced.IsClosed() {
		t.Fatalf("closed: whole %v sliced %v", whole.IsClosed(), sliced.IsClosed())
	}
	if d := math.Abs(whole.Volume() - sliced.Volume()); d > 1e-6*whole.Volume() {
		t.Errorf("volume differs by %g", d)
	}

	free, err := New(20, 12, 12, 0.05).MeshParticles(pts, r, nil)
	if err != nil {
		t.Fatalf("no solid: %v", err)
	}
	if whole.Volume() >= free.Volume() {
		t.Errorf("solid did not carve fluid: %v >= %v", whole.Volume(), free.Volume())
	}
}

// boxMesh returns an outward-wound axis-aligned box.
func boxMesh(lo, hi r3.Vec) *mesh.TriangleMesh {
	v := func(x, y, z float64) r3.Vec { return r3.Vec{X: x, Y: y, Z: z} }
	m := &mesh.TriangleMesh{Vertices: []r3.Vec{
		v(lo.X, lo.Y, lo.Z), v(hi.X, lo.Y, lo.Z), v(hi.X, hi.Y, lo.Z), v(lo.X, hi.Y, lo.Z),
		v(lo.X, lo.Y, hi.Z), v(hi.X, lo.Y, hi.Z), v(hi.X, hi.Y, hi.Z), v(lo.X, hi.Y, hi.Z),
	}}
	m.Triangles = [][3]int{
		{0, 2, 1}, {0, 3, 2}, // -z
		{4, 5, 6}, {4, 6, 7}, // +z
		{0, 1, 5}, {0, 5, 4}, // -y
		{3, 6, 2}, {3, 7, 6}, // +y
		{0, 4, 7}, {0, 7, 3}, // -x
		{1, 2, 6}, {1, 6, 5}, // +x
	}
	return m
}

func TestSlabs(t *testing.T) {
	tests := []struct {
		name string
		w, n int
		want []slab
	}{
		{"single", 5, 1, []slab{{0, 5, 0, 5}}},
		{"uneven", 10, 3, []slab{{0, 4, 0, 5}, {4, 8, 3, 9}, {8, 10, 7, 10}}},
		{"unit width", 3, 3, []slab{{0, 1, 0, 2}, {1, 2, 0, 3}, {2, 3, 1, 3}}},
		{"fewer than requested", 7, 6, []slab{{0, 2, 0, 3}, {2, 4, 1, 5}, {4, 6, 3, 7}, {6, 7, 5, 7}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := slabs(tt.w, tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("slabs(%d, %d) = %v, want %v", tt.w, tt.n, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("slab %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSeamColumnsMatch(t *testing.T) {
	pts := cloud(30)
	m := New(20, 12, 12, 0.05)
	parts := slabs(20, 3)

	// Build adjacent slabs independently and compare their shared columns.
	fields := make([]*fieldPair, len(parts))
	for i, s := range parts {
		f := m.newField(s.a0, s.a1-s.a0)
		m.splat(f, particlesTouching(pts, m.support(0.08), fieldBounds(f)), 0.08)
		fields[i] = &fieldPair{s: s, f: f}
	}
	for i := 1; i < len(fields); i++ {
		prev, cur := fields[i-1], fields[i]
		d := cur.f.Dims()
		pd := prev.f.Dims()
		for k := 0; k < d.K; k++ {
			for j := 0; j < d.J; j++ {
				for c := 0; c < seamWidth; c++ {
					a := prev.f.RawValue(pd.I-seamWidth+c, j, k)
					b := cur.f.RawValue(c, j, k)
					if math.Abs(float64(a-b)) > 1e-6 {
						t.Fatalf("seam %d column %d (%d,%d): %v vs %v", i, c, j, k, a, b)
					}
				}
			}
		}
	}
}

type fieldPair struct {
	s slab
	f *field.ScalarField
}

func TestSubdivisionAndSliceValidation(t *testing.T) {
	m := New(4, 4, 4, 0.1)

	mustPanic := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s: expected panic", name)
			}
		}()
		fn()
	}
	mustPanic("subdivision 0", func() { m.SetSubdivisionLevel(0) })
	mustPanic("slices 0", func() { m.SetNumPolygonizationSlices(0) })
	mustPanic("radius 0", func() { _, _ = m.MeshParticles(nil, 0, nil) })
	mustPanic("grid", func() { New(0, 4, 4, 0.1) })

	m.SetNumPolygonizationSlices(100)
	if got := m.NumPolygonizationSlices(); got != 4 {
		t.Errorf("slices = %d, want clamped to 4", got)
	}
	m.SetSubdivisionLevel(2)
	m.SetNumPolygonizationSlices(100)
	if got := m.NumPolygonizationSlices(); got != 8 {
		t.Errorf("slices = %d, want clamped to 8", got)
	}
}

func TestEmptyParticles(t *testing.T) {
	out, err := New(6, 6, 6, 0.1).MeshParticles(nil, 0.1, nil)
	if err != nil {
		t.Fatalf("MeshParticles: %v", err)
	}
	if out.NumTriangles() != 0 {
		t.Errorf("got %d triangles from no particles", out.NumTriangles())
	}
}

func TestGPUMatchesCPU(t *testing.T) {
	pts := cloud(60)
	const r = 0.08

	tests := []struct {
		name string
		opts []Option
	}{
		{"level set", nil},
		{"metaball", []Option{WithMetaballs(0.5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cpu, err := New(20, 12, 12, 0.05, tt.opts...).MeshParticles(pts, r, nil)
			if err != nil {
				t.Fatalf("cpu: %v", err)
			}

			cfg := accel.DefaultConfig()
			cfg.MaxParticlesPerChunk = 16
			cfg.MaxBatchSize = 8
			a := accel.New(accel.NewSoftwareDevice(accel.DefaultCapabilities()), cfg)
			m := New(20, 12, 12, 0.05, append(tt.opts, WithAccelerator(a))...)
			m.SetNumPolygonizationSlices(2)
			gpu, err := m.MeshParticles(pts, r, nil)
			if err != nil {
				t.Fatalf("gpu: %v", err)
			}
			if !m.LastStats().GPU || m.LastStats().Batches == 0 {
				t.Errorf("stats = %+v, want device batches", m.LastStats())
			}
			if !gpu.IsClosed() {
				t.Errorf("gpu mesh has %d boundary edges", len(gpu.BoundaryEdges()))
			}
			if d := math.Abs(gpu.Volume() - cpu.Volume()); d > 1e-3*cpu.Volume() {
				t.Errorf("volume differs: gpu %v cpu %v", gpu.Volume(), cpu.Volume())
			}

			m.DisableGPU()
			if m.IsUsingGPU() {
				t.Error("IsUsingGPU after DisableGPU")
			}
		})
	}
}

func TestPreviewMesh(t *testing.T) {
	pts := []r3.Vec{{X: 0.5, Y: 0.3, Z: 0.3}}
	const r = 0.2

	m := New(20, 12, 12, 0.05)
	if _, err := m.PreviewMesh(); !errors.Is(err, ErrPreviewDisabled) {
		t.Errorf("err = %v, want ErrPreviewDisabled", err)
	}
	m.EnablePreviewMesher(0.1)
	if _, err := m.PreviewMesh(); !errors.Is(err, ErrNoPreview) {
		t.Errorf("err = %v, want ErrNoPreview", err)
	}
	if d := m.PreviewField().Dims(); d.I != 11 || d.J != 7 || d.K != 7 {
		t.Errorf("preview dims = %v, want 11x7x7", d)
	}

	if _, err := m.MeshParticles(pts, r, nil); err != nil {
		t.Fatalf("MeshParticles: %v", err)
	}
	whole := m.PreviewField().Values().Clone()

	prev, err := m.PreviewMesh()
	if err != nil {
		t.Fatalf("PreviewMesh: %v", err)
	}
	if prev.NumTriangles() == 0 {
		t.Fatal("empty preview mesh")
	}
	want := sphereVolume(r)
	if got := math.Abs(prev.Volume()); math.Abs(got-want)/want > 0.35 {
		t.Errorf("preview volume = %.5f, want about %.5f", got, want)
	}

	// Slicing must not change the resampled preview.
	m.SetNumPolygonizationSlices(3)
	if _, err := m.MeshParticles(pts, r, nil); err != nil {
		t.Fatalf("sliced MeshParticles: %v", err)
	}
	sliced := m.PreviewField().Values().Data()
	for i, v := range whole.Data() {
		if math.Abs(float64(v-sliced[i])) > 1e-5 {
			t.Fatalf("preview vertex %d: whole %v sliced %v", i, v, sliced[i])
		}
	}

	m.DisablePreviewMesher()
	if m.IsPreviewEnabled() {
		t.Error("preview still enabled")
	}
}

func TestPerfPhases(t *testing.T) {
	pc := telemetry.NewPerfCollector(4)
	m := New(20, 12, 12, 0.05, WithPerf(pc))
	m.SetNumPolygonizationSlices(2)
	if _, err := m.MeshParticles(cloud(10), 0.08, nil); err != nil {
		t.Fatalf("MeshParticles: %v", err)
	}
	stats := pc.Stats()
	if stats.Frames != 1 {
		t.Errorf("frames = %d, want 1", stats.Frames)
	}
	for _, phase := range []string{telemetry.PhaseSplat, telemetry.PhaseSolid, telemetry.PhaseSeam, telemetry.PhasePolygonize, telemetry.PhaseJoin} {
		if _, ok := stats.PhaseAvg[phase]; !ok {
			t.Errorf("phase %q not recorded", phase)
		}
	}
}
