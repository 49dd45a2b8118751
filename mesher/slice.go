package mesher

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/field"
	"github.com/pthm-cable/fluidmesh/geometry"
	"github.com/pthm-cable/fluidmesh/grid"
	"github.com/pthm-cable/fluidmesh/levelset"
	"github.com/pthm-cable/fluidmesh/mesh"
	"github.com/pthm-cable/fluidmesh/telemetry"
)

// seamWidth is the number of vertex columns shared by adjacent slabs: the
// owned boundary column and one padding column on each side.
const seamWidth = 3

// slab is one x range of the sliced mesh. The slab owns cells [c0, c1) and
// its field spans cells [a0, a1), one cell wider on each interior side.
type slab struct {
	c0, c1 int
	a0, a1 int
}

func (s slab) padLeft() int { return s.c0 - s.a0 }

// slabs partitions w cells into at most n slabs of width ceil(w/n).
func slabs(w, n int) []slab {
	width := (w + n - 1) / n
	var out []slab
	for c0 := 0; c0 < w; c0 += width {
		s := slab{c0: c0, c1: min(c0+width, w)}
		s.a0, s.a1 = s.c0, s.c1
		if s.c0 > 0 {
			s.a0--
		}
		if s.c1 < w {
			s.a1++
		}
		out = append(out, s)
	}
	return out
}

// seam holds a slab's trailing vertex columns for the next slab.
type seam struct {
	values *grid.Array3D[float32]
	solid  *grid.Array3D[bool]
}

func saveSeam(f *field.ScalarField) *seam {
	d := f.Dims()
	s := &seam{
		values: grid.NewArray3D[float32](seamWidth, d.J, d.K),
		solid:  grid.NewArray3D[bool](seamWidth, d.J, d.K),
	}
	first := d.I - seamWidth
	for k := 0; k < d.K; k++ {
		for j := 0; j < d.J; j++ {
			for c := 0; c < seamWidth; c++ {
				s.values.Set(c, j, k, f.RawValue(first+c, j, k))
				s.solid.Set(c, j, k, f.IsVertexSolid(first+c, j, k))
			}
		}
	}
	return s
}

// apply overwrites f's leading columns with the saved seam.
func (s *seam) apply(f *field.ScalarField) {
	d := f.Dims()
	if sd := s.values.Dims(); sd.J != d.J || sd.K != d.K || d.I < seamWidth {
		panic(fmt.Sprintf("mesher: seam %s does not fit slab %s", sd, d))
	}
	for k := 0; k < d.K; k++ {
		for j := 0; j < d.J; j++ {
			for c := 0; c < seamWidth; c++ {
				f.SetValue(c, j, k, s.values.At(c, j, k))
				f.SetVertexSolid(c, j, k, s.solid.At(c, j, k))
			}
		}
	}
}

// fieldBounds returns the world box spanned by f's vertices.
func fieldBounds(f *field.ScalarField) r3.Box {
	d := f.Dims()
	return r3.Box{Min: f.Position(0, 0, 0), Max: f.Position(d.I-1, d.J-1, d.K-1)}
}

// particlesTouching returns the particles whose support reaches box.
func particlesTouching(particles []r3.Vec, support float64, box r3.Box) []r3.Vec {
	var out []r3.Vec
	for _, p := range particles {
		if geometry.SphereIntersectsAABB(p, support, box) {
			out = append(out, p)
		}
	}
	return out
}

// ownedMask enables faces only in the cells the slab owns.
func ownedMask(f *field.ScalarField, s slab) *grid.Array3D[bool] {
	d := f.Dims()
	mask := grid.NewArray3D[bool](d.I-1, d.J-1, d.K-1)
	lo := s.padLeft()
	hi := lo + s.c1 - s.c0
	for k := 0; k < d.K-1; k++ {
		for j := 0; j < d.J-1; j++ {
			for i := lo; i < hi; i++ {
				mask.Set(i, j, k, true)
			}
		}
	}
	return mask
}

func (m *Mesher) meshSliced(particles []r3.Vec, radius float64, solid *levelset.MeshLevelSet) (*mesh.TriangleMesh, error) {
	w, _, _ := m.meshCells()
	parts := slabs(w, m.NumPolygonizationSlices())
	m.stats.Slabs = len(parts)
	support := m.support(radius)

	out := &mesh.TriangleMesh{}
	var prev *seam
	for idx, s := range parts {
		f := m.newField(s.a0, s.a1-s.a0)

		m.startPhase(telemetry.PhaseSplat)
		local := particlesTouching(particles, support, fieldBounds(f))
		m.splat(f, local, radius)

		m.startPhase(telemetry.PhaseSolid)
		markShell(f, s.a0 == 0, s.a1 == w)
		f.SetSolidSDF(solid)

		m.startPhase(telemetry.PhaseSeam)
		if prev != nil {
			prev.apply(f)
		}
		prev = nil
		if s.c1 < w {
			prev = saveSeam(f)
		}

		if m.preview != nil {
			m.startPhase(telemetry.PhasePreview)
			m.preview.resample(f, s.c0, s.c1)
		}

		m.startPhase(telemetry.PhasePolygonize)
		sub, err := m.poly.Polygonize(f, ownedMask(f, s))
		if err != nil {
			return nil, fmt.Errorf("polygonizing slab %d [%d,%d): %w", idx, s.c0, s.c1, err)
		}
		sub.Translate(f.Offset())

		m.startPhase(telemetry.PhaseJoin)
		out.Join(sub)
		m.logger.Debug("slab meshed",
			"slab", idx,
			"cells", [2]int{s.c0, s.c1},
			"particles", len(local),
			"triangles", sub.NumTriangles(),
		)
	}

	m.startPhase(telemetry.PhaseJoin)
	m.stats.Welded = out.WeldVertices(m.meshDX() * WeldTolerance)
	return out, nil
}
