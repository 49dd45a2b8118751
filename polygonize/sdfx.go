package polygonize

import (
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/field"
	"github.com/pthm-cable/fluidmesh/grid"
	"github.com/pthm-cable/fluidmesh/mesh"
)

// DefaultSDFXCells is the marching cubes resolution along the longest axis.
const DefaultSDFXCells = 64

// SDFX meshes a field with sdfx's uniform marching cubes. It resamples the
// field, so it is cheaper and coarser than MarchingTetrahedra.
type SDFX struct {
	Cells int
}

// Polygonize implements Polygonizer. A non-nil mask is rejected.
func (p SDFX) Polygonize(f *field.ScalarField, mask *grid.Array3D[bool]) (*mesh.TriangleMesh, error) {
	if mask != nil {
		return nil, ErrMaskUnsupported
	}
	cells := p.Cells
	if cells <= 0 {
		cells = DefaultSDFXCells
	}
	tris := render.ToTriangles(NewFieldSDF(f), render.NewMarchingCubesUniform(cells))
	out := make([]r3.Triangle, 0, len(tris))
	for _, t := range tris {
		out = append(out, r3.Triangle{toR3(t[0]), toR3(t[1]), toR3(t[2])})
	}
	return mesh.FromTriangles(out), nil
}

func toR3(v v3.Vec) r3.Vec { return r3.Vec{X: v.X, Y: v.Y, Z: v.Z} }

// FieldSDF exposes a scalar field as an sdf.SDF3 in field-local
// coordinates. Inside the surface is negative.
type FieldSDF struct {
	f   *field.ScalarField
	max r3.Vec
}

// NewFieldSDF wraps f.
func NewFieldSDF(f *field.ScalarField) *FieldSDF {
	d := f.Dims()
	dx := f.CellSize()
	return &FieldSDF{
		f:   f,
		max: r3.Vec{X: float64(d.I-1) * dx, Y: float64(d.J-1) * dx, Z: float64(d.K-1) * dx},
	}
}

// Evaluate implements sdf.SDF3. Points off the lattice are outside.
func (s *FieldSDF) Evaluate(p v3.Vec) float64 {
	if p.X < 0 || p.Y < 0 || p.Z < 0 || p.X > s.max.X || p.Y > s.max.Y || p.Z > s.max.Z {
		return s.f.CellSize()
	}
	world := r3.Add(s.f.Offset(), toR3(p))
	return s.f.SurfaceThreshold() - float64(s.f.TrilinearInterpolation(world))
}

// BoundingBox implements sdf.SDF3.
func (s *FieldSDF) BoundingBox() sdf.Box3 {
	return sdf.Box3{Min: v3.Vec{}, Max: v3.Vec{X: s.max.X, Y: s.max.Y, Z: s.max.Z}}
}
