// Package polygonize extracts triangle meshes from scalar fields.
package polygonize

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/field"
	"github.com/pthm-cable/fluidmesh/grid"
	"github.com/pthm-cable/fluidmesh/mesh"
)

// ErrMaskUnsupported is returned by polygonizers that cannot honour a
// cell mask.
var ErrMaskUnsupported = errors.New("polygonize: cell mask not supported")

// Polygonizer turns a populated field into a mesh. The surface separates
// vertices whose ScalarFieldValue exceeds the field's surface threshold
// (inside) from the rest. mask, when non-nil, has one entry per cell and
// suppresses faces from cells where it is false. Output vertices are in
// field-local coordinates: vertex (0, 0, 0) of the field maps to the origin.
type Polygonizer interface {
	Polygonize(f *field.ScalarField, mask *grid.Array3D[bool]) (*mesh.TriangleMesh, error)
}

// cube corner offsets; corner 6 is diagonal to corner 0.
var corners = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

// tetrahedra is the Kuhn split of a cube around the 0-6 diagonal. Every
// cell uses the same split, so shared faces are cut identically.
var tetrahedra = [6][4]int{
	{0, 5, 1, 6},
	{0, 1, 2, 6},
	{0, 2, 3, 6},
	{0, 3, 7, 6},
	{0, 7, 4, 6},
	{0, 4, 5, 6},
}

// snap keeps edge vertices off lattice corners so that vertices from
// different edges never coincide.
const snap = 1e-4

// MarchingTetrahedra extracts a closed, consistently oriented surface from
// a field by splitting each cell into six tetrahedra.
type MarchingTetrahedra struct{}

// edgeKey identifies a lattice edge by its endpoint vertex indices, lower
// first.
type edgeKey struct{ a, b int }

type extractor struct {
	f         *field.ScalarField
	d         grid.Dims
	dx        float64
	threshold float32
	m         *mesh.TriangleMesh
	edges     map[edgeKey]int
}

// Polygonize implements Polygonizer.
func (MarchingTetrahedra) Polygonize(f *field.ScalarField, mask *grid.Array3D[bool]) (*mesh.TriangleMesh, error) {
	d := f.Dims()
	cells := grid.Dims{I: d.I - 1, J: d.J - 1, K: d.K - 1}
	if mask != nil && mask.Dims() != cells {
		return nil, fmt.Errorf("polygonize: mask %s does not match cells %s", mask.Dims(), cells)
	}
	x := &extractor{
		f:         f,
		d:         d,
		dx:        f.CellSize(),
		threshold: float32(f.SurfaceThreshold()),
		m:         &mesh.TriangleMesh{},
		edges:     make(map[edgeKey]int),
	}
	for k := 0; k < cells.K; k++ {
		for j := 0; j < cells.J; j++ {
			for i := 0; i < cells.I; i++ {
				if mask != nil && !mask.At(i, j, k) {
					continue
				}
				x.cell(i, j, k)
			}
		}
	}
	return x.m, nil
}

func (x *extractor) cell(i, j, k int) {
	var ids [8]int
	var vals [8]float32
	var pos [8]r3.Vec
	var inside [8]bool
	n := 0
	for c, o := range corners {
		ci, cj, ck := i+o[0], j+o[1], k+o[2]
		ids[c] = x.d.Index(ci, cj, ck)
		vals[c] = x.f.ScalarFieldValue(ci, cj, ck)
		pos[c] = r3.Vec{X: float64(ci) * x.dx, Y: float64(cj) * x.dx, Z: float64(ck) * x.dx}
		inside[c] = vals[c] > x.threshold
		if inside[c] {
			n++
		}
	}
	if n == 0 || n == 8 {
		return
	}
	for _, tet := range tetrahedra {
		x.tet(tet, &ids, &vals, &pos, &inside)
	}
}

func (x *extractor) tet(tet [4]int, ids *[8]int, vals *[8]float32, pos *[8]r3.Vec, inside *[8]bool) {
	var in, out []int
	for _, c := range tet {
		if inside[c] {
			in = append(in, c)
		} else {
			out = append(out, c)
		}
	}

	switch len(in) {
	case 0, 4:
		return
	case 1, 3:
		lone, others := in, out
		if len(in) == 3 {
			lone, others = out, in
		}
		a := lone[0]
		v0 := x.edgeVertex(a, others[0], ids, vals, pos)
		v1 := x.edgeVertex(a, others[1], ids, vals, pos)
		v2 := x.edgeVertex(a, others[2], ids, vals, pos)
		x.emit(v0, v1, v2, in, out, pos)
	case 2:
		// The crossing is a quad on edges in0-out0, in0-out1, in1-out1, in1-out0.
		v0 := x.edgeVertex(in[0], out[0], ids, vals, pos)
		v1 := x.edgeVertex(in[0], out[1], ids, vals, pos)
		v2 := x.edgeVertex(in[1], out[1], ids, vals, pos)
		v3 := x.edgeVertex(in[1], out[0], ids, vals, pos)
		x.emit(v0, v1, v2, in, out, pos)
		x.emit(v0, v2, v3, in, out, pos)
	}
}

// emit adds a triangle wound so its normal points from the inside corners
// toward the outside corners.
func (x *extractor) emit(a, b, c int, in, out []int, pos *[8]r3.Vec) {
	va, vb, vc := x.m.Vertices[a], x.m.Vertices[b], x.m.Vertices[c]
	n := r3.Cross(r3.Sub(vb, va), r3.Sub(vc, va))
	dir := r3.Sub(centroid(out, pos), centroid(in, pos))
	if r3.Dot(n, dir) < 0 {
		b, c = c, b
	}
	x.m.Triangles = append(x.m.Triangles, [3]int{a, b, c})
}

func centroid(cs []int, pos *[8]r3.Vec) r3.Vec {
	var s r3.Vec
	for _, c := range cs {
		s = r3.Add(s, pos[c])
	}
	return r3.Scale(1/float64(len(cs)), s)
}

// edgeVertex returns the shared vertex where the surface crosses the edge
// between corners p and q.
func (x *extractor) edgeVertex(p, q int, ids *[8]int, vals *[8]float32, pos *[8]r3.Vec) int {
	if ids[p] > ids[q] {
		p, q = q, p
	}
	key := edgeKey{ids[p], ids[q]}
	if v, ok := x.edges[key]; ok {
		return v
	}
	t := 0.5
	if dv := float64(vals[q] - vals[p]); dv != 0 {
		t = float64(x.threshold-vals[p]) / dv
	}
	t = max(snap, min(1-snap, t))
	v := len(x.m.Vertices)
	x.m.Vertices = append(x.m.Vertices, r3.Add(pos[p], r3.Scale(t, r3.Sub(pos[q], pos[p]))))
	x.edges[key] = v
	return v
}
