package levelset

import (
	"errors"
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/geometry"
	"github.com/pthm-cable/fluidmesh/grid"
	"github.com/pthm-cable/fluidmesh/mesh"
	"github.com/pthm-cable/fluidmesh/parallel"
)

// ErrEmptyMesh is returned when a distance field is requested for a mesh
// without triangles.
var ErrEmptyMesh = errors.New("levelset: mesh has no triangles")

// rayJitter offsets parity rays off lattice-aligned edges and vertices so
// that a crossing through a shared edge is counted once.
const rayJitterY, rayJitterZ = 1.3e-7, 2.9e-7

// MeshLevelSet is a node-centred signed distance field over isize x jsize x
// ksize cells.
type MeshLevelSet struct {
	Lattice
	isize, jsize, ksize int

	phi        *grid.Array3D[float32]
	closestTri *grid.Array3D[int32]
}

// NewMeshLevelSet allocates a level set with (isize+1)(jsize+1)(ksize+1)
// nodes. Every node starts at the positive lattice diagonal.
func NewMeshLevelSet(isize, jsize, ksize int, dx float64) *MeshLevelSet {
	if isize < 1 || jsize < 1 || ksize < 1 {
		panic(fmt.Sprintf("levelset: invalid size %dx%dx%d", isize, jsize, ksize))
	}
	if dx <= 0 {
		panic(fmt.Sprintf("levelset: invalid cell size %v", dx))
	}
	ls := &MeshLevelSet{
		Lattice: Lattice{
			Dims: grid.Dims{I: isize + 1, J: jsize + 1, K: ksize + 1},
			DX:   dx,
		},
		isize:      isize,
		jsize:      jsize,
		ksize:      ksize,
		phi:        grid.NewArray3D[float32](isize+1, jsize+1, ksize+1),
		closestTri: grid.NewArray3DFill[int32](isize+1, jsize+1, ksize+1, -1),
	}
	ls.phi.Fill(float32(ls.Diagonal()))
	return ls
}

// NewDomainLevelSet returns a level set whose outer shell of nodes is
// negative, modelling the walls of the simulation domain.
func NewDomainLevelSet(isize, jsize, ksize int, dx float64) *MeshLevelSet {
	ls := NewMeshLevelSet(isize, jsize, ksize, dx)
	d := ls.Dims
	parallel.For(d.Len(), 0, func(start, end int) {
		for idx := start; idx < end; idx++ {
			i, j, k := d.Coords(idx)
			cells := min(i, isize-i, j, jsize-j, k, ksize-k)
			ls.phi.Data()[idx] = float32((float64(cells) - 0.5) * dx)
		}
	})
	return ls
}

// CellDims returns the cell counts.
func (ls *MeshLevelSet) CellDims() (isize, jsize, ksize int) {
	return ls.isize, ls.jsize, ls.ksize
}

// SetOrigin moves the lattice origin in world space.
func (ls *MeshLevelSet) SetOrigin(o r3.Vec) { ls.Origin = o }

// Phi exposes the node values.
func (ls *MeshLevelSet) Phi() *grid.Array3D[float32] { return ls.phi }

// Value returns phi at node (i, j, k).
func (ls *MeshLevelSet) Value(i, j, k int) float32 { return ls.phi.At(i, j, k) }

// SetValue sets phi at node (i, j, k).
func (ls *MeshLevelSet) SetValue(i, j, k int, v float32) { ls.phi.Set(i, j, k, v) }

// ClosestTriangle returns the index of the nearest triangle recorded for
// node (i, j, k), or -1 if none is known.
func (ls *MeshLevelSet) ClosestTriangle(i, j, k int) int {
	return int(ls.closestTri.At(i, j, k))
}

// Trilinear samples phi at world position p, clamping to the lattice.
func (ls *MeshLevelSet) Trilinear(p r3.Vec) float32 {
	gx, gy, gz := ls.GridCoords(p)
	return grid.TrilinearClamped(ls.phi, gx, gy, gz)
}

// Gradient returns the central-difference gradient of phi at p.
func (ls *MeshLevelSet) Gradient(p r3.Vec) r3.Vec {
	h := 0.5 * ls.DX
	return r3.Gradient(p, r3.Vec{X: h, Y: h, Z: h}, func(q r3.Vec) float64 {
		return float64(ls.Trilinear(q))
	})
}

// IsInside reports whether p lies inside the solid.
func (ls *MeshLevelSet) IsInside(p r3.Vec) bool {
	return ls.Trilinear(p) < 0
}

// Union takes the pointwise minimum with other. Lattices must match.
func (ls *MeshLevelSet) Union(other *MeshLevelSet) {
	if ls.Dims != other.Dims || ls.DX != other.DX {
		panic(fmt.Sprintf("levelset: union of mismatched lattices %s/%v and %s/%v",
			ls.Dims, ls.DX, other.Dims, other.DX))
	}
	dst := ls.phi.Data()
	src := other.phi.Data()
	for i := range dst {
		if src[i] < dst[i] {
			dst[i] = src[i]
			ls.closestTri.Data()[i] = other.closestTri.Data()[i]
		}
	}
}

// CalculateSignedDistanceField computes exact distances to m within
// exactBand cells of every triangle and signs the whole lattice by
// ray-crossing parity along +x. Nodes outside the band keep the lattice
// diagonal as their magnitude.
func (ls *MeshLevelSet) CalculateSignedDistanceField(m *mesh.TriangleMesh, exactBand int) error {
	if m == nil || len(m.Triangles) == 0 {
		return ErrEmptyMesh
	}
	if exactBand < 0 {
		return fmt.Errorf("levelset: negative exact band %d", exactBand)
	}

	ls.phi.Fill(float32(ls.Diagonal()))
	ls.closestTri.Fill(-1)
	ls.computeExactBand(m, exactBand)
	ls.applyParitySign(m)
	return nil
}

func (ls *MeshLevelSet) computeExactBand(m *mesh.TriangleMesh, band int) {
	d := ls.Dims
	for t := range m.Triangles {
		tri := m.Triangle(t)
		box := geometry.TriangleBounds(tri)
		i0, j0, k0 := ls.nodeFloor(box.Min)
		i1, j1, k1 := ls.nodeCeil(box.Max)
		i0, j0, k0 = max(i0-band, 0), max(j0-band, 0), max(k0-band, 0)
		i1, j1, k1 = min(i1+band, d.I-1), min(j1+band, d.J-1), min(k1+band, d.K-1)

		for k := k0; k <= k1; k++ {
			for j := j0; j <= j1; j++ {
				for i := i0; i <= i1; i++ {
					p := ls.Position(i, j, k)
					dist := float32(r3.Norm(r3.Sub(p, geometry.ClosestPointOnTriangle(p, tri))))
					if dist < ls.phi.At(i, j, k) {
						ls.phi.Set(i, j, k, dist)
						ls.closestTri.Set(i, j, k, int32(t))
					}
				}
			}
		}
	}
}

// applyParitySign counts crossings of each +x row with the mesh and
// negates nodes with an odd number of crossings to their left.
func (ls *MeshLevelSet) applyParitySign(m *mesh.TriangleMesh) {
	d := ls.Dims
	crossings := grid.NewArray3D[int32](d.I, d.J, d.K)
	dir := r3.Vec{X: 1}

	for t := range m.Triangles {
		tri := m.Triangle(t)
		box := geometry.TriangleBounds(tri)
		_, j0, k0 := ls.nodeFloor(box.Min)
		_, j1, k1 := ls.nodeCeil(box.Max)
		j0, k0 = max(j0, 0), max(k0, 0)
		j1, k1 = min(j1, d.J-1), min(k1, d.K-1)

		for k := k0; k <= k1; k++ {
			for j := j0; j <= j1; j++ {
				origin := ls.Position(0, j, k)
				origin.Y += rayJitterY * ls.DX
				origin.Z += rayJitterZ * ls.DX
				hit, ok := geometry.LineIntersectTriangle(origin, dir, tri)
				if !ok {
					continue
				}
				// Crossing at x lies between nodes ceil(x/dx)-1 and ceil(x/dx).
				ic := int(math.Ceil(hit.T / ls.DX))
				if ic < 0 {
					ic = 0
				}
				if ic < d.I {
					*crossings.Ptr(ic, j, k)++
				}
			}
		}
	}

	parallel.For(d.J*d.K, 0, func(start, end int) {
		for row := start; row < end; row++ {
			j, k := row%d.J, row/d.J
			var total int32
			for i := 0; i < d.I; i++ {
				total += crossings.At(i, j, k)
				if total%2 == 1 {
					ls.phi.Set(i, j, k, -math32.Abs(ls.phi.At(i, j, k)))
				}
			}
		}
	})
}

// CalculateFromSDF3 rasterizes an sdfx solid onto the lattice.
func (ls *MeshLevelSet) CalculateFromSDF3(s sdf.SDF3) {
	d := ls.Dims
	parallel.For(d.Len(), 0, func(start, end int) {
		for idx := start; idx < end; idx++ {
			p := ls.Position(d.Coords(idx))
			ls.phi.Data()[idx] = float32(s.Evaluate(v3.Vec{X: p.X, Y: p.Y, Z: p.Z}))
			ls.closestTri.Data()[idx] = -1
		}
	})
}

func (ls *MeshLevelSet) nodeFloor(p r3.Vec) (int, int, int) {
	gx, gy, gz := ls.GridCoords(p)
	return int(math.Floor(gx)), int(math.Floor(gy)), int(math.Floor(gz))
}

func (ls *MeshLevelSet) nodeCeil(p r3.Vec) (int, int, int) {
	gx, gy, gz := ls.GridCoords(p)
	return int(math.Ceil(gx)), int(math.Ceil(gy)), int(math.Ceil(gz))
}
