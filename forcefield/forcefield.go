// Package forcefield samples spatial force fields onto staggered velocity
// grids. MeshVolume derives a field from a triangle mesh's closest-point
// field.
package forcefield

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/grid"
	"github.com/pthm-cable/fluidmesh/parallel"
)

// Field is a force evaluated at world positions. Implementations must be
// safe for concurrent calls.
type Field interface {
	ForceAt(p r3.Vec) r3.Vec
}

// FieldFunc adapts a function to Field.
type FieldFunc func(p r3.Vec) r3.Vec

// ForceAt calls fn(p).
func (fn FieldFunc) ForceAt(p r3.Vec) r3.Vec { return fn(p) }

// AddForceFieldToGrid adds f sampled at every face centre to the matching
// component of g. Components are processed one after another, each split
// across workers by flattened face index.
func AddForceFieldToGrid(f Field, g *FaceGrid) {
	addComponent(g.U, g.UPosition, func(v r3.Vec) float64 { return v.X }, f)
	addComponent(g.V, g.VPosition, func(v r3.Vec) float64 { return v.Y }, f)
	addComponent(g.W, g.WPosition, func(v r3.Vec) float64 { return v.Z }, f)
}

func addComponent(a *grid.Array3D[float32], pos func(i, j, k int) r3.Vec, axis func(r3.Vec) float64, f Field) {
	d := a.Dims()
	data := a.Data()
	parallel.For(d.Len(), 0, func(start, end int) {
		for idx := start; idx < end; idx++ {
			data[idx] += float32(axis(f.ForceAt(pos(d.Coords(idx)))))
		}
	})
}
