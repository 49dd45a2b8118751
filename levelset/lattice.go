// Package levelset builds signed distance fields and closest-point vector
// fields on node-centred lattices. Negative values are inside a solid.
package levelset

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/grid"
)

// Lattice places node (i, j, k) at Origin + DX*(i, j, k).
type Lattice struct {
	Dims   grid.Dims // node counts
	DX     float64
	Origin r3.Vec
}

// Position returns the world position of node (i, j, k).
func (l Lattice) Position(i, j, k int) r3.Vec {
	return r3.Vec{
		X: l.Origin.X + float64(i)*l.DX,
		Y: l.Origin.Y + float64(j)*l.DX,
		Z: l.Origin.Z + float64(k)*l.DX,
	}
}

// GridCoords converts a world position to fractional node coordinates.
func (l Lattice) GridCoords(p r3.Vec) (gx, gy, gz float64) {
	d := r3.Scale(1/l.DX, r3.Sub(p, l.Origin))
	return d.X, d.Y, d.Z
}

// Diagonal returns the world-space length of the lattice diagonal.
func (l Lattice) Diagonal() float64 {
	return l.DX * math.Sqrt(float64((l.Dims.I-1)*(l.Dims.I-1)+(l.Dims.J-1)*(l.Dims.J-1)+(l.Dims.K-1)*(l.Dims.K-1)))
}

// Bounds returns the world-space box spanned by the nodes.
func (l Lattice) Bounds() r3.Box {
	return r3.Box{Min: l.Origin, Max: l.Position(l.Dims.I-1, l.Dims.J-1, l.Dims.K-1)}
}
