package forcefield

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/grid"
)

// FaceGrid is a staggered (MAC) velocity grid over isize x jsize x ksize
// cells. U lives on x faces, V on y faces and W on z faces.
type FaceGrid struct {
	ISize, JSize, KSize int
	DX                  float64
	Origin              r3.Vec

	U *grid.Array3D[float32] // (I+1) x J x K
	V *grid.Array3D[float32] // I x (J+1) x K
	W *grid.Array3D[float32] // I x J x (K+1)
}

// NewFaceGrid allocates a zeroed face grid.
func NewFaceGrid(isize, jsize, ksize int, dx float64) *FaceGrid {
	if isize < 1 || jsize < 1 || ksize < 1 || dx <= 0 {
		panic(fmt.Sprintf("forcefield: invalid face grid %dx%dx%d dx=%v", isize, jsize, ksize, dx))
	}
	return &FaceGrid{
		ISize: isize,
		JSize: jsize,
		KSize: ksize,
		DX:    dx,
		U:     grid.NewArray3D[float32](isize+1, jsize, ksize),
		V:     grid.NewArray3D[float32](isize, jsize+1, ksize),
		W:     grid.NewArray3D[float32](isize, jsize, ksize+1),
	}
}

// UPosition returns the centre of x face (i, j, k).
func (g *FaceGrid) UPosition(i, j, k int) r3.Vec {
	return g.at(float64(i), float64(j)+0.5, float64(k)+0.5)
}

// VPosition returns the centre of y face (i, j, k).
func (g *FaceGrid) VPosition(i, j, k int) r3.Vec {
	return g.at(float64(i)+0.5, float64(j), float64(k)+0.5)
}

// WPosition returns the centre of z face (i, j, k).
func (g *FaceGrid) WPosition(i, j, k int) r3.Vec {
	return g.at(float64(i)+0.5, float64(j)+0.5, float64(k))
}

func (g *FaceGrid) at(x, y, z float64) r3.Vec {
	return r3.Add(g.Origin, r3.Vec{X: x * g.DX, Y: y * g.DX, Z: z * g.DX})
}

// NumFaces returns the total number of faces across the three components.
func (g *FaceGrid) NumFaces() int {
	return g.U.Dims().Len() + g.V.Dims().Len() + g.W.Dims().Len()
}

// Clear zeroes every component.
func (g *FaceGrid) Clear() {
	g.U.Fill(0)
	g.V.Fill(0)
	g.W.Fill(0)
}
