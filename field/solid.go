package field

import (
	"fmt"

	"github.com/pthm-cable/fluidmesh/grid"
	"github.com/pthm-cable/fluidmesh/levelset"
)

// SetVertexSolid flags vertex (i, j, k) as inside solid geometry.
func (f *ScalarField) SetVertexSolid(i, j, k int, solid bool) {
	f.solid.Set(i, j, k, solid)
}

// IsVertexSolid reports whether vertex (i, j, k) is solid.
func (f *ScalarField) IsVertexSolid(i, j, k int) bool { return f.solid.At(i, j, k) }

// SetSolidSDF marks vertices inside ls (phi < 0) as solid. When the level
// set lattice coincides with the field's vertices it is thresholded
// directly; otherwise the solid indicator is resampled trilinearly and a
// vertex is solid where the indicator exceeds one half. Existing solid
// flags are kept.
func (f *ScalarField) SetSolidSDF(ls *levelset.MeshLevelSet) {
	if ls == nil {
		return
	}
	if ls.Dims == f.dims && ls.DX == f.dx && ls.Origin == f.offset {
		phi := ls.Phi().Data()
		solid := f.solid.Data()
		for i, v := range phi {
			if v < 0 {
				solid[i] = true
			}
		}
		return
	}

	ld := ls.Dims
	indicator := grid.NewArray3D[float32](ld.I, ld.J, ld.K)
	ind := indicator.Data()
	for i, v := range ls.Phi().Data() {
		if v < 0 {
			ind[i] = 1
		}
	}
	for k := 0; k < f.dims.K; k++ {
		for j := 0; j < f.dims.J; j++ {
			for i := 0; i < f.dims.I; i++ {
				gx, gy, gz := ls.GridCoords(f.Position(i, j, k))
				if v, ok := grid.Trilinear(indicator, gx, gy, gz); ok && v > 0.5 {
					f.solid.Set(i, j, k, true)
				}
			}
		}
	}
}

// SetMaterialGrid marks solid vertices from a cell-centred material grid.
// The subdivided grid must have one cell per field cell; a vertex is solid
// if any adjacent cell is solid.
func (f *ScalarField) SetMaterialGrid(cells *grid.Subdivided[bool]) {
	cd := cells.Dims()
	want := grid.Dims{I: f.dims.I - 1, J: f.dims.J - 1, K: f.dims.K - 1}
	if cd != want {
		panic(fmt.Sprintf("field: material grid %s does not match field cells %s", cd, want))
	}
	for k := 0; k < f.dims.K; k++ {
		for j := 0; j < f.dims.J; j++ {
			for i := 0; i < f.dims.I; i++ {
				if f.adjacentSolid(cells, i, j, k) {
					f.solid.Set(i, j, k, true)
				}
			}
		}
	}
}

func (f *ScalarField) adjacentSolid(cells *grid.Subdivided[bool], i, j, k int) bool {
	for dk := -1; dk <= 0; dk++ {
		for dj := -1; dj <= 0; dj++ {
			for di := -1; di <= 0; di++ {
				ci, cj, ck := i+di, j+dj, k+dk
				if cells.InRange(ci, cj, ck) && cells.At(ci, cj, ck) {
					return true
				}
			}
		}
	}
	return false
}
