package main

import (
	"fmt"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/config"
	"github.com/pthm-cable/fluidmesh/levelset"
)

// buildSolid rasterizes the configured obstacle onto the mesh lattice.
// It returns nil when no obstacle is configured.
func buildSolid(cfg *config.Config) (*levelset.MeshLevelSet, error) {
	sc := cfg.Solid
	var s sdf.SDF3
	var err error
	switch sc.Shape {
	case "", "none":
		return nil, nil
	case "sphere":
		s, err = sdf.Sphere3D(sc.Size[0])
	case "box":
		s, err = sdf.Box3D(v3.Vec{X: sc.Size[0], Y: sc.Size[1], Z: sc.Size[2]}, 0)
	default:
		return nil, fmt.Errorf("unknown solid shape %q", sc.Shape)
	}
	if err != nil {
		return nil, fmt.Errorf("building %s solid: %w", sc.Shape, err)
	}
	s = sdf.Transform3D(s, sdf.Translate3d(v3.Vec{X: sc.Center[0], Y: sc.Center[1], Z: sc.Center[2]}))

	cells := cfg.Derived.MeshCells
	ls := levelset.NewMeshLevelSet(cells[0], cells[1], cells[2], cfg.Derived.MeshDX)
	o := cfg.Domain.Origin
	ls.SetOrigin(r3.Vec{X: o[0], Y: o[1], Z: o[2]})
	ls.CalculateFromSDF3(s)
	return ls, nil
}
