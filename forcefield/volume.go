package forcefield

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/levelset"
	"github.com/pthm-cable/fluidmesh/mesh"
)

// Falloff scales force strength by distance d from the surface, for
// 0 < d < maxDistance.
type Falloff func(d, maxDistance float64) float64

// LinearFalloff fades from full strength at the surface to zero at
// maxDistance.
func LinearFalloff(d, maxDistance float64) float64 { return 1 - d/maxDistance }

// ConstantFalloff applies full strength throughout the range.
func ConstantFalloff(d, maxDistance float64) float64 { return 1 }

// MeshVolume attracts points outside a closed mesh toward its surface.
// Points inside the mesh or farther than MaxDistance feel no force.
type MeshVolume struct {
	Strength    float64
	MaxDistance float64
	Falloff     Falloff

	sdf     *levelset.MeshLevelSet
	closest *levelset.ClosestPointField
}

// NewMeshVolume builds the distance and closest-point fields of m on a
// lattice of cell size dx that covers m padded by maxDistance. A nil
// sweeper uses levelset.NewSweeper.
func NewMeshVolume(m *mesh.TriangleMesh, dx, maxDistance float64, s *levelset.Sweeper) (*MeshVolume, error) {
	if dx <= 0 || maxDistance <= 0 {
		return nil, fmt.Errorf("forcefield: cell size %v and max distance %v must be positive", dx, maxDistance)
	}
	if m == nil || len(m.Triangles) == 0 {
		return nil, errors.New("forcefield: mesh volume needs a non-empty mesh")
	}
	if s == nil {
		s = levelset.NewSweeper()
	}

	b := m.Bounds()
	pad := maxDistance + 2*dx
	lo := r3.Sub(b.Min, r3.Vec{X: pad, Y: pad, Z: pad})
	size := r3.Sub(r3.Add(b.Max, r3.Vec{X: pad, Y: pad, Z: pad}), lo)
	cells := func(w float64) int { return max(int(math.Ceil(w/dx-1e-9)), 1) }

	ls := levelset.NewMeshLevelSet(cells(size.X), cells(size.Y), cells(size.Z), dx)
	ls.SetOrigin(lo)
	closest, err := s.ClosestPointField(m, ls)
	if err != nil {
		return nil, fmt.Errorf("forcefield: building closest point field: %w", err)
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("mesh volume built",
		"triangles", m.NumTriangles(),
		"nodes", ls.Dims.Len(),
		"max_distance", maxDistance,
	)
	return &MeshVolume{
		Strength:    1,
		MaxDistance: maxDistance,
		Falloff:     LinearFalloff,
		sdf:         ls,
		closest:     closest,
	}, nil
}

// LevelSet returns the signed distance field backing v.
func (v *MeshVolume) LevelSet() *levelset.MeshLevelSet { return v.sdf }

// ForceAt returns the force at p: a unit vector toward the closest surface
// point scaled by Strength and the falloff.
func (v *MeshVolume) ForceAt(p r3.Vec) r3.Vec {
	b := v.sdf.Bounds()
	if p.X < b.Min.X || p.Y < b.Min.Y || p.Z < b.Min.Z ||
		p.X > b.Max.X || p.Y > b.Max.Y || p.Z > b.Max.Z {
		return r3.Vec{}
	}
	d := float64(v.sdf.Trilinear(p))
	if d <= 0 || d >= v.MaxDistance {
		return r3.Vec{}
	}
	toSurface := v.closest.Trilinear(p)
	n := r3.Norm(toSurface)
	if n == 0 {
		return r3.Vec{}
	}
	falloff := 1.0
	if v.Falloff != nil {
		falloff = v.Falloff(d, v.MaxDistance)
	}
	return r3.Scale(v.Strength*falloff/n, toSurface)
}
