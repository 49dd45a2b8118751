package levelset

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/geometry"
	"github.com/pthm-cable/fluidmesh/grid"
	"github.com/pthm-cable/fluidmesh/mesh"
	"github.com/pthm-cable/fluidmesh/parallel"
)

// Sweeper extends a narrow-band distance field across a whole lattice with
// the fast sweeping method. Its fields are plain tunables; a zero Sweeper
// is usable but NewSweeper sets the usual defaults.
type Sweeper struct {
	ExactBand     int           // cells around each triangle computed exactly
	Passes        int           // rounds of the 8 octant sweeps
	StaggerFactor time.Duration // launch delay per sweep direction, scaled by the cube root of the cell count
	Logger        *slog.Logger
}

// NewSweeper returns a Sweeper with a 3-cell exact band and one pass.
func NewSweeper() *Sweeper {
	return &Sweeper{
		ExactBand:     3,
		Passes:        1,
		StaggerFactor: 2 * time.Microsecond,
	}
}

func (s *Sweeper) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// octants lists the eight sweep directions.
var octants = [8][3]int{
	{+1, +1, +1}, {-1, +1, +1}, {+1, -1, +1}, {-1, -1, +1},
	{+1, +1, -1}, {-1, +1, -1}, {+1, -1, -1}, {-1, -1, -1},
}

// sweepState is shared by the concurrent octant sweeps. seeds and frozen are
// written before the sweeps start and only read afterwards; seedOf is the
// per-node adopted seed, improved with compare-and-swap.
type sweepState struct {
	lat    Lattice
	seeds  []r3.Vec
	frozen []bool
	seedOf []atomic.Int32
}

// ClosestPointField computes ls as the signed distance field of m and
// returns the per-node displacement to the closest surface point.
//
// Band nodes keep their exact distance and closest point. Every other node
// adopts the nearest seed found by the sweeps, and its distance magnitude is
// lowered to that seed's distance when smaller; it is never raised.
func (s *Sweeper) ClosestPointField(m *mesh.TriangleMesh, ls *MeshLevelSet) (*ClosestPointField, error) {
	if err := ls.CalculateSignedDistanceField(m, s.ExactBand); err != nil {
		return nil, err
	}

	start := time.Now()
	st := s.seed(m, ls)
	seeded := 0
	for _, f := range st.frozen {
		if f {
			seeded++
		}
	}

	passes := max(s.Passes, 1)
	for p := 0; p < passes; p++ {
		s.sweepAll(st)
	}

	field := newClosestPointField(ls.Lattice)
	ls.applySweep(st, field)

	s.logger().Debug("fast sweep complete",
		"nodes", ls.Dims.Len(),
		"seeds", seeded,
		"passes", passes,
		"elapsed", time.Since(start),
	)
	return field, nil
}

// seed computes the exact closest point for every band node with a known
// triangle and freezes it.
func (s *Sweeper) seed(m *mesh.TriangleMesh, ls *MeshLevelSet) *sweepState {
	n := ls.Dims.Len()
	st := &sweepState{
		lat:    ls.Lattice,
		seeds:  make([]r3.Vec, n),
		frozen: make([]bool, n),
		seedOf: make([]atomic.Int32, n),
	}
	tris := ls.closestTri.Data()
	parallel.For(n, parallel.Workers(n), func(start, end int) {
		for idx := start; idx < end; idx++ {
			st.seedOf[idx].Store(-1)
			t := tris[idx]
			if t < 0 {
				continue
			}
			p := st.lat.Position(ls.Dims.Coords(idx))
			st.seeds[idx] = geometry.ClosestPointOnTriangle(p, m.Triangle(int(t)))
			st.frozen[idx] = true
			st.seedOf[idx].Store(int32(idx))
		}
	})
	return st
}

// sweepAll launches one goroutine per octant with a staggered start and
// waits for all of them.
func (s *Sweeper) sweepAll(st *sweepState) {
	delay := time.Duration(float64(s.StaggerFactor) * math.Cbrt(float64(st.lat.Dims.Len())))
	var wg sync.WaitGroup
	for o, dir := range octants {
		wg.Add(1)
		go func(o int, dir [3]int) {
			defer wg.Done()
			if o > 0 && delay > 0 {
				time.Sleep(time.Duration(o) * delay)
			}
			st.sweep(dir)
		}(o, dir)
	}
	wg.Wait()
}

func (st *sweepState) sweep(dir [3]int) {
	d := st.lat.Dims
	di, dj, dk := dir[0], dir[1], dir[2]
	i0, i1 := sweepRange(d.I, di)
	j0, j1 := sweepRange(d.J, dj)
	k0, k1 := sweepRange(d.K, dk)

	for k := k0; k != k1; k += dk {
		for j := j0; j != j1; j += dj {
			for i := i0; i != i1; i += di {
				idx := d.Index(i, j, k)
				if st.frozen[idx] {
					continue
				}
				p := st.lat.Position(i, j, k)
				for mask := 1; mask < 8; mask++ {
					ni := i - di*(mask&1)
					nj := j - dj*(mask>>1&1)
					nk := k - dk*(mask>>2&1)
					if !d.Contains(ni, nj, nk) {
						continue
					}
					cand := st.seedOf[d.Index(ni, nj, nk)].Load()
					if cand >= 0 {
						st.adopt(idx, cand, p)
					}
				}
			}
		}
	}
}

// adopt replaces node idx's seed with cand if cand is strictly closer to p.
func (st *sweepState) adopt(idx int, cand int32, p r3.Vec) {
	dc := r3.Norm2(r3.Sub(p, st.seeds[cand]))
	for {
		cur := st.seedOf[idx].Load()
		if cur == cand {
			return
		}
		if cur >= 0 && r3.Norm2(r3.Sub(p, st.seeds[cur])) <= dc {
			return
		}
		if st.seedOf[idx].CompareAndSwap(cur, cand) {
			return
		}
	}
}

func sweepRange(n, step int) (from, to int) {
	if step > 0 {
		return 0, n
	}
	return n - 1, -1
}

// applySweep writes swept distances into ls and fills the vector field.
func (ls *MeshLevelSet) applySweep(st *sweepState, f *ClosestPointField) {
	d := ls.Dims
	phi := ls.phi.Data()
	tris := ls.closestTri.Data()
	parallel.For(d.Len(), 0, func(start, end int) {
		for idx := start; idx < end; idx++ {
			s := st.seedOf[idx].Load()
			if s < 0 {
				continue
			}
			p := ls.Position(d.Coords(idx))
			q := st.seeds[s]
			f.vectors.Data()[idx] = r3.Sub(q, p)
			f.set.Data()[idx] = true
			if st.frozen[idx] {
				continue
			}
			dist := float32(r3.Norm(r3.Sub(q, p)))
			cur := phi[idx]
			if dist < float32(math.Abs(float64(cur))) {
				if cur < 0 {
					dist = -dist
				}
				phi[idx] = dist
				tris[idx] = tris[s]
			}
		}
	})
}

// ClosestPointField stores, per node, the displacement from the node to
// the closest surface point.
type ClosestPointField struct {
	Lattice
	vectors *grid.Array3D[r3.Vec]
	set     *grid.Array3D[bool]
}

func newClosestPointField(l Lattice) *ClosestPointField {
	return &ClosestPointField{
		Lattice: l,
		vectors: grid.NewArray3D[r3.Vec](l.Dims.I, l.Dims.J, l.Dims.K),
		set:     grid.NewArray3D[bool](l.Dims.I, l.Dims.J, l.Dims.K),
	}
}

// Vector returns the displacement stored at node (i, j, k).
func (f *ClosestPointField) Vector(i, j, k int) r3.Vec { return f.vectors.At(i, j, k) }

// IsSet reports whether node (i, j, k) received a closest point.
func (f *ClosestPointField) IsSet(i, j, k int) bool { return f.set.At(i, j, k) }

// ClosestPoint returns the closest surface point recorded for node (i, j, k).
func (f *ClosestPointField) ClosestPoint(i, j, k int) r3.Vec {
	return r3.Add(f.Position(i, j, k), f.vectors.At(i, j, k))
}

// Trilinear interpolates the displacement at world position p, clamped to
// the lattice. Unset nodes contribute zero.
func (f *ClosestPointField) Trilinear(p r3.Vec) r3.Vec {
	d := f.Dims
	gx, gy, gz := f.GridCoords(p)
	gx = math.Max(0, math.Min(gx, float64(d.I-1)))
	gy = math.Max(0, math.Min(gy, float64(d.J-1)))
	gz = math.Max(0, math.Min(gz, float64(d.K-1)))
	i, j, k := int(gx), int(gy), int(gz)
	fx, fy, fz := gx-float64(i), gy-float64(j), gz-float64(k)

	var out r3.Vec
	for c := 0; c < 8; c++ {
		ci, cj, ck := i+(c&1), j+(c>>1&1), k+(c>>2&1)
		if ci >= d.I || cj >= d.J || ck >= d.K {
			continue
		}
		w := weight(fx, c&1) * weight(fy, c>>1&1) * weight(fz, c>>2&1)
		if w == 0 {
			continue
		}
		out = r3.Add(out, r3.Scale(w, f.vectors.At(ci, cj, ck)))
	}
	return out
}

func weight(f float64, upper int) float64 {
	if upper == 1 {
		return f
	}
	return 1 - f
}
