package accel

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/field"
	"github.com/pthm-cable/fluidmesh/grid"
)

// RunStats summarises one scheduler call.
type RunStats struct {
	CPU        bool
	Groups     int // work groups holding at least one particle
	Chunks     int
	Batches    int
	Pruned     int // chunks skipped by the max-value threshold
	Duplicates int // extra particle copies from group overlap
	Elapsed    time.Duration
}

// LogValue implements slog.LogValuer.
func (s RunStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("cpu", s.CPU),
		slog.Int("groups", s.Groups),
		slog.Int("chunks", s.Chunks),
		slog.Int("batches", s.Batches),
		slog.Int("pruned", s.Pruned),
		slog.Int("duplicates", s.Duplicates),
		slog.Duration("elapsed", s.Elapsed),
	)
}

// workGroup is one chunk-sized block of the destination field.
type workGroup struct {
	gi, gj, gk int // first vertex of the block
	values     *grid.View[float32]
	weights    *grid.View[float32]
	particles  []int32
	minValue   float32
	pending    int // chunks not yet processed
}

// workChunk is a bounded slice of one work group's particle list.
type workChunk struct {
	group      *workGroup
	start, end int
}

func (c workChunk) count() int { return c.end - c.start }

// run executes one splat call on the device.
func (a *Accelerator) run(f *field.ScalarField, kind KernelKind, pts []r3.Vec, vals []float64, r float64) {
	start := time.Now()
	groups := a.buildGroups(f, kind)
	dupes := a.bucket(f, groups, kind, pts, r)
	queue := a.buildQueue(groups)

	stats := RunStats{Chunks: len(queue), Duplicates: dupes}
	for _, g := range groups {
		if len(g.particles) > 0 {
			stats.Groups++
		}
	}

	prune := a.hasMaxThreshold && kind.Additive()
	batch := make([]workChunk, 0, a.maxBatch)
	for len(queue) > 0 {
		if prune {
			updateGroupMinimums(groups)
		}
		batch = batch[:0]
		for len(queue) > 0 && len(batch) < a.maxBatch {
			c := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			c.group.pending--
			if prune && c.group.minValue > a.maxThreshold {
				stats.Pruned++
				continue
			}
			batch = append(batch, c)
		}
		if len(batch) == 0 {
			continue
		}
		a.launch(f, kind, batch, pts, vals, r)
		stats.Batches++
	}

	stats.Elapsed = time.Since(start)
	a.last = stats
	a.logger.Debug("accelerated splat", "kernel", kind.String(), "particles", len(pts), "stats", stats)
}

// buildGroups partitions f into ceil(dim/chunk) blocks per axis.
func (a *Accelerator) buildGroups(f *field.ScalarField, kind KernelKind) []*workGroup {
	d := f.Dims()
	cw := a.chunkWidth
	gd := groupDims(d, cw)
	extent := grid.Dims{I: cw, J: cw, K: cw}

	groups := make([]*workGroup, gd.Len())
	for idx := range groups {
		i, j, k := gd.Coords(idx)
		g := &workGroup{gi: i * cw, gj: j * cw, gk: k * cw}
		g.values = f.Values().View(g.gi, g.gj, g.gk, extent)
		if kind == KernelWeightPointValues {
			g.weights = f.Weights().View(g.gi, g.gj, g.gk, extent)
		}
		groups[idx] = g
	}
	return groups
}

func groupDims(d grid.Dims, cw int) grid.Dims {
	return grid.Dims{
		I: (d.I + cw - 1) / cw,
		J: (d.J + cw - 1) / cw,
		K: (d.K + cw - 1) / cw,
	}
}

// bucket inserts every particle into every group its kernel support
// touches. A particle near a block boundary lands in several groups, each
// of which computes its own contribution. Returns the number of extra
// copies.
func (a *Accelerator) bucket(f *field.ScalarField, groups []*workGroup, kind KernelKind, pts []r3.Vec, r float64) int {
	d := f.Dims()
	cw := a.chunkWidth
	gd := groupDims(d, cw)
	support := r
	if kind == KernelLevelSetPoints {
		support = 2 * r
	}

	dupes := 0
	for pi, p := range pts {
		gx0, gy0, gz0 := f.GridCoords(r3.Sub(p, r3.Vec{X: support, Y: support, Z: support}))
		gx1, gy1, gz1 := f.GridCoords(r3.Add(p, r3.Vec{X: support, Y: support, Z: support}))
		i0, i1 := vertexSpan(gx0, gx1, d.I)
		j0, j1 := vertexSpan(gy0, gy1, d.J)
		k0, k1 := vertexSpan(gz0, gz1, d.K)
		if i0 > i1 || j0 > j1 || k0 > k1 {
			continue
		}
		n := 0
		for gk := k0 / cw; gk <= k1/cw; gk++ {
			for gj := j0 / cw; gj <= j1/cw; gj++ {
				for gi := i0 / cw; gi <= i1/cw; gi++ {
					g := groups[gd.Index(gi, gj, gk)]
					g.particles = append(g.particles, int32(pi))
					n++
				}
			}
		}
		dupes += n - 1
	}
	return dupes
}

// vertexSpan returns the inclusive vertex range inside [g0, g1] clipped to
// [0, n).
func vertexSpan(g0, g1 float64, n int) (int, int) {
	return max(int(math.Ceil(g0)), 0), min(int(math.Floor(g1)), n-1)
}

// buildQueue flattens groups into chunks of at most MaxParticlesPerChunk
// particles. The queue is consumed from the end, so it is sorted by
// descending particle count to hand out the cheapest chunks first.
func (a *Accelerator) buildQueue(groups []*workGroup) []workChunk {
	limit := a.cfg.MaxParticlesPerChunk
	var queue []workChunk
	for _, g := range groups {
		for s := 0; s < len(g.particles); s += limit {
			queue = append(queue, workChunk{group: g, start: s, end: min(s+limit, len(g.particles))})
			g.pending++
		}
	}
	slices.SortStableFunc(queue, func(x, y workChunk) int {
		return y.count() - x.count()
	})
	return queue
}

// updateGroupMinimums refreshes the pruning minimum of groups with work
// still queued.
func updateGroupMinimums(groups []*workGroup) {
	for _, g := range groups {
		if g.pending == 0 {
			continue
		}
		m := float32(math32.MaxFloat32)
		vd := g.values.Dims()
		for k := 0; k < vd.K; k++ {
			for j := 0; j < vd.J; j++ {
				for i := 0; i < vd.I; i++ {
					m = math32.Min(m, g.values.At(i, j, k))
				}
			}
		}
		g.minValue = m
	}
}

// launch uploads one batch, runs the kernel and merges the results. Device
// failures here mean the device was lost after a successful initialization
// and are not recoverable.
func (a *Accelerator) launch(f *field.ScalarField, kind KernelKind, batch []workChunk, pts []r3.Vec, vals []float64, r float64) {
	cd := a.ChunkDims()
	chunkLen := cd.Len()
	ppc := a.cfg.MaxParticlesPerChunk

	particles := a.alloc(len(batch) * ppc * ParticleStride)
	defer particles.Release()
	offsets := a.alloc(len(batch) * 3)
	defer offsets.Release()
	out := a.alloc(len(batch) * chunkLen)
	defer out.Release()
	var weights *Buffer
	if kind == KernelWeightPointValues {
		weights = a.alloc(len(batch) * chunkLen)
		defer weights.Release()
	}

	inf := math32.Inf(1)
	for c, ch := range batch {
		slots := particles.Data[c*ppc*ParticleStride : (c+1)*ppc*ParticleStride]
		n := 0
		for _, pi := range ch.group.particles[ch.start:ch.end] {
			p := pts[pi]
			v := float32(1)
			if vals != nil {
				v = float32(vals[pi])
			}
			slots[n], slots[n+1], slots[n+2], slots[n+3] = float32(p.X), float32(p.Y), float32(p.Z), v
			n += ParticleStride
		}
		for ; n < len(slots); n += ParticleStride {
			slots[n], slots[n+1], slots[n+2], slots[n+3] = inf, inf, inf, 0
		}
		origin := f.Position(ch.group.gi, ch.group.gj, ch.group.gk)
		offsets.Data[3*c] = float32(origin.X)
		offsets.Data[3*c+1] = float32(origin.Y)
		offsets.Data[3*c+2] = float32(origin.Z)
	}

	b := &Batch{
		NumChunks:         len(batch),
		ChunkDims:         cd,
		ParticlesPerChunk: ppc,
		Radius:            float32(r),
		DX:                float32(f.CellSize()),
		Particles:         particles,
		Offsets:           offsets,
		Field:             out,
		Weights:           weights,
	}
	if err := a.dev.Run(kind, b); err != nil {
		a.logger.Error("device run failed", "kernel", kind.String(), "chunks", len(batch), "error", err)
		panic(fmt.Sprintf("accel: device run failed: %v", err))
	}

	for c, ch := range batch {
		a.merge(f, kind, ch.group, out.Data[c*chunkLen:(c+1)*chunkLen], chunkSlice(weights, c, chunkLen))
	}
}

func chunkSlice(b *Buffer, c, n int) []float32 {
	if b == nil {
		return nil
	}
	return b.Data[c*n : (c+1)*n]
}

func (a *Accelerator) alloc(n int) *Buffer {
	buf, err := a.dev.Alloc(n)
	if err != nil {
		a.logger.Error("device allocation failed", "floats", n, "error", err)
		panic(fmt.Sprintf("accel: device allocation failed: %v", err))
	}
	if buf.Len() != n {
		panic(fmt.Sprintf("accel: device returned %d floats, requested %d", buf.Len(), n))
	}
	return buf
}

// merge folds one chunk's output into its group's view of f. The chunk may
// extend past the field; those vertices are dropped.
func (a *Accelerator) merge(f *field.ScalarField, kind KernelKind, g *workGroup, out, weights []float32) {
	cd := a.ChunkDims()
	vd := g.values.Dims()
	for k := 0; k < vd.K; k++ {
		for j := 0; j < vd.J; j++ {
			for i := 0; i < vd.I; i++ {
				idx := cd.Index(i, j, k)
				v := out[idx]
				if kind.Additive() {
					var w float32
					if weights != nil {
						w = weights[idx]
					}
					if v == 0 && w == 0 {
						continue
					}
					*g.values.Ptr(i, j, k) += v
					if weights != nil {
						*g.weights.Ptr(i, j, k) += w
					}
				} else {
					if v == math32.MaxFloat32 {
						continue
					}
					if p := g.values.Ptr(i, j, k); v < *p {
						*p = v
					}
				}
				f.MarkSet(g.gi+i, g.gj+j, g.gk+k)
			}
		}
	}
}
