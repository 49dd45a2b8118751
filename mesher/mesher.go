// Package mesher turns particle sets into closed triangle meshes, either in
// one pass over the whole grid or slab by slab along x.
package mesher

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/accel"
	"github.com/pthm-cable/fluidmesh/field"
	"github.com/pthm-cable/fluidmesh/levelset"
	"github.com/pthm-cable/fluidmesh/mesh"
	"github.com/pthm-cable/fluidmesh/polygonize"
	"github.com/pthm-cable/fluidmesh/telemetry"
)

// WeldTolerance is the seam weld distance as a fraction of the mesh cell.
const WeldTolerance = 1e-6

// Mode selects how particles are turned into a field.
type Mode int

const (
	// ModeLevelSet splats sphere distances; the surface sits at the radius.
	ModeLevelSet Mode = iota
	// ModeMetaball sums smooth kernels; the surface sits at the field's
	// surface threshold.
	ModeMetaball
)

func (m Mode) String() string {
	switch m {
	case ModeLevelSet:
		return "levelset"
	case ModeMetaball:
		return "metaball"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Stats describes the last MeshParticles call.
type Stats struct {
	Particles int
	Slabs     int
	Welded    int // vertices merged along slab seams
	GPU       bool
	Chunks    int
	Batches   int
	Pruned    int
	Elapsed   time.Duration
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("particles", s.Particles),
		slog.Int("slabs", s.Slabs),
		slog.Int("welded", s.Welded),
		slog.Bool("gpu", s.GPU),
		slog.Int("chunks", s.Chunks),
		slog.Int("batches", s.Batches),
		slog.Int("pruned", s.Pruned),
		slog.Duration("elapsed", s.Elapsed),
	)
}

// Mesher is the particle mesher driver. It is not safe for concurrent use.
type Mesher struct {
	isize, jsize, ksize int
	dx                  float64
	origin              r3.Vec

	subdivision int
	slices      int
	mode        Mode
	threshold   float64

	poly   polygonize.Polygonizer
	accel  *accel.Accelerator
	gpu    bool
	logger *slog.Logger
	perf   *telemetry.PerfCollector

	preview *preview
	stats   Stats
}

// Option configures a Mesher.
type Option func(*Mesher)

// WithPolygonizer replaces the default MarchingTetrahedra polygonizer.
func WithPolygonizer(p polygonize.Polygonizer) Option {
	return func(m *Mesher) { m.poly = p }
}

// WithAccelerator attaches a and routes splats through it.
func WithAccelerator(a *accel.Accelerator) Option {
	return func(m *Mesher) { m.EnableGPU(a) }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mesher) { m.logger = l }
}

// WithPerf records per-phase timings into p.
func WithPerf(p *telemetry.PerfCollector) Option {
	return func(m *Mesher) { m.perf = p }
}

// WithOrigin places the grid's first vertex at o.
func WithOrigin(o r3.Vec) Option {
	return func(m *Mesher) { m.origin = o }
}

// WithMetaballs switches to summed kernels with the given surface threshold.
func WithMetaballs(threshold float64) Option {
	return func(m *Mesher) {
		m.mode = ModeMetaball
		m.threshold = threshold
	}
}

// New creates a mesher for a simulation grid of isize x jsize x ksize cells
// of size dx. Invalid dimensions panic.
func New(isize, jsize, ksize int, dx float64, opts ...Option) *Mesher {
	if isize < 1 || jsize < 1 || ksize < 1 || dx <= 0 {
		panic(fmt.Sprintf("mesher: invalid grid %dx%dx%d dx=%v", isize, jsize, ksize, dx))
	}
	m := &Mesher{
		isize:       isize,
		jsize:       jsize,
		ksize:       ksize,
		dx:          dx,
		subdivision: 1,
		slices:      1,
		threshold:   field.DefaultSurfaceThreshold,
		poly:        polygonize.MarchingTetrahedra{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// SetSubdivisionLevel sets the number of mesh cells per simulation cell.
func (m *Mesher) SetSubdivisionLevel(n int) {
	if n < 1 {
		panic(fmt.Sprintf("mesher: subdivision level %d must be at least 1", n))
	}
	m.subdivision = n
}

// SubdivisionLevel returns the subdivision level.
func (m *Mesher) SubdivisionLevel() int { return m.subdivision }

// SetNumPolygonizationSlices sets the number of slabs. Values above the
// mesh width are clamped.
func (m *Mesher) SetNumPolygonizationSlices(n int) {
	if n < 1 {
		panic(fmt.Sprintf("mesher: slice count %d must be at least 1", n))
	}
	w, _, _ := m.meshCells()
	if n > w {
		m.logger.Debug("slice count clamped to grid width", "requested", n, "width", w)
		n = w
	}
	m.slices = n
}

// NumPolygonizationSlices returns the slab count in effect.
func (m *Mesher) NumPolygonizationSlices() int {
	w, _, _ := m.meshCells()
	return min(m.slices, w)
}

// EnableGPU routes splats through a. A nil a disables the GPU path.
func (m *Mesher) EnableGPU(a *accel.Accelerator) {
	m.accel = a
	m.gpu = a != nil
}

// DisableGPU forces CPU splatting. The accelerator stays attached.
func (m *Mesher) DisableGPU() { m.gpu = false }

// IsUsingGPU reports whether splats go to an initialized accelerator.
func (m *Mesher) IsUsingGPU() bool {
	return m.gpu && m.accel != nil && m.accel.IsUsingGPU()
}

// Mode returns the field construction mode.
func (m *Mesher) Mode() Mode { return m.mode }

// LastStats returns statistics for the most recent MeshParticles call.
func (m *Mesher) LastStats() Stats { return m.stats }

func (m *Mesher) meshCells() (int, int, int) {
	n := m.subdivision
	return m.isize * n, m.jsize * n, m.ksize * n
}

func (m *Mesher) meshDX() float64 { return m.dx / float64(m.subdivision) }

func (m *Mesher) startPhase(name string) {
	if m.perf != nil {
		m.perf.StartPhase(name)
	}
}

// MeshParticles builds a closed mesh around particles of the given radius.
// solid, when non-nil, marks obstacle vertices that never count as fluid.
// The grid's outer shell is always solid.
func (m *Mesher) MeshParticles(particles []r3.Vec, radius float64, solid *levelset.MeshLevelSet) (*mesh.TriangleMesh, error) {
	if radius <= 0 {
		panic(fmt.Sprintf("mesher: particle radius %v must be positive", radius))
	}
	start := time.Now()
	if m.perf != nil {
		m.perf.StartFrame()
	}
	m.stats = Stats{Particles: len(particles), GPU: m.IsUsingGPU()}
	if m.preview != nil {
		m.preview.reset(m, radius)
	}

	var out *mesh.TriangleMesh
	var err error
	if m.NumPolygonizationSlices() == 1 {
		out, err = m.meshWhole(particles, radius, solid)
	} else {
		out, err = m.meshSliced(particles, radius, solid)
	}

	if m.perf != nil {
		m.perf.EndFrame()
	}
	m.stats.Elapsed = time.Since(start)
	if err != nil {
		return nil, err
	}
	if m.preview != nil {
		m.preview.ready = true
	}
	m.logger.Debug("meshed particles",
		"mode", m.mode.String(),
		"triangles", out.NumTriangles(),
		"stats", m.stats,
	)
	return out, nil
}

func (m *Mesher) meshWhole(particles []r3.Vec, radius float64, solid *levelset.MeshLevelSet) (*mesh.TriangleMesh, error) {
	w, _, _ := m.meshCells()
	f := m.newField(0, w)
	m.stats.Slabs = 1

	m.startPhase(telemetry.PhaseSplat)
	m.splat(f, particles, radius)

	m.startPhase(telemetry.PhaseSolid)
	markShell(f, true, true)
	f.SetSolidSDF(solid)

	if m.preview != nil {
		m.startPhase(telemetry.PhasePreview)
		m.preview.resample(f, 0, w)
	}

	m.startPhase(telemetry.PhasePolygonize)
	out, err := m.poly.Polygonize(f, nil)
	if err != nil {
		return nil, fmt.Errorf("polygonizing grid: %w", err)
	}
	out.Translate(f.Offset())
	return out, nil
}

// newField allocates a mesh-resolution field covering cells [i0, i0+cells)
// along x and the full grid along y and z.
func (m *Mesher) newField(i0, cells int) *field.ScalarField {
	_, h, d := m.meshCells()
	mdx := m.meshDX()
	f := field.New(cells+1, h+1, d+1, mdx)
	f.SetOffset(r3.Add(m.origin, r3.Vec{X: float64(i0) * mdx}))
	f.SetLogger(m.logger)
	return f
}

// support returns how far a particle's influence reaches.
func (m *Mesher) support(radius float64) float64 {
	if m.mode == ModeLevelSet {
		return 2 * radius
	}
	return radius
}

// splat accumulates particles into f so that fluid reads above the surface
// threshold.
func (m *Mesher) splat(f *field.ScalarField, particles []r3.Vec, radius float64) {
	gpu := m.IsUsingGPU()
	switch m.mode {
	case ModeLevelSet:
		f.Fill(float32(radius))
		if gpu {
			m.accel.AddLevelSetPoints(f, particles, radius)
		} else {
			f.AddLevelSetPoints(particles, radius)
		}
		f.Negate()
		f.SetSurfaceThreshold(0)
	case ModeMetaball:
		f.SetPointRadius(radius)
		f.SetSurfaceThreshold(m.threshold)
		if gpu {
			m.accel.AddPoints(f, particles, radius)
		} else {
			f.AddPoints(particles)
		}
	}
	if gpu {
		run := m.accel.LastRun()
		m.stats.Chunks += run.Chunks
		m.stats.Batches += run.Batches
		m.stats.Pruned += run.Pruned
	}
}

// markShell flags the domain walls of f as solid. first and last say
// whether f's x extent touches the low and high domain walls.
func markShell(f *field.ScalarField, first, last bool) {
	d := f.Dims()
	for k := 0; k < d.K; k++ {
		for j := 0; j < d.J; j++ {
			wall := j == 0 || k == 0 || j == d.J-1 || k == d.K-1
			for i := 0; i < d.I; i++ {
				if wall || (first && i == 0) || (last && i == d.I-1) {
					f.SetVertexSolid(i, j, k, true)
				}
			}
		}
	}
}

// ErrPreviewDisabled is returned by PreviewMesh when no preview is enabled.
var ErrPreviewDisabled = errors.New("mesher: preview mesher disabled")

// ErrNoPreview is returned by PreviewMesh before any frame was meshed.
var ErrNoPreview = errors.New("mesher: no preview field yet")
