package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/accel"
	"github.com/pthm-cable/fluidmesh/config"
	"github.com/pthm-cable/fluidmesh/forcefield"
	"github.com/pthm-cable/fluidmesh/levelset"
	"github.com/pthm-cable/fluidmesh/mesh"
	"github.com/pthm-cable/fluidmesh/mesher"
	"github.com/pthm-cable/fluidmesh/polygonize"
	"github.com/pthm-cable/fluidmesh/telemetry"
)

// options holds run settings that are not part of the config file.
type options struct {
	ParticlesPath string
	DemoCount     int
	Seed          uint64
	Frames        int
}

func run(cfg *config.Config, opts options) error {
	pts, err := loadParticles(cfg, opts)
	if err != nil {
		return err
	}
	solid, err := buildSolid(cfg)
	if err != nil {
		return err
	}

	perf := telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	m := newMesher(cfg, perf)

	om, err := telemetry.NewOutputManager(cfg.Output.Dir)
	if err != nil {
		return err
	}
	defer om.Close()
	if err := om.WriteConfig(cfg); err != nil {
		return err
	}

	radius := cfg.Derived.ParticleRadius
	slog.Info("meshing particles",
		"particles", len(pts),
		"radius", radius,
		"mode", m.Mode().String(),
		"mesh_cells", cfg.Derived.MeshCells,
		"slices", m.NumPolygonizationSlices(),
		"gpu", m.IsUsingGPU(),
		"frames", opts.Frames,
	)

	var surface *mesh.TriangleMesh
	for frame := 0; frame < opts.Frames; frame++ {
		surface, err = m.MeshParticles(pts, radius, solid)
		if err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
		st := frameStats(frame, m, surface, radius)
		slog.Info("frame meshed", "stats", st)
		if err := om.WriteFrame(st); err != nil {
			return err
		}
		if err := om.WritePerf(perf.Stats(), frame); err != nil {
			return err
		}
	}
	slog.Info("perf", "stats", perf.Stats())

	if cfg.Output.OBJ != "" {
		if err := writeOBJ(cfg.Output.OBJ, surface); err != nil {
			return err
		}
		slog.Info("mesh written", "path", cfg.Output.OBJ, "triangles", surface.NumTriangles())
	}
	if m.IsPreviewEnabled() {
		if err := writePreview(cfg, m); err != nil {
			return err
		}
	}
	if cfg.Force.Enabled {
		if err := sampleForce(cfg, surface); err != nil {
			return err
		}
	}
	return nil
}

// newMesher builds a mesher from cfg.
func newMesher(cfg *config.Config, perf *telemetry.PerfCollector) *mesher.Mesher {
	o := cfg.Domain.Origin
	opts := []mesher.Option{
		mesher.WithLogger(slog.Default()),
		mesher.WithPerf(perf),
		mesher.WithOrigin(r3.Vec{X: o[0], Y: o[1], Z: o[2]}),
	}
	if cfg.Mesher.Mode == "metaball" {
		opts = append(opts, mesher.WithMetaballs(cfg.Field.SurfaceThreshold))
	}
	if cfg.Mesher.Polygonizer == "sdfx" {
		opts = append(opts, mesher.WithPolygonizer(polygonize.SDFX{Cells: cfg.Mesher.SDFXCells}))
	}
	if cfg.Accelerator.Enabled {
		opts = append(opts, mesher.WithAccelerator(newAccelerator(cfg)))
	}

	m := mesher.New(cfg.Domain.ISize, cfg.Domain.JSize, cfg.Domain.KSize, cfg.Domain.DX, opts...)
	m.SetSubdivisionLevel(cfg.Mesher.Subdivide)
	m.SetNumPolygonizationSlices(cfg.Mesher.Slices)
	if cfg.Mesher.Preview.Enabled {
		m.EnablePreviewMesher(cfg.Derived.PreviewDX)
	}
	return m
}

// newAccelerator builds the software compute device described by cfg.
func newAccelerator(cfg *config.Config) *accel.Accelerator {
	d := cfg.Accelerator.Device
	dev := accel.NewSoftwareDevice(accel.Capabilities{
		Name:             "software",
		MaxWorkGroupSize: d.MaxWorkGroupSize,
		GlobalMemSize:    d.GlobalMemMB << 20,
		MaxMemAllocSize:  d.MaxAllocMB << 20,
		LocalMemSize:     d.LocalMemKB << 10,
	})
	a := accel.New(dev, accel.Config{
		MaxParticlesPerChunk: cfg.Accelerator.MaxParticlesPerChunk,
		MaxBatchSize:         cfg.Accelerator.MaxBatchSize,
		MinChunkWidth:        cfg.Accelerator.MinChunkWidth,
		Logger:               slog.Default(),
	})
	if cfg.Field.MaxThreshold > 0 {
		a.SetMaxScalarFieldValueThreshold(cfg.Field.MaxThreshold)
	}
	return a
}

func frameStats(frame int, m *mesher.Mesher, surface *mesh.TriangleMesh, radius float64) telemetry.FrameStats {
	st := m.LastStats()
	mean, p10, p50, p90 := telemetry.ComputeEdgeStats(surface.EdgeLengths())
	return telemetry.FrameStats{
		Frame:         frame,
		Particles:     st.Particles,
		Radius:        radius,
		Slices:        st.Slabs,
		Subdivide:     m.SubdivisionLevel(),
		GPU:           st.GPU,
		Vertices:      surface.NumVertices(),
		Triangles:     surface.NumTriangles(),
		Welded:        st.Welded,
		BoundaryEdges: len(surface.BoundaryEdges()),
		Volume:        surface.Volume(),
		EdgeMean:      mean,
		EdgeP10:       p10,
		EdgeP50:       p50,
		EdgeP90:       p90,
		Chunks:        st.Chunks,
		Batches:       st.Batches,
		Pruned:        st.Pruned,
		FrameMS:       float64(st.Elapsed) / float64(time.Millisecond),
	}
}

func writeOBJ(path string, m *mesh.TriangleMesh) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := m.WriteOBJ(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// writePreview polygonizes the preview field and writes it beside the
// main OBJ as <name>.preview.obj.
func writePreview(cfg *config.Config, m *mesher.Mesher) error {
	pm, err := m.PreviewMesh()
	if err != nil {
		return err
	}
	slog.Info("preview meshed", "triangles", pm.NumTriangles(), "volume", pm.Volume())
	if cfg.Output.OBJ == "" {
		return nil
	}
	ext := filepath.Ext(cfg.Output.OBJ)
	path := strings.TrimSuffix(cfg.Output.OBJ, ext) + ".preview" + ext
	return writeOBJ(path, pm)
}

// sampleForce builds the surface attraction field of the mesh and samples
// it onto the simulation's face grid.
func sampleForce(cfg *config.Config, surface *mesh.TriangleMesh) error {
	if surface.NumTriangles() == 0 {
		slog.Warn("skipping force field for empty mesh")
		return nil
	}
	s := levelset.NewSweeper()
	s.ExactBand = cfg.Sweep.ExactBand
	s.Passes = cfg.Sweep.Passes
	s.StaggerFactor = time.Duration(cfg.Sweep.StaggerUS) * time.Microsecond
	s.Logger = slog.Default()

	vol, err := forcefield.NewMeshVolume(surface, cfg.Derived.MeshDX, cfg.Force.MaxDistance*cfg.Domain.DX, s)
	if err != nil {
		return err
	}
	vol.Strength = cfg.Force.Strength

	o := cfg.Domain.Origin
	g := forcefield.NewFaceGrid(cfg.Domain.ISize, cfg.Domain.JSize, cfg.Domain.KSize, cfg.Domain.DX)
	g.Origin = r3.Vec{X: o[0], Y: o[1], Z: o[2]}
	forcefield.AddForceFieldToGrid(vol, g)

	var active int
	var peak float32
	for _, data := range [][]float32{g.U.Data(), g.V.Data(), g.W.Data()} {
		for _, v := range data {
			if v != 0 {
				active++
				peak = math32.Max(peak, math32.Abs(v))
			}
		}
	}
	slog.Info("force field sampled",
		"faces", g.NumFaces(),
		"active", active,
		"peak", peak,
	)
	return nil
}
