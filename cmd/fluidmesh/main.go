// Command fluidmesh meshes a particle set into a closed triangle surface.
package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/fluidmesh/config"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	particlesPath := flag.String("particles", "", "CSV file with x,y,z columns (empty = demo cloud)")
	demoCount := flag.Int("demo-particles", 4000, "Particle count for the demo cloud")
	seed := flag.Uint64("seed", 0, "Demo cloud RNG seed (0 = time-based)")
	frames := flag.Int("frames", 1, "Number of times to mesh the particle set")
	objPath := flag.String("out", "", "OBJ output path (empty = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	slices := flag.Int("slices", 0, "Polygonization slices (0 = use config)")
	subdivide := flag.Int("subdivide", 0, "Mesh subdivision level (0 = use config)")
	scale := flag.Float64("particle-scale", 0, "Particle radius in simulation cells (0 = use config)")
	gpu := flag.Bool("gpu", false, "Splat through the software compute device")
	preview := flag.Bool("preview", false, "Also build the preview mesh")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// Command-line overrides
	if *slices > 0 {
		cfg.Mesher.Slices = *slices
	}
	if *subdivide > 0 {
		cfg.Mesher.Subdivide = *subdivide
	}
	if *scale > 0 {
		cfg.Mesher.ParticleScale = *scale
	}
	if *gpu {
		cfg.Accelerator.Enabled = true
	}
	if *preview {
		cfg.Mesher.Preview.Enabled = true
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *objPath != "" {
		cfg.Output.OBJ = *objPath
	}
	if err := cfg.Refresh(); err != nil {
		slog.Error("invalid overrides", "error", err)
		os.Exit(1)
	}

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Derived.LogLevel}))
	slog.SetDefault(logger)

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = uint64(time.Now().UnixNano())
	}

	opts := options{
		ParticlesPath: *particlesPath,
		DemoCount:     *demoCount,
		Seed:          rngSeed,
		Frames:        max(*frames, 1),
	}
	if err := run(cfg, opts); err != nil {
		slog.Error("meshing failed", "error", err)
		os.Exit(1)
	}
}
