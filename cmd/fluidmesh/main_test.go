package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.Domain.ISize, cfg.Domain.JSize, cfg.Domain.KSize = 12, 10, 10
	cfg.Domain.DX = 0.1
	if err := cfg.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return cfg
}

func TestReadParticles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "particles.csv")
	body := "x,y,z\n0.1,0.2,0.3\n1.5,-2,4\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	pts, err := readParticles(path)
	if err != nil {
		t.Fatalf("readParticles: %v", err)
	}
	want := []r3.Vec{{X: 0.1, Y: 0.2, Z: 0.3}, {X: 1.5, Y: -2, Z: 4}}
	if len(pts) != len(want) {
		t.Fatalf("got %d particles, want %d", len(pts), len(want))
	}
	for i := range want {
		if pts[i] != want[i] {
			t.Errorf("particle %d = %v, want %v", i, pts[i], want[i])
		}
	}

	if _, err := readParticles(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDemoParticlesInsideDomain(t *testing.T) {
	cfg := testConfig(t)
	pts := demoParticles(cfg, 500, 3)
	if len(pts) != 500 {
		t.Fatalf("got %d particles", len(pts))
	}
	for _, p := range pts {
		if p.X < 0.12 || p.X > 0.6 || p.Y < 0.1 || p.Y > 0.6 || p.Z < 0.1 || p.Z > 0.9 {
			t.Fatalf("particle %v outside the demo block", p)
		}
	}
	again := demoParticles(cfg, 500, 3)
	if again[17] != pts[17] {
		t.Error("demo cloud not reproducible for a fixed seed")
	}
}

func TestBuildSolid(t *testing.T) {
	cfg := testConfig(t)
	ls, err := buildSolid(cfg)
	if err != nil || ls != nil {
		t.Fatalf("shape none: %v, %v", ls, err)
	}

	cfg.Solid.Shape = "sphere"
	cfg.Solid.Center = [3]float64{0.6, 0.5, 0.5}
	cfg.Solid.Size = [3]float64{0.2, 0, 0}
	ls, err = buildSolid(cfg)
	if err != nil {
		t.Fatalf("sphere: %v", err)
	}
	if i, j, k := ls.CellDims(); i != 12 || j != 10 || k != 10 {
		t.Errorf("lattice cells = %d,%d,%d", i, j, k)
	}
	if !ls.IsInside(r3.Vec{X: 0.6, Y: 0.5, Z: 0.5}) {
		t.Error("sphere centre should be inside")
	}
	if ls.IsInside(r3.Vec{X: 0.1, Y: 0.1, Z: 0.1}) {
		t.Error("corner should be outside")
	}

	cfg.Solid.Shape = "box"
	cfg.Solid.Size = [3]float64{0.4, 0.2, 0.2}
	ls, err = buildSolid(cfg)
	if err != nil {
		t.Fatalf("box: %v", err)
	}
	if !ls.IsInside(r3.Vec{X: 0.75, Y: 0.5, Z: 0.5}) || ls.IsInside(r3.Vec{X: 0.6, Y: 0.7, Z: 0.5}) {
		t.Error("box classification wrong")
	}
}

func TestRunWritesOutputs(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	cfg.Mesher.Slices = 3
	cfg.Mesher.Preview.Enabled = true
	cfg.Accelerator.Enabled = true
	cfg.Force.Enabled = true
	cfg.Solid.Shape = "box"
	cfg.Solid.Center = [3]float64{0.9, 0.5, 0.5}
	cfg.Solid.Size = [3]float64{0.2, 0.2, 0.2}
	cfg.Output.Dir = filepath.Join(dir, "run")
	cfg.Output.OBJ = filepath.Join(dir, "surface.obj")
	if err := cfg.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	opts := options{DemoCount: 300, Seed: 5, Frames: 2}
	if err := run(cfg, opts); err != nil {
		t.Fatalf("run: %v", err)
	}

	obj, err := os.ReadFile(cfg.Output.OBJ)
	if err != nil {
		t.Fatalf("reading OBJ: %v", err)
	}
	if !strings.Contains(string(obj), "\nf ") {
		t.Error("OBJ has no faces")
	}
	for _, name := range []string{"frames.csv", "perf.csv", "config.yaml"} {
		if _, err := os.Stat(filepath.Join(cfg.Output.Dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "surface.preview.obj")); err != nil {
		t.Errorf("preview OBJ: %v", err)
	}
}
