package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Field.SurfaceThreshold != 0.5 {
		t.Errorf("surface threshold = %v, want 0.5", cfg.Field.SurfaceThreshold)
	}
	if cfg.Mesher.Subdivide != 1 || cfg.Mesher.Slices != 1 {
		t.Errorf("mesher = %+v, want subdivide 1 slices 1", cfg.Mesher)
	}
	if cfg.Derived.MeshCells != [3]int{32, 32, 32} {
		t.Errorf("mesh cells = %v", cfg.Derived.MeshCells)
	}
	if cfg.Derived.LogLevel != slog.LevelInfo {
		t.Errorf("log level = %v, want info", cfg.Derived.LogLevel)
	}
}

func TestLoadOverridesMerge(t *testing.T) {
	path := writeFile(t, `
domain:
  isize: 10
mesher:
  subdivide: 2
  slices: 3
telemetry:
  log_level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Domain.ISize != 10 || cfg.Domain.JSize != 32 {
		t.Errorf("domain = %+v, want isize overridden and jsize kept", cfg.Domain)
	}
	if got, want := cfg.Derived.MeshDX, cfg.Domain.DX/2; got != want {
		t.Errorf("mesh dx = %v, want %v", got, want)
	}
	if cfg.Derived.MeshCells != [3]int{20, 64, 64} {
		t.Errorf("mesh cells = %v", cfg.Derived.MeshCells)
	}
	if cfg.Derived.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", cfg.Derived.LogLevel)
	}
	if cfg.Accelerator.MaxParticlesPerChunk != 1024 {
		t.Errorf("accelerator defaults lost: %+v", cfg.Accelerator)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"zero subdivide", "mesher:\n  subdivide: 0\n", "subdivide"},
		{"zero slices", "mesher:\n  slices: 0\n", "slices"},
		{"negative dx", "domain:\n  dx: -1\n", "dx"},
		{"unknown polygonizer", "mesher:\n  polygonizer: cubes\n", "polygonizer"},
		{"sdfx slices", "mesher:\n  polygonizer: sdfx\n  slices: 2\n", "sdfx"},
		{"unknown mode", "mesher:\n  mode: voxels\n", "mesher.mode"},
		{"force without range", "force:\n  enabled: true\n  max_distance: 0\n", "max_distance"},
		{"unknown solid", "solid:\n  shape: torus\n", "solid.shape"},
		{"bad log level", "telemetry:\n  log_level: loud\n", "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestRefreshAfterOverride(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Mesher.Subdivide = 3
	if err := cfg.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if cfg.Derived.MeshCells != [3]int{96, 96, 96} {
		t.Errorf("mesh cells = %v, want 96 per axis", cfg.Derived.MeshCells)
	}
	cfg.Mesher.Slices = 0
	if err := cfg.Refresh(); err == nil {
		t.Error("expected error for zero slices")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Mesher.Slices = 4
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load snapshot: %v", err)
	}
	if back.Mesher.Slices != 4 {
		t.Errorf("slices = %d, want 4", back.Mesher.Slices)
	}
}

func TestCfgBeforeInitPanics(t *testing.T) {
	saved := global
	global = nil
	defer func() {
		global = saved
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Cfg()
}
