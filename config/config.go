// Package config provides configuration loading and access for the mesher.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all meshing configuration parameters.
type Config struct {
	Domain      DomainConfig      `yaml:"domain"`
	Mesher      MesherConfig      `yaml:"mesher"`
	Field       FieldConfig       `yaml:"field"`
	Accelerator AcceleratorConfig `yaml:"accelerator"`
	Sweep       SweepConfig       `yaml:"sweep"`
	Force       ForceConfig       `yaml:"force"`
	Solid       SolidConfig       `yaml:"solid"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Output      OutputConfig      `yaml:"output"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// DomainConfig describes the simulation grid the particles live in.
type DomainConfig struct {
	ISize  int        `yaml:"isize"` // cells along x
	JSize  int        `yaml:"jsize"`
	KSize  int        `yaml:"ksize"`
	DX     float64    `yaml:"dx"`     // simulation cell size
	Origin [3]float64 `yaml:"origin"` // world position of vertex (0,0,0)
}

// MesherConfig holds particle mesher settings.
type MesherConfig struct {
	Mode          string        `yaml:"mode"`           // "levelset" or "metaball"
	Subdivide     int           `yaml:"subdivide"`      // mesh cells per simulation cell
	Slices        int           `yaml:"slices"`         // slabs along x; 1 meshes the whole grid
	ParticleScale float64       `yaml:"particle_scale"` // particle radius in simulation cells
	Polygonizer   string        `yaml:"polygonizer"`    // "tetrahedra" or "sdfx"
	SDFXCells     int           `yaml:"sdfx_cells"`     // resolution for the sdfx polygonizer
	Preview       PreviewConfig `yaml:"preview"`
}

// PreviewConfig controls the low resolution preview field.
type PreviewConfig struct {
	Enabled bool    `yaml:"enabled"`
	DX      float64 `yaml:"dx"` // preview cell size; 0 uses 4x the simulation cell
}

// FieldConfig holds scalar field settings.
type FieldConfig struct {
	SurfaceThreshold float64 `yaml:"surface_threshold"`
	MaxThreshold     float64 `yaml:"max_threshold"` // 0 disables pruning
}

// AcceleratorConfig holds compute device scheduling settings.
type AcceleratorConfig struct {
	Enabled              bool         `yaml:"enabled"`
	MaxParticlesPerChunk int          `yaml:"max_particles_per_chunk"`
	MaxBatchSize         int          `yaml:"max_batch_size"`
	MinChunkWidth        int          `yaml:"min_chunk_width"`
	Device               DeviceConfig `yaml:"device"`
}

// DeviceConfig describes the limits of the software compute device.
type DeviceConfig struct {
	MaxWorkGroupSize int   `yaml:"max_work_group_size"`
	GlobalMemMB      int64 `yaml:"global_mem_mb"`
	MaxAllocMB       int64 `yaml:"max_alloc_mb"`
	LocalMemKB       int64 `yaml:"local_mem_kb"`
}

// SweepConfig holds fast sweeping settings.
type SweepConfig struct {
	ExactBand int `yaml:"exact_band"` // cells around the surface computed exactly
	Passes    int `yaml:"passes"`
	StaggerUS int `yaml:"stagger_us"` // per-direction launch delay factor, microseconds
}

// ForceConfig controls the surface attraction field sampled from the
// output mesh.
type ForceConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Strength    float64 `yaml:"strength"`
	MaxDistance float64 `yaml:"max_distance"` // in simulation cells
}

// SolidConfig describes an optional static obstacle.
type SolidConfig struct {
	Shape  string     `yaml:"shape"` // "none", "sphere" or "box"
	Center [3]float64 `yaml:"center"`
	Size   [3]float64 `yaml:"size"` // sphere uses Size[0] as radius
}

// TelemetryConfig holds logging and timing settings.
type TelemetryConfig struct {
	LogLevel   string `yaml:"log_level"`
	PerfWindow int    `yaml:"perf_window"` // frames averaged by the perf collector
}

// OutputConfig holds output locations.
type OutputConfig struct {
	Dir string `yaml:"dir"` // CSV and config snapshot; empty disables
	OBJ string `yaml:"obj"` // mesh file; empty disables
}

// DerivedConfig holds values computed from the loaded config.
type DerivedConfig struct {
	MeshDX         float64 // cell size after subdivision
	MeshCells      [3]int  // cells per axis after subdivision
	ParticleRadius float64 // world-space particle radius
	PreviewDX      float64
	LogLevel       slog.Level
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.computeDerived()
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Domain.ISize < 1 || c.Domain.JSize < 1 || c.Domain.KSize < 1 {
		errs = append(errs, fmt.Errorf("domain size %dx%dx%d must be positive", c.Domain.ISize, c.Domain.JSize, c.Domain.KSize))
	}
	if c.Domain.DX <= 0 {
		errs = append(errs, fmt.Errorf("domain.dx %v must be positive", c.Domain.DX))
	}
	if c.Mesher.Subdivide < 1 {
		errs = append(errs, fmt.Errorf("mesher.subdivide %d must be at least 1", c.Mesher.Subdivide))
	}
	if c.Mesher.Slices < 1 {
		errs = append(errs, fmt.Errorf("mesher.slices %d must be at least 1", c.Mesher.Slices))
	}
	if c.Mesher.ParticleScale <= 0 {
		errs = append(errs, fmt.Errorf("mesher.particle_scale %v must be positive", c.Mesher.ParticleScale))
	}
	switch c.Mesher.Mode {
	case "levelset", "metaball":
	default:
		errs = append(errs, fmt.Errorf("mesher.mode %q unknown", c.Mesher.Mode))
	}
	if c.Force.Enabled && c.Force.MaxDistance <= 0 {
		errs = append(errs, fmt.Errorf("force.max_distance %v must be positive", c.Force.MaxDistance))
	}
	switch c.Mesher.Polygonizer {
	case "tetrahedra", "sdfx":
	default:
		errs = append(errs, fmt.Errorf("mesher.polygonizer %q unknown", c.Mesher.Polygonizer))
	}
	if c.Mesher.Polygonizer == "sdfx" && c.Mesher.Slices > 1 {
		errs = append(errs, fmt.Errorf("mesher.polygonizer sdfx cannot mesh %d slices", c.Mesher.Slices))
	}
	switch c.Solid.Shape {
	case "", "none", "sphere", "box":
	default:
		errs = append(errs, fmt.Errorf("solid.shape %q unknown", c.Solid.Shape))
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Telemetry.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("telemetry.log_level: %w", err))
	}
	return errors.Join(errs...)
}

// Refresh revalidates c and recomputes derived values after fields were
// changed in place, such as by command-line overrides.
func (c *Config) Refresh() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	c.computeDerived()
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	n := c.Mesher.Subdivide
	c.Derived.MeshDX = c.Domain.DX / float64(n)
	c.Derived.MeshCells = [3]int{c.Domain.ISize * n, c.Domain.JSize * n, c.Domain.KSize * n}
	c.Derived.ParticleRadius = c.Mesher.ParticleScale * c.Domain.DX

	c.Derived.PreviewDX = c.Mesher.Preview.DX
	if c.Derived.PreviewDX <= 0 {
		c.Derived.PreviewDX = 4 * c.Domain.DX
	}

	_ = c.Derived.LogLevel.UnmarshalText([]byte(c.Telemetry.LogLevel))
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
