package accel

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidmesh/field"
	"github.com/pthm-cable/fluidmesh/grid"
)

// ErrNoDevice is the initialization failure for a nil device.
var ErrNoDevice = errors.New("no compute device")

// InitError records why an accelerator could not be initialized.
type InitError struct {
	Stage string
	Err   error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("accel: %s: %v", e.Stage, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Config holds scheduler tunables.
type Config struct {
	MaxParticlesPerChunk int // particle slots per work chunk
	MaxBatchSize         int // software cap on chunks per launch
	MinChunkWidth        int // smallest acceptable chunk edge, in vertices
	Logger               *slog.Logger
}

// DefaultConfig returns the standard tunables.
func DefaultConfig() Config {
	return Config{
		MaxParticlesPerChunk: 1024,
		MaxBatchSize:         128,
		MinChunkWidth:        2,
	}
}

// Accelerator splats particles into scalar fields through a Device.
// Initialization failures leave it unusable, and every call then takes the
// CPU path.
type Accelerator struct {
	dev    Device
	cfg    Config
	caps   Capabilities
	logger *slog.Logger

	initErr     *InitError
	initialized bool
	enabled     bool

	chunkWidth int
	maxBatch   int

	maxThreshold    float32
	hasMaxThreshold bool

	last RunStats
}

// New initializes an accelerator on dev. It never fails; check
// IsUsingGPU and InitializationError.
func New(dev Device, cfg Config) *Accelerator {
	def := DefaultConfig()
	if cfg.MaxParticlesPerChunk <= 0 {
		cfg.MaxParticlesPerChunk = def.MaxParticlesPerChunk
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.MinChunkWidth < 2 {
		cfg.MinChunkWidth = def.MinChunkWidth
	}
	a := &Accelerator{dev: dev, cfg: cfg, logger: cfg.Logger}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	if err := a.initialize(); err != nil {
		a.initErr = err
		a.logger.Warn("accelerator unavailable, using CPU path", "error", err.Error())
		return a
	}
	a.initialized = true
	a.enabled = true
	a.logger.Debug("accelerator initialized",
		"device", a.caps.Name,
		"chunk_width", a.chunkWidth,
		"max_batch", a.maxBatch,
	)
	return a
}

func (a *Accelerator) initialize() *InitError {
	if a.dev == nil {
		return &InitError{Stage: "device", Err: ErrNoDevice}
	}
	caps, err := a.dev.Capabilities()
	if err != nil {
		return &InitError{Stage: "capabilities", Err: err}
	}
	a.caps = caps

	width, err := chunkWidth(caps.MaxWorkGroupSize, a.cfg.MinChunkWidth)
	if err != nil {
		return &InitError{Stage: "work group size", Err: err}
	}
	a.chunkWidth = width

	if err := a.dev.Build(AllKernels...); err != nil {
		return &InitError{Stage: "build kernels", Err: err}
	}

	limit, err := a.hardwareBatchLimit()
	if err != nil {
		return &InitError{Stage: "memory", Err: err}
	}
	a.maxBatch = min(limit, a.cfg.MaxBatchSize)
	return nil
}

// chunkWidth returns the largest power of two c >= floor with c³ no larger
// than the device work-group size.
func chunkWidth(maxWorkGroup, floor int) (int, error) {
	if floor*floor*floor > maxWorkGroup {
		return 0, fmt.Errorf("max work group size %d below minimum chunk %d³", maxWorkGroup, floor)
	}
	c := 1
	for (2*c)*(2*c)*(2*c) <= maxWorkGroup {
		c *= 2
	}
	if c < floor {
		return 0, fmt.Errorf("no power-of-two chunk width >= %d fits work group size %d", floor, maxWorkGroup)
	}
	return c, nil
}

// hardwareBatchLimit bounds chunks per launch by global memory and by the
// largest single allocation.
func (a *Accelerator) hardwareBatchLimit() (int, error) {
	chunkLen := int64(a.chunkWidth * a.chunkWidth * a.chunkWidth)
	particleBytes := int64(a.cfg.MaxParticlesPerChunk*ParticleStride) * 4
	fieldBytes := chunkLen * 4
	offsetBytes := int64(3 * 4)
	payload := particleBytes + offsetBytes + 2*fieldBytes

	limit := a.caps.GlobalMemSize / payload
	limit = min(limit, a.caps.MaxMemAllocSize/particleBytes)
	limit = min(limit, a.caps.MaxMemAllocSize/fieldBytes)
	if limit < 1 {
		return 0, fmt.Errorf("device memory (global %d, alloc %d) cannot hold one %d-byte chunk",
			a.caps.GlobalMemSize, a.caps.MaxMemAllocSize, payload)
	}
	return int(limit), nil
}

// IsUsingGPU reports whether calls go to the device.
func (a *Accelerator) IsUsingGPU() bool { return a.initialized && a.enabled }

// IsInitialized reports whether device initialization succeeded.
func (a *Accelerator) IsInitialized() bool { return a.initialized }

// InitializationError returns the initialization failure, or "" if none.
func (a *Accelerator) InitializationError() string {
	if a.initErr == nil {
		return ""
	}
	return a.initErr.Error()
}

// Err returns the initialization failure as an error, or nil.
func (a *Accelerator) Err() error {
	if a.initErr == nil {
		return nil
	}
	return a.initErr
}

// Enable routes calls to the device when it initialized.
func (a *Accelerator) Enable() { a.enabled = true }

// Disable forces the CPU path.
func (a *Accelerator) Disable() { a.enabled = false }

// Capabilities returns the device limits seen at initialization.
func (a *Accelerator) Capabilities() Capabilities { return a.caps }

// ChunkDims returns the work-group extent in vertices.
func (a *Accelerator) ChunkDims() grid.Dims {
	return grid.Dims{I: a.chunkWidth, J: a.chunkWidth, K: a.chunkWidth}
}

// MaxBatchSize returns the chunks per launch.
func (a *Accelerator) MaxBatchSize() int { return a.maxBatch }

// SetMaxScalarFieldValueThreshold enables chunk pruning: chunks whose work
// group already has every value above t are skipped.
func (a *Accelerator) SetMaxScalarFieldValueThreshold(t float64) {
	a.maxThreshold = float32(t)
	a.hasMaxThreshold = true
}

// ClearMaxScalarFieldValueThreshold disables chunk pruning.
func (a *Accelerator) ClearMaxScalarFieldValueThreshold() { a.hasMaxThreshold = false }

// LastRun returns statistics for the most recent call.
func (a *Accelerator) LastRun() RunStats { return a.last }

// AddPoints adds a unit kernel of radius r for every point to f. When f
// carries a weight field the weights are accumulated too.
func (a *Accelerator) AddPoints(f *field.ScalarField, pts []r3.Vec, r float64) {
	if !a.IsUsingGPU() {
		a.cpuAdd(f, r, func(tmp *field.ScalarField) { tmp.AddPoints(pts) })
		return
	}
	kind := KernelPoints
	if f.HasWeightField() {
		kind = KernelWeightPointValues
	}
	a.run(f, kind, pts, nil, r)
}

// AddPointValues adds a kernel of radius r scaled by each value to f. When
// f carries a weight field the weights are accumulated too.
func (a *Accelerator) AddPointValues(f *field.ScalarField, pts []r3.Vec, vals []float64, r float64) {
	if len(pts) != len(vals) {
		panic(fmt.Sprintf("accel: %d points but %d values", len(pts), len(vals)))
	}
	if !a.IsUsingGPU() {
		a.cpuAdd(f, r, func(tmp *field.ScalarField) { tmp.AddPointValues(pts, vals) })
		return
	}
	kind := KernelPointValues
	if f.HasWeightField() {
		kind = KernelWeightPointValues
	}
	a.run(f, kind, pts, vals, r)
}

// AddLevelSetPoints lowers f to the distance to each sphere of radius r.
func (a *Accelerator) AddLevelSetPoints(f *field.ScalarField, pts []r3.Vec, r float64) {
	if !a.IsUsingGPU() {
		a.cpuLevelSet(f, pts, r)
		return
	}
	a.run(f, KernelLevelSetPoints, pts, nil, r)
}

// newTemp allocates a CPU-path scratch field matching f.
func (a *Accelerator) newTemp(f *field.ScalarField, r float64) *field.ScalarField {
	d := f.Dims()
	tmp := field.New(d.I, d.J, d.K, f.CellSize())
	tmp.SetOffset(f.Offset())
	tmp.SetPointRadius(r)
	tmp.SetLogger(a.logger)
	return tmp
}

func (a *Accelerator) cpuAdd(f *field.ScalarField, r float64, accumulate func(*field.ScalarField)) {
	tmp := a.newTemp(f, r)
	if f.HasWeightField() {
		tmp.EnableWeightField()
	}
	if a.hasMaxThreshold {
		tmp.SetMaxScalarFieldThreshold(float64(a.maxThreshold))
	}
	accumulate(tmp)
	f.MergeAdd(tmp)
	a.last = RunStats{CPU: true}
}

func (a *Accelerator) cpuLevelSet(f *field.ScalarField, pts []r3.Vec, r float64) {
	tmp := a.newTemp(f, r)
	tmp.Fill(math32.MaxFloat32)
	tmp.AddLevelSetPoints(pts, r)
	f.MergeMin(tmp)
	a.last = RunStats{CPU: true}
}
