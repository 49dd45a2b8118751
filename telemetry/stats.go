package telemetry

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// FrameStats summarises one meshed frame.
type FrameStats struct {
	Frame     int     `csv:"frame"`
	Particles int     `csv:"particles"`
	Radius    float64 `csv:"radius"`
	Slices    int     `csv:"slices"`
	Subdivide int     `csv:"subdivide"`
	GPU       bool    `csv:"gpu"`

	// Output mesh
	Vertices      int     `csv:"vertices"`
	Triangles     int     `csv:"triangles"`
	Welded        int     `csv:"welded"`         // vertices merged across slab seams
	BoundaryEdges int     `csv:"boundary_edges"` // zero for a watertight mesh
	Volume        float64 `csv:"volume"`

	// Edge length distribution
	EdgeMean float64 `csv:"edge_mean"`
	EdgeP10  float64 `csv:"edge_p10"`
	EdgeP50  float64 `csv:"edge_p50"`
	EdgeP90  float64 `csv:"edge_p90"`

	// Accelerator work, summed over slabs
	Chunks  int `csv:"chunks"`
	Batches int `csv:"batches"`
	Pruned  int `csv:"pruned"`

	FrameMS float64 `csv:"frame_ms"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeEdgeStats calculates mean and percentiles of edge lengths.
func ComputeEdgeStats(lengths []float64) (mean, p10, p50, p90 float64) {
	n := len(lengths)
	if n == 0 {
		return 0, 0, 0, 0
	}
	mean = floats.Sum(lengths) / float64(n)

	sorted := slices.Clone(lengths)
	slices.Sort(sorted)
	return mean, Percentile(sorted, 0.10), Percentile(sorted, 0.50), Percentile(sorted, 0.90)
}

// LogValue implements slog.LogValuer for structured logging.
func (s FrameStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("frame", s.Frame),
		slog.Int("particles", s.Particles),
		slog.Float64("radius", s.Radius),
		slog.Int("slices", s.Slices),
		slog.Int("subdivide", s.Subdivide),
		slog.Bool("gpu", s.GPU),
		slog.Int("vertices", s.Vertices),
		slog.Int("triangles", s.Triangles),
		slog.Int("welded", s.Welded),
		slog.Int("boundary_edges", s.BoundaryEdges),
		slog.Float64("volume", s.Volume),
		slog.Float64("edge_mean", s.EdgeMean),
		slog.Float64("edge_p50", s.EdgeP50),
		slog.Int("chunks", s.Chunks),
		slog.Int("batches", s.Batches),
		slog.Int("pruned", s.Pruned),
		slog.Float64("frame_ms", s.FrameMS),
	)
}
