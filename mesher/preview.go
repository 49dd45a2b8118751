package mesher

import (
	"fmt"
	"math"

	"github.com/pthm-cable/fluidmesh/field"
	"github.com/pthm-cable/fluidmesh/mesh"
	"github.com/pthm-cable/fluidmesh/parallel"
	"github.com/pthm-cable/fluidmesh/polygonize"
)

// preview is a coarse field resampled from every full-resolution field the
// mesher computes.
type preview struct {
	field *field.ScalarField
	poly  polygonize.Polygonizer
	ready bool
}

// EnablePreviewMesher keeps a preview field with cell size dx alongside the
// full-resolution meshing.
func (m *Mesher) EnablePreviewMesher(dx float64) {
	if dx <= 0 {
		panic(fmt.Sprintf("mesher: preview cell size %v must be positive", dx))
	}
	w, h, d := m.meshCells()
	mdx := m.meshDX()
	dims := func(cells int) int {
		return int(math.Ceil(float64(cells)*mdx/dx-1e-9)) + 1
	}
	pi, pj, pk := dims(w), dims(h), dims(d)
	f := field.New(pi, pj, pk, dx)
	f.SetOffset(m.origin)
	f.SetLogger(m.logger)
	m.preview = &preview{
		field: f,
		poly:  polygonize.SDFX{Cells: max(pi, pj, pk) - 1},
	}
}

// DisablePreviewMesher drops the preview field.
func (m *Mesher) DisablePreviewMesher() { m.preview = nil }

// IsPreviewEnabled reports whether a preview field is maintained.
func (m *Mesher) IsPreviewEnabled() bool { return m.preview != nil }

// PreviewField returns the preview field, or nil when disabled.
func (m *Mesher) PreviewField() *field.ScalarField {
	if m.preview == nil {
		return nil
	}
	return m.preview.field
}

// PreviewMesh polygonizes the preview field of the last meshed frame.
func (m *Mesher) PreviewMesh() (*mesh.TriangleMesh, error) {
	if m.preview == nil {
		return nil, ErrPreviewDisabled
	}
	if !m.preview.ready {
		return nil, ErrNoPreview
	}
	out, err := m.preview.poly.Polygonize(m.preview.field, nil)
	if err != nil {
		return nil, fmt.Errorf("polygonizing preview: %w", err)
	}
	out.Translate(m.preview.field.Offset())
	return out, nil
}

// reset clears the preview to "no fluid" for a new frame.
func (p *preview) reset(m *Mesher, radius float64) {
	p.ready = false
	switch m.mode {
	case ModeLevelSet:
		p.field.Fill(float32(-radius))
		p.field.SetSurfaceThreshold(0)
	case ModeMetaball:
		p.field.Fill(0)
		p.field.SetSurfaceThreshold(m.threshold)
	}
}

// resample copies src into the preview vertices lying over global mesh
// cells [c0, c1] along x.
func (p *preview) resample(src *field.ScalarField, c0, c1 int) {
	dst := p.field
	d := dst.Dims()
	pdx := dst.CellSize()
	mdx := src.CellSize()
	base := dst.Offset().X

	lo := max(int(math.Ceil(float64(c0)*mdx/pdx-1e-9)), 0)
	hi := min(int(math.Floor(float64(c1)*mdx/pdx+1e-9)), d.I-1)
	if lo > hi {
		return
	}
	bounds := fieldBounds(src)
	bounds.Min.X = max(bounds.Min.X, base+float64(c0)*mdx)
	bounds.Max.X = min(bounds.Max.X, base+float64(c1)*mdx)
	cols := hi - lo + 1

	parallel.For(cols*d.J*d.K, 0, func(start, end int) {
		for idx := start; idx < end; idx++ {
			c := idx % cols
			rest := idx / cols
			i, j, k := lo+c, rest%d.J, rest/d.J
			pos := dst.Position(i, j, k)
			// Keep samples inside the source lattice despite rounding.
			pos.X = min(max(pos.X, bounds.Min.X), bounds.Max.X)
			pos.Y = min(max(pos.Y, bounds.Min.Y), bounds.Max.Y)
			pos.Z = min(max(pos.Z, bounds.Min.Z), bounds.Max.Z)
			dst.SetValue(i, j, k, src.TrilinearInterpolation(pos))
		}
	})
}
