package geometry

import "gonum.org/v1/gonum/spatial/r3"

// Region identifies the Voronoi feature of a triangle that a closest-point
// query resolved to.
type Region int

const (
	RegionVertexA Region = iota
	RegionVertexB
	RegionVertexC
	RegionEdgeAB
	RegionEdgeAC
	RegionEdgeBC
	RegionFace
)

func (r Region) String() string {
	switch r {
	case RegionVertexA:
		return "vertex_a"
	case RegionVertexB:
		return "vertex_b"
	case RegionVertexC:
		return "vertex_c"
	case RegionEdgeAB:
		return "edge_ab"
	case RegionEdgeAC:
		return "edge_ac"
	case RegionEdgeBC:
		return "edge_bc"
	case RegionFace:
		return "face"
	}
	return "unknown"
}

// ClosestPointOnTriangle returns the point of tri closest to p.
func ClosestPointOnTriangle(p r3.Vec, tri r3.Triangle) r3.Vec {
	q, _ := ClosestPointOnTriangleRegion(p, tri)
	return q
}

// ClosestPointOnTriangleRegion returns the point of tri closest to p along
// with the Voronoi region it lies in. The barycentric parameter space is
// split into three vertex regions, three edge regions and the face interior.
func ClosestPointOnTriangleRegion(p r3.Vec, tri r3.Triangle) (r3.Vec, Region) {
	a, b, c := tri[0], tri[1], tri[2]
	ab := r3.Sub(b, a)
	ac := r3.Sub(c, a)

	ap := r3.Sub(p, a)
	d1 := r3.Dot(ab, ap)
	d2 := r3.Dot(ac, ap)
	if d1 <= 0 && d2 <= 0 {
		return a, RegionVertexA
	}

	bp := r3.Sub(p, b)
	d3 := r3.Dot(ab, bp)
	d4 := r3.Dot(ac, bp)
	if d3 >= 0 && d4 <= d3 {
		return b, RegionVertexB
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return r3.Add(a, r3.Scale(v, ab)), RegionEdgeAB
	}

	cp := r3.Sub(p, c)
	d5 := r3.Dot(ab, cp)
	d6 := r3.Dot(ac, cp)
	if d6 >= 0 && d5 <= d6 {
		return c, RegionVertexC
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return r3.Add(a, r3.Scale(w, ac)), RegionEdgeAC
	}

	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return r3.Add(b, r3.Scale(w, r3.Sub(c, b))), RegionEdgeBC
	}

	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return r3.Add(a, r3.Add(r3.Scale(v, ab), r3.Scale(w, ac))), RegionFace
}
