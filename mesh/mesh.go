// Package mesh defines the indexed triangle mesh produced by polygonizers
// and stitched together by the slice mesher.
package mesh

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// TriangleMesh is a vertex list plus index triples. Triangles are wound
// counter-clockwise when viewed from outside.
type TriangleMesh struct {
	Vertices  []r3.Vec
	Triangles [][3]int
}

// FromTriangles builds an indexed mesh from a triangle soup, sharing
// vertices with identical coordinates.
func FromTriangles(tris []r3.Triangle) *TriangleMesh {
	m := &TriangleMesh{
		Vertices:  make([]r3.Vec, 0, len(tris)),
		Triangles: make([][3]int, 0, len(tris)),
	}
	lookup := make(map[r3.Vec]int, len(tris))
	for _, tri := range tris {
		var t [3]int
		for c, v := range tri {
			idx, ok := lookup[v]
			if !ok {
				idx = len(m.Vertices)
				lookup[v] = idx
				m.Vertices = append(m.Vertices, v)
			}
			t[c] = idx
		}
		m.Triangles = append(m.Triangles, t)
	}
	return m
}

// NumVertices returns the vertex count.
func (m *TriangleMesh) NumVertices() int { return len(m.Vertices) }

// NumTriangles returns the triangle count.
func (m *TriangleMesh) NumTriangles() int { return len(m.Triangles) }

// Triangle returns the positions of triangle t.
func (m *TriangleMesh) Triangle(t int) r3.Triangle {
	f := m.Triangles[t]
	return r3.Triangle{m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]}
}

// Translate offsets every vertex by v.
func (m *TriangleMesh) Translate(v r3.Vec) {
	for i := range m.Vertices {
		m.Vertices[i] = r3.Add(m.Vertices[i], v)
	}
}

// Join appends other's geometry, offsetting its indices.
func (m *TriangleMesh) Join(other *TriangleMesh) {
	if other == nil {
		return
	}
	base := len(m.Vertices)
	m.Vertices = append(m.Vertices, other.Vertices...)
	for _, t := range other.Triangles {
		m.Triangles = append(m.Triangles, [3]int{t[0] + base, t[1] + base, t[2] + base})
	}
}

// WeldVertices merges vertices closer than tol, then drops triangles that
// collapse. Returns the number of vertices removed.
func (m *TriangleMesh) WeldVertices(tol float64) int {
	if len(m.Vertices) == 0 || tol <= 0 {
		return 0
	}
	type key struct{ x, y, z int64 }
	cellOf := func(v r3.Vec) key {
		return key{
			int64(math.Floor(v.X / tol)),
			int64(math.Floor(v.Y / tol)),
			int64(math.Floor(v.Z / tol)),
		}
	}

	buckets := make(map[key][]int, len(m.Vertices))
	remap := make([]int, len(m.Vertices))
	welded := make([]r3.Vec, 0, len(m.Vertices))
	tol2 := tol * tol

	for i, v := range m.Vertices {
		c := cellOf(v)
		found := -1
	search:
		for dz := int64(-1); dz <= 1; dz++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for dx := int64(-1); dx <= 1; dx++ {
					for _, w := range buckets[key{c.x + dx, c.y + dy, c.z + dz}] {
						if r3.Norm2(r3.Sub(welded[w], v)) <= tol2 {
							found = w
							break search
						}
					}
				}
			}
		}
		if found < 0 {
			found = len(welded)
			welded = append(welded, v)
			buckets[c] = append(buckets[c], found)
		}
		remap[i] = found
	}

	removed := len(m.Vertices) - len(welded)
	m.Vertices = welded
	for i, t := range m.Triangles {
		m.Triangles[i] = [3]int{remap[t[0]], remap[t[1]], remap[t[2]]}
	}
	m.RemoveDegenerateTriangles()
	return removed
}

// RemoveDegenerateTriangles drops triangles that reference a vertex twice.
func (m *TriangleMesh) RemoveDegenerateTriangles() {
	kept := m.Triangles[:0]
	for _, t := range m.Triangles {
		if t[0] == t[1] || t[1] == t[2] || t[0] == t[2] {
			continue
		}
		kept = append(kept, t)
	}
	m.Triangles = kept
}

// Bounds returns the axis-aligned bounding box of the vertices.
func (m *TriangleMesh) Bounds() r3.Box {
	if len(m.Vertices) == 0 {
		return r3.Box{}
	}
	b := r3.Box{Min: m.Vertices[0], Max: m.Vertices[0]}
	for _, v := range m.Vertices[1:] {
		b.Min = r3.Vec{X: math.Min(b.Min.X, v.X), Y: math.Min(b.Min.Y, v.Y), Z: math.Min(b.Min.Z, v.Z)}
		b.Max = r3.Vec{X: math.Max(b.Max.X, v.X), Y: math.Max(b.Max.Y, v.Y), Z: math.Max(b.Max.Z, v.Z)}
	}
	return b
}

// Volume returns the signed enclosed volume by the divergence theorem.
// Positive for outward-wound closed meshes.
func (m *TriangleMesh) Volume() float64 {
	terms := make([]float64, len(m.Triangles))
	for i := range m.Triangles {
		tri := m.Triangle(i)
		terms[i] = r3.Dot(tri[0], r3.Cross(tri[1], tri[2]))
	}
	return floats.Sum(terms) / 6
}

// Edge is an undirected vertex pair with A < B.
type Edge struct {
	A, B int
}

func makeEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// BoundaryEdges returns edges not shared by exactly two triangles.
func (m *TriangleMesh) BoundaryEdges() []Edge {
	counts := make(map[Edge]int, len(m.Triangles)*3/2)
	for _, t := range m.Triangles {
		counts[makeEdge(t[0], t[1])]++
		counts[makeEdge(t[1], t[2])]++
		counts[makeEdge(t[2], t[0])]++
	}
	var out []Edge
	for e, n := range counts {
		if n != 2 {
			out = append(out, e)
		}
	}
	return out
}

// EdgeLengths returns the length of every distinct edge.
func (m *TriangleMesh) EdgeLengths() []float64 {
	seen := make(map[Edge]struct{}, len(m.Triangles)*3/2)
	var out []float64
	for _, t := range m.Triangles {
		for c := 0; c < 3; c++ {
			e := makeEdge(t[c], t[(c+1)%3])
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, r3.Norm(r3.Sub(m.Vertices[e.A], m.Vertices[e.B])))
		}
	}
	return out
}

// IsClosed reports whether every edge is shared by exactly two triangles.
func (m *TriangleMesh) IsClosed() bool {
	return len(m.Triangles) > 0 && len(m.BoundaryEdges()) == 0
}

// WriteOBJ writes the mesh in Wavefront OBJ format.
func (m *TriangleMesh) WriteOBJ(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, v := range m.Vertices {
		if _, err := fmt.Fprintf(bw, "v %g %g %g\n", v.X, v.Y, v.Z); err != nil {
			return fmt.Errorf("writing vertex: %w", err)
		}
	}
	for _, t := range m.Triangles {
		if _, err := fmt.Fprintf(bw, "f %d %d %d\n", t[0]+1, t[1]+1, t[2]+1); err != nil {
			return fmt.Errorf("writing face: %w", err)
		}
	}
	return bw.Flush()
}
