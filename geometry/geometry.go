// Package geometry provides stateless intersection and closest-point
// primitives over gonum r3 vectors, triangles and boxes.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// parallelEps is the determinant/dot threshold below which a ray is
	// considered parallel to a triangle or plane.
	parallelEps = 1e-8

	// degenerateEps is the minimum edge length of a triangle with a defined normal.
	degenerateEps = 1e-9

	// directionEps replaces exactly-zero direction components in slab tests.
	directionEps = 1e-12
)

// Hit describes a ray or line intersection with a triangle.
type Hit struct {
	Point r3.Vec
	T     float64 // parameter along the direction vector
	U, V  float64 // barycentric coordinates of Point
}

// RayIntersectTriangle intersects a forward ray with a triangle using the
// Möller–Trumbore formulation. Hits behind the origin are rejected; a hit
// exactly at the origin (t == 0) is reported.
func RayIntersectTriangle(origin, dir r3.Vec, tri r3.Triangle) (Hit, bool) {
	h, ok := intersectTriangle(origin, dir, tri)
	if !ok || h.T < 0 {
		return Hit{}, false
	}
	return h, true
}

// LineIntersectTriangle intersects an infinite line with a triangle. The
// returned T may be negative.
func LineIntersectTriangle(origin, dir r3.Vec, tri r3.Triangle) (Hit, bool) {
	return intersectTriangle(origin, dir, tri)
}

func intersectTriangle(origin, dir r3.Vec, tri r3.Triangle) (Hit, bool) {
	edge1 := r3.Sub(tri[1], tri[0])
	edge2 := r3.Sub(tri[2], tri[0])
	h := r3.Cross(dir, edge2)
	det := r3.Dot(edge1, h)
	if math.Abs(det) < parallelEps {
		return Hit{}, false
	}
	invDet := 1 / det
	s := r3.Sub(origin, tri[0])
	u := invDet * r3.Dot(s, h)
	if u < 0 || u > 1 {
		return Hit{}, false
	}
	q := r3.Cross(s, edge1)
	v := invDet * r3.Dot(dir, q)
	if v < 0 || u+v > 1 {
		return Hit{}, false
	}
	t := invDet * r3.Dot(edge2, q)
	return Hit{
		Point: r3.Add(origin, r3.Scale(t, dir)),
		T:     t,
		U:     u,
		V:     v,
	}, true
}

// RayIntersectPlane intersects a forward ray with the plane through
// planePoint with the given normal.
func RayIntersectPlane(origin, dir, planePoint, normal r3.Vec) (r3.Vec, float64, bool) {
	p, t, ok := LineIntersectPlane(origin, dir, planePoint, normal)
	if !ok || t < 0 {
		return r3.Vec{}, 0, false
	}
	return p, t, true
}

// LineIntersectPlane intersects an infinite line with a plane. Lines that
// are nearly parallel to the plane report no intersection.
func LineIntersectPlane(origin, dir, planePoint, normal r3.Vec) (r3.Vec, float64, bool) {
	denom := r3.Dot(dir, normal)
	if math.Abs(denom) < parallelEps {
		return r3.Vec{}, 0, false
	}
	t := r3.Dot(r3.Sub(planePoint, origin), normal) / denom
	return r3.Add(origin, r3.Scale(t, dir)), t, true
}

// RayIntersectAABB performs a branchless slab test. tmin and tmax bound the
// overlap interval along the ray; ok is false if the ray misses the box or
// the box lies entirely behind the origin.
func RayIntersectAABB(origin, dir r3.Vec, box r3.Box) (tmin, tmax float64, ok bool) {
	inv := r3.Vec{X: 1 / nonZero(dir.X), Y: 1 / nonZero(dir.Y), Z: 1 / nonZero(dir.Z)}

	tx1 := (box.Min.X - origin.X) * inv.X
	tx2 := (box.Max.X - origin.X) * inv.X
	tmin = math.Min(tx1, tx2)
	tmax = math.Max(tx1, tx2)

	ty1 := (box.Min.Y - origin.Y) * inv.Y
	ty2 := (box.Max.Y - origin.Y) * inv.Y
	tmin = math.Max(tmin, math.Min(ty1, ty2))
	tmax = math.Min(tmax, math.Max(ty1, ty2))

	tz1 := (box.Min.Z - origin.Z) * inv.Z
	tz2 := (box.Max.Z - origin.Z) * inv.Z
	tmin = math.Max(tmin, math.Min(tz1, tz2))
	tmax = math.Min(tmax, math.Max(tz1, tz2))

	return tmin, tmax, tmax >= math.Max(tmin, 0)
}

func nonZero(x float64) float64 {
	if x == 0 {
		return directionEps
	}
	return x
}

// SphereIntersectsAABB reports whether a sphere overlaps a box.
func SphereIntersectsAABB(center r3.Vec, radius float64, box r3.Box) bool {
	closest := r3.Vec{
		X: clamp(center.X, box.Min.X, box.Max.X),
		Y: clamp(center.Y, box.Min.Y, box.Max.Y),
		Z: clamp(center.Z, box.Min.Z, box.Max.Z),
	}
	return r3.Norm2(r3.Sub(center, closest)) <= radius*radius
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// TriangleCentroid returns the mean of the triangle's vertices.
func TriangleCentroid(tri r3.Triangle) r3.Vec {
	return tri.Centroid()
}

// TriangleNormal returns the unit normal of tri following its winding. The
// zero vector is returned when any edge is shorter than 1e-9.
func TriangleNormal(tri r3.Triangle) r3.Vec {
	e1 := r3.Sub(tri[1], tri[0])
	e2 := r3.Sub(tri[2], tri[0])
	e3 := r3.Sub(tri[2], tri[1])
	if r3.Norm(e1) < degenerateEps || r3.Norm(e2) < degenerateEps || r3.Norm(e3) < degenerateEps {
		return r3.Vec{}
	}
	n := r3.Cross(e1, e2)
	if r3.Norm(n) < degenerateEps*degenerateEps {
		return r3.Vec{}
	}
	return r3.Unit(n)
}

// TriangleBounds returns the axis-aligned bounding box of tri.
func TriangleBounds(tri r3.Triangle) r3.Box {
	box := r3.Box{Min: tri[0], Max: tri[0]}
	for _, v := range tri[1:] {
		box.Min = r3.Vec{X: math.Min(box.Min.X, v.X), Y: math.Min(box.Min.Y, v.Y), Z: math.Min(box.Min.Z, v.Z)}
		box.Max = r3.Vec{X: math.Max(box.Max.X, v.X), Y: math.Max(box.Max.Y, v.Y), Z: math.Max(box.Max.Z, v.Z)}
	}
	return box
}
