// Package geom provides flat DIM-dimensional point arithmetic for mesh
// entity placement: midpoints, centroids, and the local/global
// coordinate transforms used when the mesh object model creates new
// vertices on an edge, side, or element interior.
//
// This package deliberately uses only the standard library. The
// corpus's geospatial library (great-circle distances, projections)
// does not model flat simplex/hex local coordinates, so there is no
// third-party library in the example set that fits this concern.
package geom

import "math"

// MaxDim is the highest supported spatial dimension (3D).
const MaxDim = 3

// Point is a DIM-dimensional point or vector; only the first Dim
// components are meaningful for a given grid (Dim is 2 or 3).
type Point [MaxDim]float64

// Add returns a+b componentwise.
func (a Point) Add(b Point) Point {
	var out Point
	for i := range out {
		out[i] = a[i] + b[i]
	}
	return out
}

// Sub returns a-b componentwise.
func (a Point) Sub(b Point) Point {
	var out Point
	for i := range out {
		out[i] = a[i] - b[i]
	}
	return out
}

// Scale returns a scaled by s.
func (a Point) Scale(s float64) Point {
	var out Point
	for i := range out {
		out[i] = a[i] * s
	}
	return out
}

// Dist returns the Euclidean distance between a and b over dim
// components.
func Dist(a, b Point, dim int) float64 {
	var sum float64
	for i := 0; i < dim; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point) Point {
	return a.Add(b).Scale(0.5)
}

// Centroid returns the arithmetic mean of pts over dim components.
func Centroid(pts []Point, dim int) Point {
	var out Point
	if len(pts) == 0 {
		return out
	}
	for _, p := range pts {
		for i := 0; i < dim; i++ {
			out[i] += p[i]
		}
	}
	inv := 1.0 / float64(len(pts))
	for i := 0; i < dim; i++ {
		out[i] *= inv
	}
	return out
}

// SideCentroidWeight returns the side parameter u (= v) at which the
// centroid of a polygonal element side with n corners lies (1/3 for
// triangles, 1/2 for quads, 1/n otherwise); CreateSideNode samples a
// boundary side there. It is not a per-corner averaging weight.
func SideCentroidWeight(nCorners int) float64 {
	switch nCorners {
	case 3:
		return 1.0 / 3.0
	case 4:
		return 1.0 / 2.0
	default:
		return 1.0 / float64(nCorners)
	}
}

// WithinTolerance reports whether a and b are within ε = 1e-6 of each
// other over dim components (the tolerance CreateMidNode uses to
// decide whether a boundary point deviates from the linear midpoint).
func WithinTolerance(a, b Point, dim int) bool {
	const epsilon = 1e-6
	return Dist(a, b, dim) <= epsilon
}

// LocalToGlobal performs a barycentric transform: given the dim+1 (or
// more, for non-simplex shapes) corner global coordinates and the
// matching weights, returns the weighted global point. Weights need
// not sum to 1; callers normalize beforehand.
func LocalToGlobal(corners []Point, weights []float64, dim int) Point {
	var out Point
	for i, w := range weights {
		if i >= len(corners) {
			break
		}
		for d := 0; d < dim; d++ {
			out[d] += corners[i][d] * w
		}
	}
	return out
}

// GlobalToLocal recovers the local coordinate of a point lying on (or
// near) the segment between two corners, by projecting the global
// point onto the corners' global segment and applying the resulting
// parametric coordinate t to the corners' local coordinates. This is
// the inverse CreateMidNode falls back to when a boundary-projected
// midpoint no longer sits at the exact parametric midpoint of its
// edge, so the node's local coordinate has to be recomputed rather
// than left at the linear average.
func GlobalToLocal(aGlobal, bGlobal, aLocal, bLocal, point Point, dim int) Point {
	var num, den float64
	for i := 0; i < dim; i++ {
		d := bGlobal[i] - aGlobal[i]
		num += (point[i] - aGlobal[i]) * d
		den += d * d
	}
	t := 0.5
	if den > 0 {
		t = num / den
	}
	return aLocal.Add(bLocal.Sub(aLocal).Scale(t))
}

// UniformWeights returns n equal barycentric weights summing to 1,
// used for centroid-style local-to-global transforms.
func UniformWeights(n int) []float64 {
	w := make([]float64, n)
	if n == 0 {
		return w
	}
	v := 1.0 / float64(n)
	for i := range w {
		w[i] = v
	}
	return w
}
