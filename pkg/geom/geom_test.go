package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMidpoint(t *testing.T) {
	a := Point{0, 0, 0}
	b := Point{2, 4, 6}
	m := Midpoint(a, b)
	assert.Equal(t, Point{1, 2, 3}, m)
}

func TestCentroid(t *testing.T) {
	pts := []Point{{0, 0, 0}, {3, 0, 0}, {0, 3, 0}}
	c := Centroid(pts, 2)
	assert.InDelta(t, 1.0, c[0], 1e-9)
	assert.InDelta(t, 1.0, c[1], 1e-9)
}

func TestSideCentroidWeight(t *testing.T) {
	assert.InDelta(t, 1.0/3.0, SideCentroidWeight(3), 1e-12)
	assert.InDelta(t, 1.0/2.0, SideCentroidWeight(4), 1e-12)
}

func TestWithinTolerance(t *testing.T) {
	a := Point{0, 0, 0}
	b := Point{0, 0, 0.0000005}
	assert.True(t, WithinTolerance(a, b, 3))

	c := Point{0, 0, 0.01}
	assert.False(t, WithinTolerance(a, c, 3))
}

func TestLocalToGlobalUniformWeights(t *testing.T) {
	corners := []Point{{0, 0, 0}, {2, 0, 0}, {0, 2, 0}}
	w := UniformWeights(len(corners))
	out := LocalToGlobal(corners, w, 2)
	assert.InDelta(t, 2.0/3.0, out[0], 1e-9)
	assert.InDelta(t, 2.0/3.0, out[1], 1e-9)
}

func TestDist(t *testing.T) {
	a := Point{0, 0, 0}
	b := Point{3, 4, 0}
	assert.InDelta(t, 5.0, Dist(a, b, 2), 1e-9)
}

func TestGlobalToLocalExactMidpoint(t *testing.T) {
	aGlobal := Point{0, 0, 0}
	bGlobal := Point{2, 0, 0}
	aLocal := Point{0, 0, 0}
	bLocal := Point{1, 0, 0}

	local := GlobalToLocal(aGlobal, bGlobal, aLocal, bLocal, Point{1, 0, 0}, 2)
	assert.InDelta(t, 0.5, local[0], 1e-9)
}

func TestGlobalToLocalMovedPoint(t *testing.T) {
	aGlobal := Point{0, 0, 0}
	bGlobal := Point{2, 0, 0}
	aLocal := Point{0, 0, 0}
	bLocal := Point{1, 0, 0}

	// A boundary-projected point a quarter of the way along the edge.
	local := GlobalToLocal(aGlobal, bGlobal, aLocal, bLocal, Point{0.5, 0.1, 0}, 2)
	assert.InDelta(t, 0.25, local[0], 1e-9)
}
