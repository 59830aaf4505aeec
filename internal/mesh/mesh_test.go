package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/griddist/core/internal/objmgr"
	"github.com/griddist/core/pkg/geom"
)

func pt(x, y, z float64) geom.Point { return geom.Point{x, y, z} }

// tetra builds a single master tetrahedron with corner nodes at the
// given global coordinates (local coordinates mirror global for this
// fixture, which is all the construction operations need).
func tetra(t *testing.T, mg *Multigrid, coords [4]geom.Point) *Element {
	t.Helper()
	corners := make([]*Node, 4)
	for i, c := range coords {
		v := mg.CreateVertex(c, c, nil, -1, -1, nil)
		corners[i] = mg.CreateNode(0, v, nil, NodeLevel0, 0)
	}
	edgePairs := [][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}
	return mg.CreateElement(ElementTetrahedron, VariantInner, corners, nil, edgePairs)
}

func TestCreateElement_CreatesSixEdgesForTetra(t *testing.T) {
	om := objmgr.New(0)
	mg := NewMultigrid(3, om)

	el := tetra(t, mg, [4]geom.Point{pt(0, 0, 0), pt(1, 0, 0), pt(0, 1, 0), pt(0, 0, 1)})

	assert.Len(t, el.Edges, 6)
	for _, e := range el.Edges {
		assert.Equal(t, 1, e.ElemCount)
	}
	assert.Equal(t, 1, mg.Grid(0).Elements.Len())
	assert.Equal(t, 6, mg.Grid(0).Edges.Len())
}

func TestCreateEdge_SharedEdgeIsReusedAcrossElements(t *testing.T) {
	om := objmgr.New(0)
	mg := NewMultigrid(3, om)

	a := tetra(t, mg, [4]geom.Point{pt(0, 0, 0), pt(1, 0, 0), pt(0, 1, 0), pt(0, 0, 1)})

	// Build a second tetra sharing corners 1, 2 and 3 of `a` (a shared
	// face, hence three shared edges), via direct node reuse.
	v4 := mg.CreateVertex(pt(1, 1, 1), pt(1, 1, 1), nil, -1, -1, nil)
	n4 := mg.CreateNode(0, v4, nil, NodeLevel0, 0)

	corners := []*Node{a.Corners[1], a.Corners[2], a.Corners[3], n4}
	edgePairs := [][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}
	b := mg.CreateElement(ElementTetrahedron, VariantInner, corners, nil, edgePairs)

	shared := GetEdge(a.Corners[1], a.Corners[2])
	require.NotNil(t, shared)
	assert.Equal(t, 2, shared.ElemCount, "the edge common to both tetrahedra must be reused, not recreated")
	assert.Equal(t, 9, mg.Grid(0).Edges.Len(), "12 edges minus the three edges of the shared face")
	_ = b
}

func TestCreateMidNode_InteriorEdgeUsesLinearMidpoint(t *testing.T) {
	om := objmgr.New(0)
	mg := NewMultigrid(3, om)
	el := tetra(t, mg, [4]geom.Point{pt(0, 0, 0), pt(2, 0, 0), pt(0, 2, 0), pt(0, 0, 2)})

	n, err := mg.CreateMidNode(nil, el, 0) // edge 0-1
	require.NoError(t, err)
	assert.Equal(t, pt(1, 0, 0), n.Vertex.Coord)
	assert.Equal(t, NodeMid, n.Type)
	assert.Same(t, n, el.Edges[0].MidNode)

	// Second call must return the existing midnode, not create a new one.
	n2, err := mg.CreateMidNode(nil, el, 0)
	require.NoError(t, err)
	assert.Same(t, n, n2)
}

func TestCreateCenterNode_UsesCentroid(t *testing.T) {
	om := objmgr.New(0)
	mg := NewMultigrid(3, om)
	el := tetra(t, mg, [4]geom.Point{pt(0, 0, 0), pt(4, 0, 0), pt(0, 4, 0), pt(0, 0, 4)})

	n := mg.CreateCenterNode(el)
	assert.InDelta(t, 1.0, n.Vertex.Coord[0], 1e-9)
	assert.InDelta(t, 1.0, n.Vertex.Coord[1], 1e-9)
	assert.InDelta(t, 1.0, n.Vertex.Coord[2], 1e-9)
	assert.Equal(t, NodeCenter, n.Type)
}

type fakeBoundary struct {
	moveBoundary bool
}

func (f *fakeBoundary) CreateBndP(a, b BndP, t float64) (BndP, bool) {
	pa, pb := a.(geom.Point), b.(geom.Point)
	mid := geom.Midpoint(pa, pb)
	if f.moveBoundary {
		mid[2] += 0.5
	}
	return BndP(mid), true
}

func (f *fakeBoundary) CreateBndS(corners []BndP) (BndS, bool) { return BndS(corners), true }
func (f *fakeBoundary) CreateBndPOnSide(s BndS, u, v float64) (BndP, bool) {
	pts := s.([]BndP)
	var sum geom.Point
	for _, p := range pts {
		sum = sum.Add(p.(geom.Point))
	}
	return BndP(sum.Scale(1.0 / float64(len(pts)))), true
}
func (f *fakeBoundary) Global(p BndP) (geom.Point, error)           { return p.(geom.Point), nil }
func (f *fakeBoundary) BndPDesc(p BndP) (bool, error)               { return true, nil }
func (f *fakeBoundary) DisposeBndP(p BndP)                          {}
func (f *fakeBoundary) DisposeBndS(s BndS)                          {}
func (f *fakeBoundary) BndSDesc(s BndS) (left, right int, err error) { return 0, -1, nil }

func TestCreateMidNode_BoundaryEdgeMarksMovedWhenDeviating(t *testing.T) {
	om := objmgr.New(0)
	mg := NewMultigrid(3, om)

	a := mg.CreateVertex(pt(0, 0, 0), pt(0, 0, 0), nil, -1, -1, BndP(pt(0, 0, 0)))
	b := mg.CreateVertex(pt(2, 0, 0), pt(2, 0, 0), nil, -1, -1, BndP(pt(2, 0, 0)))
	na := mg.CreateNode(0, a, nil, NodeLevel0, 0)
	nb := mg.CreateNode(0, b, nil, NodeLevel0, 0)
	c := mg.CreateVertex(pt(0, 2, 0), pt(0, 2, 0), nil, -1, -1, nil)
	d := mg.CreateVertex(pt(0, 0, 2), pt(0, 0, 2), nil, -1, -1, nil)
	nc := mg.CreateNode(0, c, nil, NodeLevel0, 0)
	nd := mg.CreateNode(0, d, nil, NodeLevel0, 0)

	corners := []*Node{na, nb, nc, nd}
	edgePairs := [][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}
	el := mg.CreateElement(ElementTetrahedron, VariantBoundary, corners, nil, edgePairs)
	el.Edges[0].Subdomain = 0 // mark edge 0 (a-b) as boundary

	bp := &fakeBoundary{moveBoundary: true}
	n, err := mg.CreateMidNode(bp, el, 0)
	require.NoError(t, err)
	assert.True(t, n.Vertex.Moved)
	assert.True(t, n.Vertex.IsBoundary())
}

func TestDisposeElement_ReleasesEdgesAndVertices(t *testing.T) {
	om := objmgr.New(0)
	mg := NewMultigrid(3, om)
	el := tetra(t, mg, [4]geom.Point{pt(0, 0, 0), pt(1, 0, 0), pt(0, 1, 0), pt(0, 0, 1)})

	require.Equal(t, 6, mg.Grid(0).Edges.Len())
	mg.DisposeElement(el)

	assert.Equal(t, 0, mg.Grid(0).Elements.Len())
	assert.Equal(t, 0, mg.Grid(0).Edges.Len(), "edges should be released once their only element is gone")
	for _, n := range el.Corners {
		assert.Equal(t, 0, n.Vertex.NOfNode)
	}
}

func TestPriorityList_KeepsClassesContiguous(t *testing.T) {
	l := NewPriorityList[int]()
	l.Insert(objmgr.PrioHGhost, 3)
	l.Insert(objmgr.PrioMaster, 1)
	l.Insert(objmgr.PrioBorder, 2)
	l.Insert(objmgr.PrioMaster, 10)

	all := l.All()
	assert.Equal(t, []int{1, 10, 2, 3}, all)
}
