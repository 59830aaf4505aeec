package refine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/griddist/core/internal/mesh"
	"github.com/griddist/core/internal/objmgr"
	"github.com/griddist/core/pkg/geom"
)

func pt(x, y, z float64) geom.Point { return geom.Point{x, y, z} }

func tetra(t *testing.T, mg *mesh.Multigrid, coords [4]geom.Point) *mesh.Element {
	t.Helper()
	corners := make([]*mesh.Node, 4)
	for i, c := range coords {
		v := mg.CreateVertex(c, c, nil, -1, -1, nil)
		corners[i] = mg.CreateNode(0, v, nil, mesh.NodeLevel0, 0)
	}
	edgePairs := [][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}
	return mg.CreateElement(mesh.ElementTetrahedron, mesh.VariantInner, corners, nil, edgePairs)
}

func newEngine(mg *mesh.Multigrid) *Engine {
	return NewEngine(mg, Options{})
}

func TestAdaptStep_RedRefinesTetrahedronIntoEightSons(t *testing.T) {
	om := objmgr.New(0)
	mg := mesh.NewMultigrid(3, om)
	father := tetra(t, mg, [4]geom.Point{pt(0, 0, 0), pt(2, 0, 0), pt(0, 2, 0), pt(0, 0, 2)})

	e := newEngine(mg)
	e.Mark(father, RuleRed)
	assert.Equal(t, mesh.ClassRed, father.MarkClass)

	stats, err := e.AdaptStep(0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ElementsRefined)
	assert.Equal(t, 8, stats.SonsCreated)

	var sons []*mesh.Element
	father.Sons(func(s *mesh.Element) { sons = append(sons, s) })
	assert.Len(t, sons, 8)
	for _, s := range sons {
		assert.Same(t, father, s.Father)
		assert.Len(t, s.Corners, 4)
	}

	assert.Equal(t, RuleRed, father.Refine)
	assert.Equal(t, mesh.ClassRed, father.RefineClass)
	assert.Equal(t, 0, father.Mark, "Mark resets once an adapt step commits")

	markCount, realCount, _, predNew1, _, ok := e.Info().Last()
	require.True(t, ok)
	assert.Equal(t, 1, markCount)
	assert.Equal(t, 1, realCount)
	assert.Equal(t, 8, predNew1)
}

func TestAdaptStep_RedRefinesTriangleIntoFourSons(t *testing.T) {
	om := objmgr.New(0)
	mg := mesh.NewMultigrid(2, om)

	corners := make([]*mesh.Node, 3)
	for i, c := range []geom.Point{pt(0, 0, 0), pt(2, 0, 0), pt(0, 2, 0)} {
		v := mg.CreateVertex(c, c, nil, -1, -1, nil)
		corners[i] = mg.CreateNode(0, v, nil, mesh.NodeLevel0, 0)
	}
	edgePairs := [][2]int{{1, 2}, {0, 2}, {0, 1}}
	father := mg.CreateElement(mesh.ElementTriangle, mesh.VariantInner, corners, nil, edgePairs)

	e := newEngine(mg)
	e.Mark(father, RuleRed)

	stats, err := e.AdaptStep(0)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.SonsCreated)

	var sons []*mesh.Element
	father.Sons(func(s *mesh.Element) { sons = append(sons, s) })
	require.Len(t, sons, 4)
	for _, s := range sons {
		assert.Len(t, s.Corners, 3)
	}
}

func TestClosure_PropagatesMarkAcrossSharedFace(t *testing.T) {
	om := objmgr.New(0)
	mg := mesh.NewMultigrid(3, om)

	a := tetra(t, mg, [4]geom.Point{pt(0, 0, 0), pt(1, 0, 0), pt(0, 1, 0), pt(0, 0, 1)})

	// b shares a's face opposite corner 0 (corners 1,2,3) and adds one
	// new apex, mirroring the shared-edge reuse fixture in mesh's own
	// construction tests.
	v4 := mg.CreateVertex(pt(1, 1, 1), pt(1, 1, 1), nil, -1, -1, nil)
	n4 := mg.CreateNode(0, v4, nil, mesh.NodeLevel0, 0)
	bCorners := []*mesh.Node{a.Corners[1], a.Corners[2], a.Corners[3], n4}
	edgePairs := [][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}
	b := mg.CreateElement(mesh.ElementTetrahedron, mesh.VariantInner, bCorners, nil, edgePairs)

	a.Neighbor = make([]*mesh.Element, 4)
	b.Neighbor = make([]*mesh.Element, 4)
	a.Neighbor[0] = b // face opposite a's corner 0 (a's corners 1,2,3) borders b
	b.Neighbor[3] = a // that same face is opposite b's corner 3 (n4) in b's own indexing

	e := newEngine(mg)
	e.Mark(a, RuleRed)
	assert.Equal(t, mesh.ClassNone, b.MarkClass)

	require.NoError(t, e.closure(mg.Grid(0)))

	assert.NotEqual(t, mesh.ClassNone, b.MarkClass, "closure must raise b's mark-class once a's shared face is fully marked")
	assert.Equal(t, RuleRed, b.Mark)
}

func TestAdaptStep_CoarsenRemovesAllYellowSons(t *testing.T) {
	om := objmgr.New(0)
	mg := mesh.NewMultigrid(3, om)
	father := tetra(t, mg, [4]geom.Point{pt(0, 0, 0), pt(2, 0, 0), pt(0, 2, 0), pt(0, 0, 2)})

	e := newEngine(mg)
	e.Mark(father, RuleRed)
	_, err := e.AdaptStep(0)
	require.NoError(t, err)
	require.Equal(t, 9, mg.Grid(0).Elements.Len()+mg.Grid(1).Elements.Len(), "father plus 8 sons")

	e.MarkCoarsen(father)
	_, err = e.AdaptStep(0)
	require.NoError(t, err)

	assert.Equal(t, 1, mg.Grid(0).Elements.Len()+mg.Grid(1).Elements.Len(), "coarsening must remove every son, leaving only the father")
	assert.Equal(t, 0, father.NSons)
	assert.False(t, father.Coarsen)
}

// failingCatalog always reports a Red rule whose second son references
// a context index past the end of a tetrahedron's context, forcing
// constructSons to fail after its first son is already created — the
// fixture AdaptStep's no-partial-commit guarantee is tested against.
type failingCatalog struct{}

func (failingCatalog) Rule(tag mesh.ElementTag, ruleID int) (Rule, bool) {
	if ruleID != RuleRed {
		return StandardCatalog{}.Rule(tag, ruleID)
	}
	return Rule{
		ID:    RuleRed,
		Class: mesh.ClassRed,
		Sons: []SonSpec{
			{Tag: mesh.ElementTetrahedron, Corners: []int{0, 4, 5, 6}},
			{Tag: mesh.ElementTetrahedron, Corners: []int{0, 1, 2, 999}},
		},
	}, true
}

func TestAdaptStep_AbortsWithoutPartialCommitOnRuleFailure(t *testing.T) {
	om := objmgr.New(0)
	mg := mesh.NewMultigrid(3, om)
	father := tetra(t, mg, [4]geom.Point{pt(0, 0, 0), pt(2, 0, 0), pt(0, 2, 0), pt(0, 0, 2)})

	e := NewEngine(mg, Options{Catalog: failingCatalog{}})
	e.Mark(father, RuleRed)

	_, err := e.AdaptStep(0)
	require.Error(t, err)

	assert.Equal(t, 1, mg.Grid(0).Elements.Len()+mg.Grid(1).Elements.Len(), "a failed step must leave only the original father behind")
	assert.Equal(t, 0, father.NSons)
}
