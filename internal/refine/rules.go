package refine

import "github.com/griddist/core/internal/mesh"

// Rule ids. 0 is reserved to mean "no refinement" (mesh.ClassYellow);
// every other id is resolved through a RuleCatalog.
const (
	RuleNone int = iota
	RuleCopy
	RuleRed
)

// SonSpec describes one son of a rule: its tag (almost always the
// father's own tag) and which positions of the father's refinement
// context its corners come from. Context layout is
// [corners..., edge-midnodes in edge order, center-node (only when the
// rule NeedsCenter)]; no side-nodes are placed in it — see buildContext.
type SonSpec struct {
	Tag     mesh.ElementTag
	Corners []int
}

// Rule is one catalog entry: the mark-class it represents, which edges
// its pattern touches (closure propagates marks along these), and how
// to build its sons from the father's context.
type Rule struct {
	ID          int
	Class       mesh.RefineClass
	EdgePattern uint32
	NeedsCenter bool
	Anisotropic bool
	// Special marks a rule whose sons include an interior tetrahedron
	// or pyramid with a side-type corner, whose side identity cannot be
	// read off the corner pattern alone (hex-rules 17/22 in the
	// original catalog) — GetSideIDFromScratchSpecialRule resolves it.
	Special bool
	Sons    []SonSpec
}

// RuleCatalog resolves (tag, ruleID) to a Rule.
type RuleCatalog interface {
	Rule(tag mesh.ElementTag, ruleID int) (Rule, bool)
}

// topology is the per-tag reference-element connectivity refine needs:
// which two corners bound each edge, and which edges bound each side.
// The original's compiled per-type rule tables (ugm.cc, gated behind
// DUNE_UGGRID_DUNE_UGGRID_TET_RULESET) are generated data not present
// in this build's source pack; these tables instead encode the
// reference-element conventions refine.h's PATTERN/SIDEPATTERN bit
// layout assumes, sufficient to drive closure and Bey-style red
// refinement for the two tags StandardCatalog implements fully.
type topology struct {
	edgeCorners [][2]int
	sideEdges   [][]int
}

var triangleTopology = topology{
	edgeCorners: [][2]int{{1, 2}, {0, 2}, {0, 1}},
	sideEdges:   [][]int{{0}, {1}, {2}},
}

var tetrahedronTopology = topology{
	edgeCorners: [][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}},
	sideEdges:   [][]int{{3, 4, 5}, {1, 2, 5}, {0, 2, 4}, {0, 1, 3}},
}

func topologyFor(tag mesh.ElementTag) (topology, bool) {
	switch tag {
	case mesh.ElementTriangle:
		return triangleTopology, true
	case mesh.ElementTetrahedron:
		return tetrahedronTopology, true
	default:
		return topology{}, false
	}
}

// StandardCatalog provides a Copy (no-op) rule for every tag and a
// full geometric Red rule for the two tags with a reference topology
// above. Quad/Prism/Pyramid/Hexahedron expose only Copy: a faithful
// green/red geometric catalog for those needs per-type rule tables this
// build has no source for (see DESIGN.md). The pluggable RuleCatalog
// interface lets a caller register a richer catalog without touching
// closure or son construction.
type StandardCatalog struct{}

func (StandardCatalog) Rule(tag mesh.ElementTag, ruleID int) (Rule, bool) {
	switch ruleID {
	case RuleNone:
		return Rule{ID: RuleNone, Class: mesh.ClassNone}, true
	case RuleCopy:
		return Rule{ID: RuleCopy, Class: mesh.ClassYellow}, true
	case RuleRed:
		switch tag {
		case mesh.ElementTriangle:
			return triangleRedRule, true
		case mesh.ElementTetrahedron:
			return tetrahedronRedRule, true
		default:
			return Rule{}, false
		}
	default:
		return Rule{}, false
	}
}

var triangleRedRule = Rule{
	ID:          RuleRed,
	Class:       mesh.ClassRed,
	EdgePattern: 0b111,
	Sons: []SonSpec{
		// context: 0,1,2 = corners; 3,4,5 = midnodes of edges 0,1,2.
		{Tag: mesh.ElementTriangle, Corners: []int{0, 5, 4}},
		{Tag: mesh.ElementTriangle, Corners: []int{1, 3, 5}},
		{Tag: mesh.ElementTriangle, Corners: []int{2, 4, 3}},
		{Tag: mesh.ElementTriangle, Corners: []int{3, 4, 5}},
	},
}

// tetrahedronRedRule is Bey's red refinement of the tetrahedron: four
// corner tets plus the octahedron formed by the six edge midpoints
// split into four tets across the diagonal joining the midpoints of
// the two opposite edges (0,1) and (2,3).
var tetrahedronRedRule = Rule{
	ID:          RuleRed,
	Class:       mesh.ClassRed,
	EdgePattern: 0b111111,
	Sons: []SonSpec{
		// context: 0..3 = corners; 4..9 = midnodes of edges 0..5.
		{Tag: mesh.ElementTetrahedron, Corners: []int{0, 4, 5, 6}},
		{Tag: mesh.ElementTetrahedron, Corners: []int{1, 4, 7, 8}},
		{Tag: mesh.ElementTetrahedron, Corners: []int{2, 5, 7, 9}},
		{Tag: mesh.ElementTetrahedron, Corners: []int{3, 6, 8, 9}},
		{Tag: mesh.ElementTetrahedron, Corners: []int{4, 9, 5, 6}},
		{Tag: mesh.ElementTetrahedron, Corners: []int{4, 9, 6, 8}},
		{Tag: mesh.ElementTetrahedron, Corners: []int{4, 9, 8, 7}},
		{Tag: mesh.ElementTetrahedron, Corners: []int{4, 9, 7, 5}},
	},
}

// sideCorners returns the indices, into el.Corners, of the corners
// bounding the given side, using the reference convention both
// topology tables follow: side i sits opposite corner i, so its
// corners are every other corner index.
func sideCorners(tag mesh.ElementTag, nCorners, side int) []int {
	_ = tag
	var out []int
	for i := 0; i < nCorners; i++ {
		if i != side {
			out = append(out, i)
		}
	}
	return out
}

// GetSideIDFromScratchSpecialRule resolves the side identity of a son
// element whose corner pattern alone is ambiguous: exactly one corner
// on that side is a side-centroid node (mesh.NodeSide) and the rest
// are ordinary corner nodes (spec §8, boundary behaviour, "special
// hex-rule 22"). It walks to the neighbour across the ambiguous side
// and recurses into that neighbour's own resolved side pattern,
// terminating because each walk strictly reduces the number of
// side-type corners left to resolve (at most two such specials occur
// per father).
func GetSideIDFromScratchSpecialRule(el *mesh.Element, side int) (int, bool) {
	if side < 0 || side >= len(el.Sides) {
		return 0, false
	}
	if !isSpecialSidePattern(el, side) {
		return side, true
	}
	nb := el.Neighbor
	if side >= len(nb) || nb[side] == nil {
		return 0, false
	}
	neighbour := nb[side]
	for s, back := range neighbour.Neighbor {
		if back == el {
			return GetSideIDFromScratchSpecialRule(neighbour, s)
		}
	}
	return 0, false
}

// isSpecialSidePattern reports whether side's corner set matches "one
// side-type corner, the rest ordinary corners" — the ambiguous pattern
// GetSideIDFromScratchSpecialRule exists to resolve.
func isSpecialSidePattern(el *mesh.Element, side int) bool {
	idx := sideCorners(el.Tag, len(el.Corners), side)
	if len(idx) < 2 {
		return false
	}
	sideTypeCorners := 0
	for _, i := range idx {
		if i >= len(el.Corners) || el.Corners[i] == nil {
			continue
		}
		if el.Corners[i].Type == mesh.NodeSide {
			sideTypeCorners++
		}
	}
	return sideTypeCorners == 1
}
