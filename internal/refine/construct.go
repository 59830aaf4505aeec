package refine

import (
	"github.com/griddist/core/internal/mesh"
	"github.com/griddist/core/pkg/xerrors"
)

// buildContext assembles el's refinement context: its corner nodes at
// indices [0, nCorners), followed by the midnode of each of el.Edges
// in edge order. A rule that needs a center node gets one appended as
// the final entry (unused by the catalog's current Red/Copy rules,
// kept for a future anisotropic or hex rule).
func (e *Engine) buildContext(el *mesh.Element, rule Rule) ([]*mesh.Node, error) {
	nCorners := len(el.Corners)
	ctx := make([]*mesh.Node, nCorners, nCorners+len(el.Edges)+1)
	copy(ctx, el.Corners)

	for i := range el.Edges {
		n, err := e.mg.CreateMidNode(e.boundary, el, i)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvariant, "refine: creating edge midnode failed", err)
		}
		ctx = append(ctx, n)
	}

	if rule.NeedsCenter {
		ctx = append(ctx, e.mg.CreateCenterNode(el))
	}

	return ctx, nil
}

// facesOfContextIndex returns which of a father's reference faces a
// context index (built by buildContext) lies on: a corner lies on
// every face but the one opposite it; an edge midnode lies on every
// face whose edge list contains that edge.
func facesOfContextIndex(topo topology, nCorners, idx int) []int {
	if idx < nCorners {
		var faces []int
		for f := range topo.sideEdges {
			if f != idx {
				faces = append(faces, f)
			}
		}
		return faces
	}
	edgeID := idx - nCorners
	var faces []int
	for f, edges := range topo.sideEdges {
		for _, e := range edges {
			if e == edgeID {
				faces = append(faces, f)
				break
			}
		}
	}
	return faces
}

func intersect(a, b []int) []int {
	var out []int
	for _, x := range a {
		for _, y := range b {
			if x == y {
				out = append(out, x)
				break
			}
		}
	}
	return out
}

// inheritedBoundaryFace returns the single father reference-face index
// that every context index in faceCtx lies on, provided there is
// exactly one and father actually has a boundary descriptor there.
func inheritedBoundaryFace(father *mesh.Element, topo topology, faceCtx []int) (int, bool) {
	if len(faceCtx) == 0 {
		return 0, false
	}
	nCorners := len(father.Corners)
	common := facesOfContextIndex(topo, nCorners, faceCtx[0])
	for _, idx := range faceCtx[1:] {
		common = intersect(common, facesOfContextIndex(topo, nCorners, idx))
	}
	if len(common) != 1 {
		return 0, false
	}
	f := common[0]
	if f >= len(father.Sides) || father.Sides[f] == nil {
		return 0, false
	}
	return f, true
}

// attachSonSides gives son a BoundarySide on every one of its own
// faces whose context indices lie entirely on one of father's boundary
// faces, inheriting that face's descriptor and subdomain. This is an
// approximation: the son face shares father's BndP handle rather than
// a recomputed sub-parametrization, which is adequate for a son's own
// later midnode/side-node boundary evaluation (that only needs
// IsBoundary and Desc, not an exact sub-face boundary projection).
func (e *Engine) attachSonSides(father, son *mesh.Element, topo topology, sonCtx []int) {
	sonTopo, ok := topologyFor(son.Tag)
	if !ok {
		return
	}
	son.Sides = make([]*mesh.BoundarySide, len(sonTopo.sideEdges))

	for sf := range sonTopo.sideEdges {
		var faceCtx []int
		for i, idx := range sonCtx {
			if i != sf {
				faceCtx = append(faceCtx, idx)
			}
		}
		if f, ok := inheritedBoundaryFace(father, topo, faceCtx); ok {
			bs := father.Sides[f]
			son.Sides[sf] = &mesh.BoundarySide{Desc: bs.Desc, Subdomain: bs.Subdomain, Corners: bs.Corners}
			son.Variant = mesh.VariantBoundary
		}
	}
}

// constructSons builds rule's sons of el: it collects el's refinement
// context (corner-son-nodes and edge midnodes), creates each son from
// its context indices, inherits a boundary face descriptor for any son
// face lying entirely on one of el's own boundary faces, and links
// every son under el via mesh.CreateElement (spec §4.3 steps 4-5).
func (e *Engine) constructSons(el *mesh.Element, rule Rule) ([]*mesh.Element, error) {
	if rule.ID == RuleCopy || rule.ID == RuleNone || len(rule.Sons) == 0 {
		return nil, nil
	}

	topo, ok := topologyFor(el.Tag)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvariant, "refine: no reference topology for element tag")
	}

	ctx, err := e.buildContext(el, rule)
	if err != nil {
		return nil, err
	}

	sons := make([]*mesh.Element, 0, len(rule.Sons))
	for _, spec := range rule.Sons {
		corners := make([]*mesh.Node, len(spec.Corners))
		for i, idx := range spec.Corners {
			if idx < 0 || idx >= len(ctx) {
				return sons, xerrors.New(xerrors.CodeInvariant, "refine: son corner index out of range of its father's context")
			}
			corners[i] = ctx[idx]
		}

		edgePairs := topo.edgeCorners
		if sonTopo, ok := topologyFor(spec.Tag); ok {
			edgePairs = sonTopo.edgeCorners
		}

		son := e.mg.CreateElement(spec.Tag, mesh.VariantInner, corners, el, edgePairs)
		// A freshly split son is a leaf until something marks it again:
		// no refinement of its own yet.
		son.RefineClass = mesh.ClassYellow

		if el.IsBoundary() {
			e.attachSonSides(el, son, topo, spec.Corners)
		}

		sons = append(sons, son)
	}

	return sons, nil
}
