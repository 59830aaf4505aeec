package refine

import (
	"github.com/griddist/core/internal/mesh"
	"github.com/griddist/core/internal/objmgr"
	"github.com/griddist/core/pkg/collections"
)

// findEdgeIndex returns el's edge index between nodes a and b, in
// either order, or false if el has no such edge.
func findEdgeIndex(el *mesh.Element, a, b *mesh.Node) (int, bool) {
	for i, e := range el.Edges {
		if e == nil {
			continue
		}
		x, y := e.Endpoints()
		if (x == a && y == b) || (x == b && y == a) {
			return i, true
		}
	}
	return 0, false
}

// upgradeMarkClass recomputes el's required mark-class from its
// current SidePattern and, if that raises its class, applies the
// Red rule (this package's only geometric rule, used as a
// conservative superset for a partial/green pattern too — see
// DESIGN.md) and reports whether el needs to propagate further.
func (e *Engine) upgradeMarkClass(el *mesh.Element) bool {
	topo, ok := topologyFor(el.Tag)
	if !ok || el.SidePattern == 0 {
		return false
	}

	full := uint32(1)<<uint(len(topo.edgeCorners)) - 1
	wantClass := mesh.ClassGreen
	if el.SidePattern == full {
		wantClass = mesh.ClassRed
	}

	if el.MarkClass >= wantClass && el.Mark == RuleRed {
		return false
	}

	el.Mark = RuleRed
	el.MarkClass = wantClass
	return true
}

// propagateTo pushes el's SidePattern across every side it shares with
// a face-neighbour, upgrading the neighbour's own pattern (and, if
// that raises its required class, its mark) and enqueuing it for its
// own propagation pass. Propagation only reaches face-adjacent
// elements (el.Neighbor), not the full edge star, since the mesh model
// does not expose a direct edge-to-elements index; for the two tags
// this package's catalog refines geometrically (tetrahedra sharing a
// full face, triangles sharing a full edge) this still reaches every
// element that actually shares the marked edge.
func (e *Engine) propagateTo(el *mesh.Element, enqueue func(*mesh.Element)) {
	topo, ok := topologyFor(el.Tag)
	if !ok {
		return
	}

	for side, nb := range el.Neighbor {
		if nb == nil || side >= len(topo.sideEdges) {
			continue
		}
		for _, edgeIdx := range topo.sideEdges[side] {
			if el.SidePattern&(uint32(1)<<uint(edgeIdx)) == 0 {
				continue
			}
			if edgeIdx >= len(el.Edges) || el.Edges[edgeIdx] == nil {
				continue
			}
			a, b := el.Edges[edgeIdx].Endpoints()

			nbEdgeIdx, found := findEdgeIndex(nb, a, b)
			if !found {
				continue
			}
			bit := uint32(1) << uint(nbEdgeIdx)
			if nb.SidePattern&bit != 0 {
				continue
			}
			nb.SidePattern |= bit
			if e.upgradeMarkClass(nb) {
				enqueue(nb)
			}
		}
	}
}

// edgePatternOf returns the full edge-pattern bitmask (every edge set)
// for a freshly marked element, the starting pattern for a Red-class
// mark; a Copy-class mark (Mark set but yellow) contributes no pattern
// bits since it splits nothing.
func edgePatternOf(el *mesh.Element) uint32 {
	if el.MarkClass == mesh.ClassYellow {
		return 0
	}
	topo, ok := topologyFor(el.Tag)
	if !ok {
		return 0
	}
	return uint32(1)<<uint(len(topo.edgeCorners)) - 1
}

func classSnapshot(elements []*mesh.Element) []mesh.RefineClass {
	out := make([]mesh.RefineClass, len(elements))
	for i, el := range elements {
		out[i] = el.MarkClass
	}
	return out
}

func classesChanged(before []mesh.RefineClass, elements []*mesh.Element) bool {
	for i, el := range elements {
		if el.MarkClass != before[i] {
			return true
		}
	}
	return false
}

// closure propagates every marked element's edge pattern outward to
// its face-neighbours until no element's required mark-class can rise
// any further, exchanging side-pattern/mark-class across interface
// elements after each local fixpoint (spec §4.3 step 2). SidePattern
// only ever gains bits and MarkClass only ever rises (Yellow < Green <
// Red), both over a finite state space, so the loop terminates.
func (e *Engine) closure(grid *mesh.Grid) error {
	for _, el := range grid.Elements.All() {
		if el.Mark != 0 {
			el.SidePattern |= edgePatternOf(el)
		}
	}

	queue := collections.NewQueue[*mesh.Element](grid.Elements.Len())
	queued := collections.NewBitset(grid.Elements.Len())
	enqueue := func(el *mesh.Element) {
		if !queued.Test(el.LocalID) {
			queued.Set(el.LocalID)
			queue.Enqueue(el)
		}
	}
	for _, el := range grid.Elements.All() {
		if el.MarkClass != mesh.ClassNone {
			enqueue(el)
		}
	}

	for {
		for !queue.IsEmpty() {
			el, _ := queue.Dequeue()
			queued.Clear(el.LocalID)
			e.propagateTo(el, enqueue)
		}

		border := grid.Elements.ByPriority(objmgr.PrioBorder)
		if e.exchange == nil || len(border) == 0 {
			break
		}

		before := classSnapshot(border)
		e.exchange(border)
		if !classesChanged(before, border) {
			break
		}
		for _, el := range border {
			enqueue(el)
		}
	}

	return nil
}
