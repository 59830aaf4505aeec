package iface

import (
	"github.com/griddist/core/internal/mesh"
	"github.com/griddist/core/internal/objmgr"
)

// Exchanger takes the maximum of a cross-processor quantity over
// border-node couplings. PropagateNodeClasses/PropagateNextNodeClasses
// call it once per sweep level; passing nil skips the cross-processor
// step entirely (single-processor grids, or unit tests).
type Exchanger func(borderNodes []*mesh.Node)

// SeedNodeClasses raises every corner node of element to class 3, the
// starting point for PropagateNodeClasses.
func SeedNodeClasses(element *mesh.Element) {
	for _, n := range element.Corners {
		n.Class = 3
	}
}

type classAccessor struct {
	get func(*mesh.Node) int
	set func(*mesh.Node, int)
}

var classFieldAccessor = classAccessor{
	get: func(n *mesh.Node) int { return n.Class },
	set: func(n *mesh.Node, v int) { n.Class = v },
}

var nextClassFieldAccessor = classAccessor{
	get: func(n *mesh.Node) int { return n.NextClass },
	set: func(n *mesh.Node, v int) { n.NextClass = v },
}

// sweep raises, for every element whose max corner class equals k, the
// class of any corner node below k-1 up to k-1; run for k=3 then k=2,
// interleaved with a border-node cross-processor exchange.
func sweep(grid *mesh.Grid, acc classAccessor, exchange Exchanger) {
	for k := 3; k >= 2; k-- {
		for _, el := range grid.Elements.All() {
			maxClass := 0
			for _, n := range el.Corners {
				if c := acc.get(n); c > maxClass {
					maxClass = c
				}
			}
			if maxClass != k {
				continue
			}
			for _, n := range el.Corners {
				if acc.get(n) < k-1 {
					acc.set(n, k-1)
				}
			}
		}

		if exchange != nil {
			exchange(grid.Nodes.ByPriority(objmgr.PrioBorder))
		}
	}
}

// PropagateNodeClasses sweeps grid, raising each node's Class field
// per the k=3,2 pattern above.
func PropagateNodeClasses(grid *mesh.Grid, exchange Exchanger) {
	sweep(grid, classFieldAccessor, exchange)
}

// PropagateNextNodeClasses performs the analogous sweep over the
// NextClass field, used to propagate classes for the next-finer level.
func PropagateNextNodeClasses(grid *mesh.Grid, exchange Exchanger) {
	sweep(grid, nextClassFieldAccessor, exchange)
}
