package mesh

import (
	"github.com/griddist/core/internal/objmgr"
	"github.com/griddist/core/pkg/geom"
	"github.com/griddist/core/pkg/xerrors"
)

// Object type tags used when registering headers with the object
// manager. Handlers (C6) dispatch on these.
const (
	TypeVertex int32 = iota
	TypeNode
	TypeEdge
	TypeElement
	TypeVector
)

// CreateVertex allocates a new vertex owned by father at local
// coordinate local and global coordinate coord.
func (mg *Multigrid) CreateVertex(coord, local geom.Point, father *Element, onEdge, onSide int, bndp BndP) *Vertex {
	hdr := mg.objmgr.NewHeader(mg.newGID(), TypeVertex, 0, objmgr.PrioMaster)
	return &Vertex{
		Hdr:        hdr,
		Coord:      coord,
		LocalCoord: local,
		Father:     father,
		OnEdge:     onEdge,
		OnSide:     onSide,
		BndP:       bndp,
	}
}

// disposeVertexRef decrements the vertex's node reference count. It
// does nothing else: vertices are not held in any grid list, so there
// is nothing to unlink when the count reaches zero.
func disposeVertexRef(v *Vertex) {
	if v == nil {
		return
	}
	v.NOfNode--
}

// CreateNode creates a node of the given type owning vertex, at level,
// with father as its coarser-level node, edge, or element (per
// NodeType).
func (mg *Multigrid) CreateNode(level int, vertex *Vertex, father any, ntype NodeType, subdomain int) *Node {
	hdr := mg.objmgr.NewHeader(mg.newGID(), TypeNode, level, objmgr.PrioMaster)
	n := &Node{
		Hdr:       hdr,
		Vertex:    vertex,
		Level:     level,
		Father:    father,
		Type:      ntype,
		Subdomain: subdomain,
	}
	vertex.NOfNode++
	mg.Grid(level).Nodes.Insert(objmgr.PrioMaster, n)
	return n
}

// GetEdge returns the unique edge between a and b, or nil if none
// exists, by walking a's link ring.
func GetEdge(a, b *Node) *Edge {
	var found *Edge
	a.Ring(func(l *NodeLink) {
		if found == nil && l.Other == b {
			found = l.Edge
		}
	})
	return found
}

// CreateEdge returns the existing edge between a and b, incrementing
// its element count, or allocates a new one and threads its two
// half-links into a's and b's rings.
func (mg *Multigrid) CreateEdge(level int, a, b *Node, subdomain int) *Edge {
	if e := GetEdge(a, b); e != nil {
		e.ElemCount++
		return e
	}

	hdr := mg.objmgr.NewHeader(mg.newGID(), TypeEdge, level, objmgr.PrioMaster)
	e := &Edge{Hdr: hdr, Level: level, Subdomain: subdomain, ElemCount: 1}

	linkA := &NodeLink{Edge: e, Other: b}
	linkB := &NodeLink{Edge: e, Other: a}
	a.addLink(linkA)
	b.addLink(linkB)
	e.Links = [2]*NodeLink{linkA, linkB}

	mg.Grid(level).Edges.Insert(objmgr.PrioMaster, e)
	return e
}

// LinkRemoteEdge threads e's two half-links into a's and b's rings,
// for an edge whose Hdr and endpoints are already known but whose ring
// membership has not yet been established — the C4 Update handler's
// counterpart to the linking half of CreateEdge, used when installing
// a TOTALNEW edge received from a remote processor.
func LinkRemoteEdge(e *Edge, a, b *Node) {
	linkA := &NodeLink{Edge: e, Other: b}
	linkB := &NodeLink{Edge: e, Other: a}
	a.addLink(linkA)
	b.addLink(linkB)
	e.Links = [2]*NodeLink{linkA, linkB}
}

// releaseEdge decrements an edge's element count, disposing it (and
// unlinking its half-links) once no element references it.
func (mg *Multigrid) releaseEdge(e *Edge) {
	e.ElemCount--
	if e.ElemCount > 0 {
		return
	}
	a, b := e.Endpoints()
	a.removeLink(b)
	b.removeLink(a)
	mg.Grid(e.Level).Edges.Remove(objmgr.PrioMaster, func(x *Edge) bool { return x == e })
	mg.objmgr.DisposeCouplingList(e.Hdr)
}

// edgeSubdomain derives a new edge's subdomain id from its father
// element's topology: 0 iff the edge lies on a boundary side of the
// father, matching the father edge's subdomain where one directly
// corresponds, or the mid-node's father edge for a corner/mid pair.
func edgeSubdomain(father *Element, a, b *Node) int {
	if father == nil {
		return 0
	}

	// corner/corner: look up the corresponding father edge directly.
	if a.Type != NodeMid && a.Type != NodeSide && a.Type != NodeCenter &&
		b.Type != NodeMid && b.Type != NodeSide && b.Type != NodeCenter {
		if fe := GetEdge(a, b); fe != nil {
			return fe.Subdomain
		}
	}

	// corner/mid: the mid-node's father edge carries the subdomain.
	if a.Type == NodeMid {
		if fe, ok := a.Father.(*Edge); ok {
			return fe.Subdomain
		}
	}
	if b.Type == NodeMid {
		if fe, ok := b.Father.(*Edge); ok {
			return fe.Subdomain
		}
	}

	// Fall back: boundary iff both endpoints' vertices are boundary
	// vertices, matching the "all involved father-side corners lie on
	// a boundary side" test for corner/side and mid/side pairs.
	if a.Vertex != nil && b.Vertex != nil && a.Vertex.IsBoundary() && b.Vertex.IsBoundary() {
		return 0
	}
	return father.subdomainHint()
}

// subdomainHint returns a representative subdomain id for el, used as
// a fallback when an edge's subdomain cannot be derived directly from
// father topology.
func (el *Element) subdomainHint() int {
	for _, e := range el.Edges {
		if e != nil {
			return e.Subdomain
		}
	}
	return 0
}

// CreateMidNode creates (or returns the existing) midnode of the edge
// with index edgeID in element's edge list, interpolating its vertex
// either along the boundary (if the edge lies on the boundary) or
// linearly between the edge's endpoint coordinates.
func (mg *Multigrid) CreateMidNode(bp BoundaryProvider, element *Element, edgeID int) (*Node, error) {
	edge := element.Edges[edgeID]
	if edge.MidNode != nil {
		return edge.MidNode, nil
	}

	a, b := edge.Endpoints()
	localMid := geom.Midpoint(a.Vertex.LocalCoord, b.Vertex.LocalCoord)

	var coord geom.Point
	var bndp BndP
	moved := false

	onBoundary := edge.Subdomain == 0 && a.Vertex.IsBoundary() && b.Vertex.IsBoundary()
	if onBoundary && bp != nil {
		p, ok := bp.CreateBndP(a.Vertex.BndP, b.Vertex.BndP, 0.5)
		if ok {
			g, err := bp.Global(p)
			if err != nil {
				return nil, xerrors.Wrap(xerrors.CodeInvariant, "boundary midpoint evaluation failed", err)
			}
			coord = g
			bndp = p
			linear := geom.Midpoint(a.Vertex.Coord, b.Vertex.Coord)
			if !geom.WithinTolerance(g, linear, mg.Dim) {
				moved = true
				localMid = geom.GlobalToLocal(a.Vertex.Coord, b.Vertex.Coord, a.Vertex.LocalCoord, b.Vertex.LocalCoord, g, mg.Dim)
			}
		}
	}
	if bndp == nil {
		coord = geom.Midpoint(a.Vertex.Coord, b.Vertex.Coord)
	}

	v := mg.CreateVertex(coord, localMid, element, edgeID, -1, bndp)
	v.Moved = moved

	n := mg.CreateNode(element.Level, v, edge, NodeMid, edge.Subdomain)
	edge.MidNode = n
	return n, nil
}

// CreateSideNode creates the side-centroid node of a 3D element side:
// the side's corners are averaged with equal weights, and a boundary
// side is sampled at side parameters u = v = 1/3 for a triangular side,
// 1/2 for a quad side.
func (mg *Multigrid) CreateSideNode(bp BoundaryProvider, element *Element, side int, sideCorners []*Node) (*Node, error) {
	if mg.Dim != 3 {
		return nil, xerrors.New(xerrors.CodeUsage, "CreateSideNode requires a 3D mesh")
	}

	weights := geom.UniformWeights(len(sideCorners))
	u := geom.SideCentroidWeight(len(sideCorners))

	localCorners := make([]geom.Point, len(sideCorners))
	for i, n := range sideCorners {
		localCorners[i] = n.Vertex.LocalCoord
	}
	localCentroid := geom.LocalToGlobal(localCorners, weights, mg.Dim)

	var coord geom.Point
	var bndp BndP

	bs := element.Sides[side]
	if bs != nil && bp != nil {
		p, ok := bp.CreateBndPOnSide(bs.Desc, u, u)
		if ok {
			g, err := bp.Global(p)
			if err == nil {
				coord = g
				bndp = p
			}
		}
	}
	if bndp == nil {
		globalCorners := make([]geom.Point, len(sideCorners))
		for i, n := range sideCorners {
			globalCorners[i] = n.Vertex.Coord
		}
		coord = geom.LocalToGlobal(globalCorners, weights, mg.Dim)
	}

	v := mg.CreateVertex(coord, localCentroid, element, -1, side, bndp)
	subdomain := 0
	if bs != nil {
		subdomain = bs.Subdomain
	}
	return mg.CreateNode(element.Level, v, element, NodeSide, subdomain), nil
}

// CreateCenterNode creates the interior centroid node of an element,
// transformed from local element-centroid coordinates to global.
func (mg *Multigrid) CreateCenterNode(element *Element) *Node {
	localCorners := make([]geom.Point, len(element.Corners))
	globalCorners := make([]geom.Point, len(element.Corners))
	for i, n := range element.Corners {
		localCorners[i] = n.Vertex.LocalCoord
		globalCorners[i] = n.Vertex.Coord
	}
	weights := geom.UniformWeights(len(element.Corners))
	local := geom.LocalToGlobal(localCorners, weights, mg.Dim)
	global := geom.LocalToGlobal(globalCorners, weights, mg.Dim)

	v := mg.CreateVertex(global, local, element, -1, -1, nil)
	return mg.CreateNode(element.Level, v, element, NodeCenter, 0)
}

// CreateElement allocates a new element of the given tag and variant
// with the given corner nodes, links it under father as a Master
// object at father's level+1 (or level 0 if father is nil), and
// creates (or reuses) its reference edges.
func (mg *Multigrid) CreateElement(tag ElementTag, variant ElementVariant, corners []*Node, father *Element, edgePairs [][2]int) *Element {
	level := 0
	if father != nil {
		level = father.Level + 1
	}

	hdr := mg.objmgr.NewHeader(mg.newGID(), TypeElement, level, objmgr.PrioMaster)
	el := &Element{
		Hdr:         hdr,
		Tag:         tag,
		Variant:     variant,
		Level:       level,
		LocalID:     mg.newLocalID(),
		Corners:     corners,
		NewEl:       true,
		RefineClass: ClassRed,
		Father:      father,
	}

	if father != nil {
		el.NextSibling = father.SonsMaster
		father.SonsMaster = el
		father.NSons++
	}

	el.Edges = make([]*Edge, len(edgePairs))
	for i, pair := range edgePairs {
		a, b := corners[pair[0]], corners[pair[1]]
		sub := edgeSubdomain(father, a, b)
		el.Edges[i] = mg.CreateEdge(level, a, b, sub)
	}

	mg.Grid(level).Elements.Insert(objmgr.PrioMaster, el)
	return el
}

// DisposeElement releases el's side descriptors, releases its edges
// (destroying those whose element count reaches zero), and releases
// its corner nodes' vertex references.
func (mg *Multigrid) DisposeElement(el *Element) {
	for _, e := range el.Edges {
		if e != nil {
			mg.releaseEdge(e)
		}
	}
	el.Sides = nil

	for _, n := range el.Corners {
		if n != nil && n.Vertex != nil {
			disposeVertexRef(n.Vertex)
		}
	}

	if el.Father != nil {
		removeSibling(&el.Father.SonsMaster, el)
		removeSibling(&el.Father.SonsGhost, el)
		el.Father.NSons--
	}

	mg.Grid(el.Level).Elements.Remove(objmgr.PrioMaster, func(x *Element) bool { return x == el })
	mg.objmgr.DisposeCouplingList(el.Hdr)
}

func removeSibling(head **Element, target *Element) {
	if *head == target {
		*head = target.NextSibling
		return
	}
	for cur := *head; cur != nil; cur = cur.NextSibling {
		if cur.NextSibling == target {
			cur.NextSibling = target.NextSibling
			return
		}
	}
}
