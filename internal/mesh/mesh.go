// Package mesh implements the mesh object model (C1): vertices, nodes,
// edges, elements, and algebraic vectors/matrices layered on top of C3
// object headers, organized into per-level grid lists keyed by
// priority class.
package mesh

import (
	"github.com/griddist/core/internal/objmgr"
	"github.com/griddist/core/pkg/geom"
)

// NodeType classifies how a node came to exist.
type NodeType int

const (
	// NodeLevel0 is an original, unrefined input node.
	NodeLevel0 NodeType = iota
	// NodeCorner is a son of a corner node on a coarser level.
	NodeCorner
	// NodeMid is the midnode of a refined edge.
	NodeMid
	// NodeSide is the centroid node of a refined 3D non-triangular side.
	NodeSide
	// NodeCenter is the centroid node of a refined element.
	NodeCenter
)

// RefineClass is the rule-family tag an element or element mark carries:
// no refinement, a conforming (green) closure rule, or regular (red)
// refinement. It is shared between an element's mark-class and its
// actually-applied refine-class.
type RefineClass int

const (
	// ClassNone means no refinement rule applies.
	ClassNone RefineClass = iota
	// ClassYellow marks an element with no refinement of its own.
	ClassYellow
	// ClassGreen marks a conforming-closure refinement.
	ClassGreen
	// ClassRed marks a regular refinement.
	ClassRed
)

// ElementTag identifies an element's reference shape.
type ElementTag int

const (
	ElementTetrahedron ElementTag = iota
	ElementPyramid
	ElementPrism
	ElementHexahedron
	ElementTriangle
	ElementQuad
)

// ElementVariant distinguishes the inner/boundary in-place variant of
// an element object type; the header offset is identical for both so
// XFERCOPYMANIP may flip the variant without moving the header.
type ElementVariant int

const (
	VariantInner ElementVariant = iota
	VariantBoundary
)

// BndP is an opaque boundary-point descriptor handed back by a
// BoundaryProvider; the core never interprets its contents.
type BndP any

// BndS is an opaque boundary-side descriptor.
type BndS any

// BoundaryProvider is the geometric domain/BVP collaborator consumed by
// C1 (spec §6): only these operations are required from it.
type BoundaryProvider interface {
	// CreateBndP interpolates a boundary point along the edge between a
	// and b at parameter t (0.5 for a midpoint). Returns ok=false if a
	// and b do not share a boundary edge.
	CreateBndP(a, b BndP, t float64) (p BndP, ok bool)
	// CreateBndS builds a boundary-side descriptor from n boundary
	// points (the side's corners).
	CreateBndS(corners []BndP) (BndS, bool)
	// CreateBndPOnSide interpolates a boundary point on side s at
	// local coordinate (u,v) — the side-centroid equivalent of
	// CreateBndP for an edge midpoint.
	CreateBndPOnSide(s BndS, u, v float64) (BndP, bool)
	// Global evaluates the global coordinates of a boundary point.
	Global(p BndP) (geom.Point, error)
	// BndPDesc reports whether the boundary point is allowed to move.
	BndPDesc(p BndP) (movable bool, err error)
	DisposeBndP(p BndP)
	DisposeBndS(s BndS)
	// BndSDesc returns the subdomain ids on both sides of a boundary side.
	BndSDesc(s BndS) (left, right int, err error)
}

// Vertex is a mesh vertex; inner and boundary variants are
// distinguished by whether BndP is non-nil.
type Vertex struct {
	Hdr        *objmgr.Header
	Coord      geom.Point
	LocalCoord geom.Point
	Father     *Element
	OnEdge     int // index into father's edge list, or -1
	OnSide     int // index into father's side list, or -1
	Moved      bool
	BndP       BndP
	NOfNode    int // number of nodes referencing this vertex
}

// IsBoundary reports whether v carries a boundary-point descriptor.
func (v *Vertex) IsBoundary() bool { return v.BndP != nil }

// NodeLink is one half-link of an edge, anchored in one endpoint's
// link ring and pointing at the opposite endpoint.
type NodeLink struct {
	Edge  *Edge
	Other *Node
	Next  *NodeLink
}

// Node is a mesh node: the algebraic/topological counterpart of a
// Vertex at a particular refinement level.
type Node struct {
	Hdr       *objmgr.Header
	Vertex    *Vertex
	Level     int
	Father    any // *Node (coarser corner), *Edge (midnode), or *Element (center node)
	Son       *Node
	LinkHead  *NodeLink
	Subdomain int
	Class     int
	NextClass int
	Type      NodeType
}

// Ring iterates f over every half-link in n's link ring.
func (n *Node) Ring(f func(*NodeLink)) {
	for l := n.LinkHead; l != nil; l = l.Next {
		f(l)
	}
}

// addLink pushes a new half-link onto the front of n's ring.
func (n *Node) addLink(l *NodeLink) {
	l.Next = n.LinkHead
	n.LinkHead = l
}

// removeLink unlinks the half-link pointing at other from n's ring.
func (n *Node) removeLink(other *Node) {
	var prev *NodeLink
	for l := n.LinkHead; l != nil; l = l.Next {
		if l.Other == other {
			if prev == nil {
				n.LinkHead = l.Next
			} else {
				prev.Next = l.Next
			}
			return
		}
		prev = l
	}
}

// Edge connects exactly two nodes, uniquely identified by that
// unordered pair.
type Edge struct {
	Hdr       *objmgr.Header
	Level     int
	Links     [2]*NodeLink
	MidNode   *Node
	Subdomain int
	ElemCount int
}

// Endpoints returns the edge's two nodes.
func (e *Edge) Endpoints() (a, b *Node) {
	return e.Links[0].Other, e.Links[1].Other
}

// BoundarySide is the boundary-side descriptor attached to a side of a
// boundary-variant element.
type BoundarySide struct {
	Desc     BndS
	Subdomain int
	Corners  []*Vertex
}

// Element is a mesh element (tetra/pyramid/prism/hex in 3D, or
// triangle/quad in 2D).
type Element struct {
	Hdr      *objmgr.Header
	Tag      ElementTag
	Variant  ElementVariant
	Level    int
	LocalID  int
	Corners  []*Node
	Edges    []*Edge
	Sides    []*BoundarySide // non-nil entries mark boundary sides
	Neighbor []*Element       // neighbour across the matching side, if any

	Father      *Element
	SonsMaster  *Element
	SonsGhost   *Element
	NextSibling *Element
	NSons       int

	Mark        int
	MarkClass   RefineClass
	Refine      int
	RefineClass RefineClass
	Coarsen     bool
	SidePattern uint32
	UpdateGreen bool
	Decoupled   bool
	NewEl       bool
}

// IsBoundary reports whether el is the boundary variant.
func (el *Element) IsBoundary() bool { return el.Variant == VariantBoundary }

// Sons iterates both the master and ghost son chains of el.
func (el *Element) Sons(f func(*Element)) {
	for s := el.SonsMaster; s != nil; s = s.NextSibling {
		f(s)
	}
	for s := el.SonsGhost; s != nil; s = s.NextSibling {
		f(s)
	}
}

// Vector is a generic algebraic unknown attached to a geometric owner
// (node, edge, side, or element).
type Vector struct {
	Hdr        *objmgr.Header
	Owner      any
	MatrixHead *Connection
}

// Connection is a directed matrix entry between two vectors; its
// adjoint entry is its mirror image across the connection.
type Connection struct {
	From, To *Vector
	Adjoint  *Connection
	Diag     bool
	Offset   bool
	Next     *Connection
	Data     any
}
