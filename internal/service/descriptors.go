package service

import (
	"bytes"
	"encoding/gob"

	"github.com/griddist/core/internal/handlers"
	"github.com/griddist/core/internal/mesh"
	"github.com/griddist/core/internal/objmgr"
	"github.com/griddist/core/internal/xfer"
	"github.com/griddist/core/pkg/geom"
)

func encodeGob(v any) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func decodeGob(data []byte, v any) {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		panic(err)
	}
}

// hdrOf resolves a domain object back to its objmgr header; it is the
// xfer engine's HeaderOf option.
func hdrOf(obj any) *objmgr.Header {
	switch o := obj.(type) {
	case *mesh.Vertex:
		return o.Hdr
	case *mesh.Node:
		return o.Hdr
	case *mesh.Edge:
		return o.Hdr
	case *mesh.Element:
		return o.Hdr
	case *mesh.Vector:
		return o.Hdr
	default:
		return nil
	}
}

// typeOf resolves an object's registered transfer type from its
// header, shared by the xfer and refine engines' TypeOf option.
func typeOf(hdr *objmgr.Header) int32 { return hdr.Type }

type vertexPayload struct {
	Coord, LocalCoord geom.Point
	OnEdge, OnSide    int
	Moved             bool
	NOfNode           int
}

func vertexDescriptor() xfer.TypeDescriptor {
	return xfer.TypeDescriptor{
		Size: 1,
		Marshal: func(obj any) []byte {
			v := obj.(*mesh.Vertex)
			return encodeGob(vertexPayload{v.Coord, v.LocalCoord, v.OnEdge, v.OnSide, v.Moved, v.NOfNode})
		},
		Unmarshal: func(data []byte) any {
			var p vertexPayload
			decodeGob(data, &p)
			return &mesh.Vertex{Coord: p.Coord, LocalCoord: p.LocalCoord, OnEdge: p.OnEdge, OnSide: p.OnSide, Moved: p.Moved, NOfNode: p.NOfNode}
		},
		Overwrite: func(dst, src any) {
			d, s := dst.(*mesh.Vertex), src.(*mesh.Vertex)
			d.Coord, d.LocalCoord = s.Coord, s.LocalCoord
			d.OnEdge, d.OnSide, d.Moved, d.NOfNode = s.OnEdge, s.OnSide, s.Moved, s.NOfNode
		},
		RefGIDs: func(obj any) []objmgr.GID {
			v := obj.(*mesh.Vertex)
			if v.Father == nil {
				return []objmgr.GID{0}
			}
			return []objmgr.GID{v.Father.Hdr.GID}
		},
		InstallRefs: func(obj any, resolved []any, merge bool) bool {
			v := obj.(*mesh.Vertex)
			if resolved[0] == nil {
				return false
			}
			father := resolved[0].(*mesh.Element)
			if merge && v.Father != nil && v.Father != father {
				return true
			}
			v.Father = father
			return false
		},
	}
}

type nodePayload struct {
	Level     int
	Subdomain int
	Class     int
	NextClass int
	Type      mesh.NodeType
}

func nodeDescriptor() xfer.TypeDescriptor {
	return xfer.TypeDescriptor{
		Size: 1,
		Marshal: func(obj any) []byte {
			n := obj.(*mesh.Node)
			return encodeGob(nodePayload{n.Level, n.Subdomain, n.Class, n.NextClass, n.Type})
		},
		Unmarshal: func(data []byte) any {
			var p nodePayload
			decodeGob(data, &p)
			return &mesh.Node{Level: p.Level, Subdomain: p.Subdomain, Class: p.Class, NextClass: p.NextClass, Type: p.Type}
		},
		Overwrite: func(dst, src any) {
			d, s := dst.(*mesh.Node), src.(*mesh.Node)
			d.Level, d.Subdomain, d.Class, d.NextClass, d.Type = s.Level, s.Subdomain, s.Class, s.NextClass, s.Type
		},
		RefGIDs: func(obj any) []objmgr.GID {
			n := obj.(*mesh.Node)
			vg := objmgr.GID(0)
			if n.Vertex != nil {
				vg = n.Vertex.Hdr.GID
			}
			fg := objmgr.GID(0)
			if h := hdrOf(n.Father); h != nil {
				fg = h.GID
			}
			return []objmgr.GID{vg, fg}
		},
		// InstallRefs installs the node's vertex and father. Father's
		// concrete type (*Node, *Edge or *Element, per NodeType) never
		// needs disambiguating here: resolved[1] already holds whichever
		// concrete object the gid resolved to, and Node.Father is `any`.
		InstallRefs: func(obj any, resolved []any, merge bool) bool {
			n := obj.(*mesh.Node)
			if resolved[0] != nil {
				v := resolved[0].(*mesh.Vertex)
				if merge && n.Vertex != nil && n.Vertex != v {
					return true
				}
				n.Vertex = v
			}
			if resolved[1] != nil {
				n.Father = resolved[1]
			}
			return false
		},
	}
}

func edgeDescriptor() xfer.TypeDescriptor {
	return xfer.TypeDescriptor{
		Size: 1,
		Marshal: func(obj any) []byte {
			e := obj.(*mesh.Edge)
			return encodeGob([3]int{e.Level, e.Subdomain, e.ElemCount})
		},
		Unmarshal: func(data []byte) any {
			var p [3]int
			decodeGob(data, &p)
			return &mesh.Edge{Level: p[0], Subdomain: p[1], ElemCount: p[2]}
		},
		Overwrite: func(dst, src any) {
			d, s := dst.(*mesh.Edge), src.(*mesh.Edge)
			d.Level, d.Subdomain, d.ElemCount = s.Level, s.Subdomain, s.ElemCount
		},
		RefGIDs: func(obj any) []objmgr.GID {
			e := obj.(*mesh.Edge)
			a, b := e.Endpoints()
			ag, bg := objmgr.GID(0), objmgr.GID(0)
			if a != nil {
				ag = a.Hdr.GID
			}
			if b != nil {
				bg = b.Hdr.GID
			}
			mg := objmgr.GID(0)
			if e.MidNode != nil {
				mg = e.MidNode.Hdr.GID
			}
			return []objmgr.GID{ag, bg, mg}
		},
		// InstallRefs threads the ring (via mesh.LinkRemoteEdge) for a
		// freshly received edge the first time both endpoints resolve;
		// a merge against an existing local edge only updates MidNode.
		InstallRefs: func(obj any, resolved []any, merge bool) bool {
			e := obj.(*mesh.Edge)
			if !merge && resolved[0] != nil && resolved[1] != nil && e.Links[0] == nil {
				a, b := resolved[0].(*mesh.Node), resolved[1].(*mesh.Node)
				mesh.LinkRemoteEdge(e, a, b)
			}
			if resolved[2] != nil {
				e.MidNode = resolved[2].(*mesh.Node)
			}
			return false
		},
	}
}

type elementPayload struct {
	Tag         mesh.ElementTag
	Variant     mesh.ElementVariant
	Level       int
	LocalID     int
	Mark        int
	MarkClass   mesh.RefineClass
	Refine      int
	RefineClass mesh.RefineClass
	Coarsen     bool
	SidePattern uint32
}

func elementDescriptor() xfer.TypeDescriptor {
	return xfer.TypeDescriptor{
		Size: 1,
		Marshal: func(obj any) []byte {
			el := obj.(*mesh.Element)
			return encodeGob(elementPayload{el.Tag, el.Variant, el.Level, el.LocalID, el.Mark, el.MarkClass, el.Refine, el.RefineClass, el.Coarsen, el.SidePattern})
		},
		Unmarshal: func(data []byte) any {
			var p elementPayload
			decodeGob(data, &p)
			return &mesh.Element{
				Tag: p.Tag, Variant: p.Variant, Level: p.Level, LocalID: p.LocalID,
				Mark: p.Mark, MarkClass: p.MarkClass, Refine: p.Refine, RefineClass: p.RefineClass,
				Coarsen: p.Coarsen, SidePattern: p.SidePattern,
			}
		},
		Overwrite: func(dst, src any) {
			d, s := dst.(*mesh.Element), src.(*mesh.Element)
			d.Mark, d.MarkClass, d.Refine, d.RefineClass = s.Mark, s.MarkClass, s.Refine, s.RefineClass
			d.Coarsen, d.SidePattern = s.Coarsen, s.SidePattern
		},
		RefGIDs: func(obj any) []objmgr.GID {
			el := obj.(*mesh.Element)
			refs := make([]objmgr.GID, len(el.Corners)+len(el.Edges))
			i := 0
			for _, c := range el.Corners {
				refs[i] = c.Hdr.GID
				i++
			}
			for _, e := range el.Edges {
				refs[i] = e.Hdr.GID
				i++
			}
			return refs
		},
		InstallRefs: func(obj any, resolved []any, merge bool) bool {
			el := obj.(*mesh.Element)
			nCorners := len(el.Corners)
			if nCorners == 0 {
				nCorners = len(resolved) / 2
			}
			if len(el.Corners) == 0 {
				el.Corners = make([]*mesh.Node, nCorners)
				el.Edges = make([]*mesh.Edge, len(resolved)-nCorners)
			}
			for i := 0; i < nCorners; i++ {
				if resolved[i] != nil {
					el.Corners[i] = resolved[i].(*mesh.Node)
				}
			}
			for i := nCorners; i < len(resolved); i++ {
				if resolved[i] != nil {
					el.Edges[i-nCorners] = resolved[i].(*mesh.Edge)
				}
			}
			return false
		},
	}
}

func vectorDescriptor() xfer.TypeDescriptor {
	return xfer.TypeDescriptor{
		Size: 1,
		Marshal: func(obj any) []byte {
			return []byte{}
		},
		Unmarshal: func(data []byte) any {
			return &mesh.Vector{}
		},
		Overwrite: func(dst, src any) {},
		RefGIDs: func(obj any) []objmgr.GID {
			v := obj.(*mesh.Vector)
			if h := hdrOf(v.Owner); h != nil {
				return []objmgr.GID{h.GID}
			}
			return []objmgr.GID{0}
		},
		InstallRefs: func(obj any, resolved []any, merge bool) bool {
			v := obj.(*mesh.Vector)
			if resolved[0] != nil {
				v.Owner = resolved[0]
			}
			return false
		},
	}
}

// buildDescriptors returns the transfer-wire descriptor for every C1
// entity kind, keyed by its mesh.Type* constant.
func buildDescriptors() xfer.Registry {
	return xfer.Registry{
		mesh.TypeVertex:  vertexDescriptor(),
		mesh.TypeNode:    nodeDescriptor(),
		mesh.TypeEdge:    edgeDescriptor(),
		mesh.TypeElement: elementDescriptor(),
		mesh.TypeVector:  vectorDescriptor(),
	}
}

// buildHandlers returns the per-type handler registry consumed by C4,
// wiring each received object into its grid's priority list.
func buildHandlers(mg *mesh.Multigrid) (*handlers.Registry, error) {
	reg := handlers.NewRegistry()

	insert := func(level int, objType int32, obj any) {
		g := mg.Grid(level)
		switch objType {
		case mesh.TypeVertex:
		case mesh.TypeNode:
			g.Nodes.Insert(hdrOf(obj).Prio, obj.(*mesh.Node))
		case mesh.TypeEdge:
			g.Edges.Insert(hdrOf(obj).Prio, obj.(*mesh.Edge))
		case mesh.TypeElement:
			g.Elements.Insert(hdrOf(obj).Prio, obj.(*mesh.Element))
		case mesh.TypeVector:
			g.Vectors.Insert(hdrOf(obj).Prio, obj.(*mesh.Vector))
		}
	}

	for _, objType := range []int32{mesh.TypeVertex, mesh.TypeNode, mesh.TypeEdge, mesh.TypeElement, mesh.TypeVector} {
		objType := objType
		if err := reg.Register(objType, &handlers.Handlers{
			Update: func(obj any) {
				hdr := hdrOf(obj)
				if hdr == nil {
					return
				}
				insert(hdr.Level, objType, obj)
			},
			SetPriority: func(obj any, oldPrio, newPrio objmgr.Priority) {
				hdr := hdrOf(obj)
				if hdr == nil {
					return
				}
				level := hdr.Level
				switch objType {
				case mesh.TypeNode:
					mg.Grid(level).Nodes.Move(oldPrio, newPrio, func(n *mesh.Node) bool { return n == obj })
				case mesh.TypeEdge:
					mg.Grid(level).Edges.Move(oldPrio, newPrio, func(e *mesh.Edge) bool { return e == obj })
				case mesh.TypeElement:
					mg.Grid(level).Elements.Move(oldPrio, newPrio, func(el *mesh.Element) bool { return el == obj })
				case mesh.TypeVector:
					mg.Grid(level).Vectors.Move(oldPrio, newPrio, func(v *mesh.Vector) bool { return v == obj })
				}
			},
		}); err != nil {
			return nil, err
		}
	}

	reg.Seal()
	return reg, nil
}
