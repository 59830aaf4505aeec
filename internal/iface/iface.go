// Package iface implements the interface builder (C5): symmetric
// neighbour interfaces recomputed from the coupling state maintained
// by C3/C4, plus node-class propagation through the grid.
package iface

import (
	"sort"

	"github.com/griddist/core/internal/objmgr"
)

// Entry is one member of an interface: a local header paired with the
// remote processor holding the matching copy.
type Entry struct {
	Hdr  *objmgr.Header
	Proc int
}

// Key identifies one interface: all couplings of a given object type
// between a local priority and a remote priority.
type Key struct {
	ObjType    int32
	LocalPrio  objmgr.Priority
	RemotePrio objmgr.Priority
}

// Set is the full collection of interfaces built by one
// IFAllFromScratch/IFRefreshAll call.
type Set struct {
	byKey map[Key][]Entry
}

// Get returns the sorted entry list for k.
func (s *Set) Get(k Key) []Entry { return s.byKey[k] }

// Keys returns every interface key present in the set.
func (s *Set) Keys() []Key {
	out := make([]Key, 0, len(s.byKey))
	for k := range s.byKey {
		out = append(out, k)
	}
	return out
}

// Builder recomputes interfaces from the object manager's live
// coupling state.
type Builder struct {
	om *objmgr.Manager
}

// NewBuilder creates a Builder over om.
func NewBuilder(om *objmgr.Manager) *Builder {
	return &Builder{om: om}
}

// TypeOf resolves an object's type tag from its header, supplied by
// the caller since C3 headers do not know the type registry.
type TypeOf func(hdr *objmgr.Header) int32

// IFAllFromScratch rebuilds every interface from the current coupling
// state. Called after any XferEnd.
func (b *Builder) IFAllFromScratch(typeOf TypeOf) *Set {
	return b.build(typeOf)
}

// IFRefreshAll rebuilds every interface, for use when objects were
// deleted locally without any accompanying communication (so no
// XferEnd pipeline ran to keep interfaces in sync). The recomputation
// is identical to IFAllFromScratch; the distinct entry point exists to
// document the caller's intent.
func (b *Builder) IFRefreshAll(typeOf TypeOf) *Set {
	return b.build(typeOf)
}

func (b *Builder) build(typeOf TypeOf) *Set {
	s := &Set{byKey: make(map[Key][]Entry)}

	for _, hdr := range b.om.Objects() {
		for cp := hdr.Couplings(); cp != nil; cp = cp.Next() {
			k := Key{ObjType: typeOf(hdr), LocalPrio: hdr.Prio, RemotePrio: cp.Prio}
			s.byKey[k] = append(s.byKey[k], Entry{Hdr: hdr, Proc: cp.Proc})
		}
	}

	for k := range s.byKey {
		entries := s.byKey[k]
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Hdr.GID != entries[j].Hdr.GID {
				return entries[i].Hdr.GID < entries[j].Hdr.GID
			}
			return entries[i].Proc < entries[j].Proc
		})
	}

	return s
}
