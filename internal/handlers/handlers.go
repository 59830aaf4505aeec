// Package handlers implements the per-object-type handler registry
// (C6): the fixed set of callbacks every object type registers at
// init time and that the transfer engine (C4) invokes at the matching
// point of its pipeline.
package handlers

import (
	"github.com/griddist/core/internal/objmgr"
	"github.com/griddist/core/pkg/xerrors"
)

// Newness classifies how a received object compares to what already
// existed locally, decided during C4's accept phase (XFER-C3).
type Newness int

const (
	// NotNew means an existing local copy won the priority merge and
	// the incoming copy was discarded bar coupling updates.
	NotNew Newness = iota
	// PartNew means an existing local copy was updated in place by a
	// winning incoming copy.
	PartNew
	// PrunedNew means the object existed locally only because its
	// delete was pruned, and is now refreshed from the incoming copy.
	PrunedNew
	// TotalNew means the object did not exist locally before this message.
	TotalNew
)

// RefTypeField describes one reference (pointer) field of a type: the
// field either has a statically known reference type id, or is
// resolved dynamically via ByHandler against the live parent object.
type RefTypeField struct {
	Name      string
	Static    int32
	HasStatic bool
	ByHandler func(parent any) int32
}

// ResolveType returns the reference type id for this field given the
// live parent object.
func (f RefTypeField) ResolveType(parent any) int32 {
	if f.HasStatic {
		return f.Static
	}
	if f.ByHandler != nil {
		return f.ByHandler(parent)
	}
	return -1
}

// Handlers is the fixed set of per-type callbacks C4 invokes. Any
// field may be left nil; C4 treats a nil handler as a no-op.
type Handlers struct {
	// LDataConstructor zero/default-initializes local-only data right
	// after a TOTALNEW object is allocated.
	LDataConstructor func(obj any)
	// Update links obj into grid lists, assigns local ids, and wires
	// immediate structural pointers. Runs after LDataConstructor and
	// before OBJMkCons.
	Update func(obj any)
	// ObjMkCons performs final cross-object wiring once every object in
	// the batch has arrived and symbols have been localized.
	ObjMkCons func(obj any, newness Newness)
	// Destructor releases auxiliary buffers on local disposal.
	Destructor func(obj any)
	// XferCopy enqueues dependent objects (via the caller's recursive
	// XferCopyObj) and attaches add-data when obj itself is copied.
	XferCopy func(obj any, dest int, prio objmgr.Priority, copyObj func(dep any, dest int, prio objmgr.Priority), addData func(cnt int, dataType int32))
	// XferDelete disposes dependent objects when obj is deleted.
	XferDelete func(obj any)
	// XferCopyManip optionally rewrites a copy in the send buffer just
	// before it is sealed into the message; it may change the copy's
	// effective type.
	XferCopyManip func(copyInBuf any) (newType int32, changed bool)
	// XferGather copies cnt dependent records of dataType into data.
	XferGather func(obj any, cnt int, dataType int32, data []byte)
	// XferGatherX is the variable-size counterpart of XferGather,
	// additionally receiving each record's offset into the chunk.
	XferGatherX func(obj any, cnt int, dataType int32, tables []int)
	// XferScatter installs received add-data into the local object.
	XferScatter func(obj any, cnt int, dataType int32, data []byte, newness Newness)
	// XferScatterX is the variable-size counterpart of XferScatter.
	XferScatterX func(obj any, cnt int, dataType int32, tables []int, newness Newness)
	// SetPriority reacts to a priority transition (including an
	// XFER-C3 merge outcome).
	SetPriority func(obj any, oldPrio, newPrio objmgr.Priority)

	// RefFields enumerates the type's reference fields, consumed by
	// C4 when walking out-pointers during pack/unpack.
	RefFields []RefTypeField
}

// Registry maps object type tags to their registered Handlers. It is
// write-once at init and read-only thereafter (spec §5's shared
// resource policy).
type Registry struct {
	byType map[int32]*Handlers
	sealed bool
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[int32]*Handlers)}
}

// Register installs h for objType. It is an error to register a type
// twice or to register after the registry has been sealed.
func (r *Registry) Register(objType int32, h *Handlers) error {
	if r.sealed {
		return xerrors.New(xerrors.CodeUsage, "handler registry is sealed")
	}
	if _, exists := r.byType[objType]; exists {
		return xerrors.New(xerrors.CodeUsage, "handlers already registered for this object type")
	}
	r.byType[objType] = h
	return nil
}

// Seal prevents further registration, matching the "write-once at
// init, read-only thereafter" policy for the type descriptor table.
func (r *Registry) Seal() { r.sealed = true }

// Get returns the handlers registered for objType, or nil if none.
func (r *Registry) Get(objType int32) *Handlers {
	return r.byType[objType]
}

// callLDataConstructor, callUpdate, ... are nil-safe wrappers so C4
// never needs to check for a nil Handlers or a nil specific callback.

func (h *Handlers) callLDataConstructor(obj any) {
	if h != nil && h.LDataConstructor != nil {
		h.LDataConstructor(obj)
	}
}

func (h *Handlers) callUpdate(obj any) {
	if h != nil && h.Update != nil {
		h.Update(obj)
	}
}

func (h *Handlers) callObjMkCons(obj any, newness Newness) {
	if h != nil && h.ObjMkCons != nil {
		h.ObjMkCons(obj, newness)
	}
}

func (h *Handlers) callDestructor(obj any) {
	if h != nil && h.Destructor != nil {
		h.Destructor(obj)
	}
}

func (h *Handlers) callSetPriority(obj any, oldPrio, newPrio objmgr.Priority) {
	if h != nil && h.SetPriority != nil {
		h.SetPriority(obj, oldPrio, newPrio)
	}
}

// RunLDataConstructor invokes objType's LDATACONSTRUCTOR handler, if any.
func (r *Registry) RunLDataConstructor(objType int32, obj any) {
	r.Get(objType).callLDataConstructor(obj)
}

// RunUpdate invokes objType's UPDATE handler, if any.
func (r *Registry) RunUpdate(objType int32, obj any) {
	r.Get(objType).callUpdate(obj)
}

// RunObjMkCons invokes objType's OBJMKCONS handler, if any.
func (r *Registry) RunObjMkCons(objType int32, obj any, newness Newness) {
	r.Get(objType).callObjMkCons(obj, newness)
}

// RunDestructor invokes objType's DESTRUCTOR handler, if any.
func (r *Registry) RunDestructor(objType int32, obj any) {
	r.Get(objType).callDestructor(obj)
}

// RunSetPriority invokes objType's SETPRIORITY handler, if any.
func (r *Registry) RunSetPriority(objType int32, obj any, oldPrio, newPrio objmgr.Priority) {
	r.Get(objType).callSetPriority(obj, oldPrio, newPrio)
}
