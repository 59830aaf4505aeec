package xfer

import "github.com/griddist/core/internal/objmgr"

// TypeDescriptor is the per-object-type wire contract C4 needs to
// migrate an object: how to serialize/deserialize its local payload,
// and how to read/install the gids of its out-pointer fields.
//
// This replaces the byte-offset symbol table of a C implementation
// (where an out-pointer is overwritten in place with a symbol index)
// with direct gid-carrying references: Go objects are never raw
// memory, so there is nothing to relocalize by offset. RefGIDs and
// InstallRefs must agree on slot order — position i of the slice
// returned by RefGIDs corresponds to position i of the slice passed
// to InstallRefs.
type TypeDescriptor struct {
	// Size is the type's declared payload size, used only to warn
	// when XferCopyObjX's explicit size disagrees with it.
	Size int

	// Marshal encodes obj's local (non-reference) payload.
	Marshal func(obj any) []byte

	// Unmarshal allocates a brand-new object of this type from a
	// received payload, for objects with no local match (TOTALNEW).
	Unmarshal func(data []byte) any

	// Overwrite copies the global (non-local-only) fields of src into
	// dst, for XFER-C3's in-place merge when the incoming copy wins.
	Overwrite func(dst, src any)

	// RefGIDs returns the current gid of every out-pointer field of
	// obj, in a stable order.
	RefGIDs func(obj any) []objmgr.GID

	// InstallRefs installs resolved as obj's out-pointer fields, in
	// the order returned by RefGIDs. A nil entry means no object with
	// that gid is tracked locally; XferEnd makes no later pass to fill
	// it in. When merge
	// is true only a currently-nil field may be overwritten; a
	// non-nil field that disagrees with resolved is a reference
	// collision.
	InstallRefs func(obj any, resolved []any, merge bool) (collision bool)

	// Gather copies cnt dependent records of dataType out of obj
	// (XFERGATHER), used to pack XferAddData payloads.
	Gather func(obj any, dataType int32, cnt int) []byte

	// Scatter installs cnt dependent records of dataType, received as
	// data, into obj (XFERSCATTER).
	Scatter func(obj any, dataType int32, cnt int, data []byte)
}

// Registry is a per-type-id table of TypeDescriptor.
type Registry map[int32]TypeDescriptor
