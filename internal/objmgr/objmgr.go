// Package objmgr implements the distributed object manager (C3): stable
// cross-processor identity headers, a per-processor object table, and
// per-object coupling chains that record which remote processors hold a
// copy of a given object and at what priority.
package objmgr

import (
	"github.com/griddist/core/pkg/xerrors"
	"github.com/griddist/core/pkg/xlog"
)

// Priority is the role a local object copy plays in the distributed
// identity protocol.
type Priority int

const (
	// PrioNone marks an object with no assigned priority yet.
	PrioNone Priority = iota
	// PrioMaster is the single authoritative copy of an object.
	PrioMaster
	// PrioBorder marks a copy that sits at a processor interface.
	PrioBorder
	// PrioHGhost is a horizontal ghost: a read-only copy kept to close
	// pointer references from a same-level master.
	PrioHGhost
	// PrioVGhost is a vertical ghost: a read-only copy closing references
	// across levels.
	PrioVGhost
	// PrioVHGhost closes references that are both vertical and horizontal.
	PrioVHGhost
)

func (p Priority) String() string {
	switch p {
	case PrioMaster:
		return "Master"
	case PrioBorder:
		return "Border"
	case PrioHGhost:
		return "HGhost"
	case PrioVGhost:
		return "VGhost"
	case PrioVHGhost:
		return "VHGhost"
	default:
		return "None"
	}
}

// GID is a global object identity: a 64-bit opaque id, dense enough to
// sort, unique across all processors.
type GID uint64

// Coupling records that a remote processor holds a copy of an object at
// a given priority. Couplings of the same object are threaded into a
// singly-linked chain off the object's header.
type Coupling struct {
	next         *Coupling
	obj          *Header
	Proc         int
	Prio         Priority
	fromFreelist bool
}

// Next returns the next coupling in the object's chain, or nil.
func (c *Coupling) Next() *Coupling { return c.next }

// Header is the per-object identity record every distributable entity
// (C1 vertex/node/edge/element/vector/matrix) embeds.
type Header struct {
	GID     GID
	Type    int32
	Level   int
	Attr    int
	Prio    Priority
	Used    bool
	Pruned  bool
	cplList *Coupling
	nCpl    int
	// objIndex is this header's slot in the manager's object table, or
	// -1 if the object currently has no coupling ("local").
	objIndex int
}

// HasCoupling reports whether hdr currently has at least one coupling.
func (hdr *Header) HasCoupling() bool { return hdr.nCpl > 0 }

// NCoupling returns the number of couplings currently attached to hdr.
func (hdr *Header) NCoupling() int { return hdr.nCpl }

// Couplings returns the head of hdr's coupling chain.
func (hdr *Header) Couplings() *Coupling { return hdr.cplList }

const initialObjTableSize = 256

// Manager is the per-processor distributed object manager. It owns the
// object table (objects that currently participate in at least one
// coupling occupy the contiguous prefix [0, nCpls) of the table) and the
// coupling allocator.
type Manager struct {
	me       int
	log      xlog.Logger
	objTable []*Header
	nCpls    int
	alloc    *cplAllocator
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger overrides the manager's logger.
func WithLogger(l xlog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithFreelist controls whether couplings are allocated from a segment
// freelist (OPT_CPLMGR_USE_FREELIST) or directly from the heap.
func WithFreelist(use bool) Option {
	return func(m *Manager) { m.alloc.useFreelist = use }
}

// New creates a Manager for the local processor rank me.
func New(me int, opts ...Option) *Manager {
	m := &Manager{
		me:       me,
		log:      &xlog.NullLogger{},
		objTable: make([]*Header, initialObjTableSize),
		alloc:    newCplAllocator(true),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewHeader builds a fresh, uncoupled header for a newly created local
// object.
func (m *Manager) NewHeader(gid GID, objType int32, level int, prio Priority) *Header {
	return &Header{GID: gid, Type: objType, Level: level, Prio: prio, objIndex: -1}
}

func (m *Manager) growObjTable() {
	n := len(m.objTable) * 2
	if n == 0 {
		n = initialObjTableSize
	}
	grown := make([]*Header, n)
	copy(grown, m.objTable)
	m.objTable = grown
	m.log.Warn("increased coupling table", "entries", n)
}

// AddCoupling registers that proc holds a copy of hdr's object at
// priority prio. It is idempotent: if a coupling to proc already
// exists its priority is overwritten and it is returned unchanged
// otherwise. Couplings to the local processor are rejected.
func (m *Manager) AddCoupling(hdr *Header, proc int, prio Priority) (*Coupling, error) {
	if proc == m.me {
		return nil, xerrors.ErrSelfDest
	}

	if !hdr.HasCoupling() {
		if m.nCpls == len(m.objTable) {
			m.growObjTable()
		}

		idx := m.nCpls
		m.objTable[idx] = hdr
		hdr.objIndex = idx
		hdr.cplList = nil
		hdr.nCpl = 0
		m.nCpls++
	} else {
		for cp := hdr.cplList; cp != nil; cp = cp.next {
			if cp.Proc == proc {
				cp.Prio = prio
				return cp, nil
			}
		}
	}

	cp := m.alloc.New()
	cp.obj = hdr
	cp.Proc = proc
	cp.Prio = prio

	cp.next = hdr.cplList
	hdr.cplList = cp
	hdr.nCpl++

	return cp, nil
}

// ModCoupling updates the priority of an existing coupling to proc. It
// fails if hdr has no coupling to proc at all.
func (m *Manager) ModCoupling(hdr *Header, proc int, prio Priority) (*Coupling, error) {
	if proc == m.me {
		return nil, xerrors.ErrSelfDest
	}

	if !hdr.HasCoupling() {
		m.log.Warn("ModCoupling: no couplings", "gid", hdr.GID)
		return nil, xerrors.ErrNoCoupling
	}

	for cp := hdr.cplList; cp != nil; cp = cp.next {
		if cp.Proc == proc {
			cp.Prio = prio
			return cp, nil
		}
	}

	m.log.Warn("ModCoupling: no coupling to proc", "gid", hdr.GID, "proc", proc)
	return nil, xerrors.ErrNoCoupling
}

// DelCoupling removes hdr's coupling to proc, if any. When the last
// coupling on the object is removed, the object table is compacted
// (swap-with-last) and the object is marked local.
func (m *Manager) DelCoupling(hdr *Header, proc int) {
	if hdr.objIndex < 0 || hdr.objIndex >= m.nCpls {
		return
	}

	var prev *Coupling
	for cp := hdr.cplList; cp != nil; cp = cp.next {
		if cp.Proc != proc {
			prev = cp
			continue
		}

		if prev == nil {
			hdr.cplList = cp.next
		} else {
			prev.next = cp.next
		}

		m.alloc.Free(cp)
		hdr.nCpl--

		if hdr.nCpl == 0 {
			m.nCpls--
			last := m.objTable[m.nCpls]
			m.objTable[hdr.objIndex] = last
			if last != nil {
				last.objIndex = hdr.objIndex
			}
			m.objTable[m.nCpls] = nil

			hdr.objIndex = -1
			hdr.cplList = nil
		}
		return
	}
}

// DisposeCouplingList frees every coupling in hdr's chain and clears it.
// It does not compact the object table; callers that remove an object
// entirely should go through DelCoupling for every remaining proc first.
func (m *Manager) DisposeCouplingList(hdr *Header) {
	cp := hdr.cplList
	for cp != nil {
		next := cp.next
		m.alloc.Free(cp)
		cp = next
	}
	hdr.cplList = nil
	hdr.nCpl = 0
}

// ProcPrio is one entry of an InfoProcListRange enumeration.
type ProcPrio struct {
	Proc int
	Prio Priority
}

// InfoProcListRange enumerates (proc, prio) pairs for every remote copy
// of hdr's object, optionally prefixed with a synthetic self-entry for
// the local copy.
func (m *Manager) InfoProcListRange(hdr *Header, includeSelf bool) []ProcPrio {
	out := make([]ProcPrio, 0, hdr.nCpl+1)
	if includeSelf {
		out = append(out, ProcPrio{Proc: m.me, Prio: hdr.Prio})
	}
	for cp := hdr.cplList; cp != nil; cp = cp.next {
		out = append(out, ProcPrio{Proc: cp.Proc, Prio: cp.Prio})
	}
	return out
}

// NCoupledObjects returns the number of objects currently occupying the
// coupled region of the object table.
func (m *Manager) NCoupledObjects() int { return m.nCpls }

// Rank returns the local processor's rank.
func (m *Manager) Rank() int { return m.me }

// Objects returns every header currently occupying the coupled region
// of the object table (i.e. every object that has at least one
// coupling). The returned slice is a snapshot copy, safe for the
// caller to keep even as couplings change afterward.
func (m *Manager) Objects() []*Header {
	out := make([]*Header, m.nCpls)
	copy(out, m.objTable[:m.nCpls])
	return out
}
