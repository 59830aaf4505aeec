// Package xfer implements the transfer engine (C4): migrating objects
// between processors inside a XferBegin/XferEnd bracket, merging
// colliding commands per the XFER-C1..M1 rules, and leaving every
// coupling list and pointer consistent afterward.
package xfer

import (
	"github.com/griddist/core/internal/handlers"
	"github.com/griddist/core/internal/iface"
	"github.com/griddist/core/internal/lowcomm"
	"github.com/griddist/core/internal/objmgr"
	"github.com/griddist/core/pkg/parallel"
	"github.com/griddist/core/pkg/xerrors"
	"github.com/griddist/core/pkg/xlog"
)

// Mode is the transfer-engine's cooperative state machine position.
type Mode int

const (
	ModeIdle Mode = iota
	ModeCmds
	ModeBusy
)

func (m Mode) String() string {
	switch m {
	case ModeCmds:
		return "XMODE_CMDS"
	case ModeBusy:
		return "XMODE_BUSY"
	default:
		return "XMODE_IDLE"
	}
}

// PriorityMerge resolves a priority collision between two copies of an
// object of the given type. Implementations should be total and
// commutative-in-effect so that repeated merges of the same pair of
// priorities always settle on the same winner.
type PriorityMerge func(objType int32, a, b objmgr.Priority) objmgr.Priority

func priorityRank(p objmgr.Priority) int {
	switch p {
	case objmgr.PrioMaster:
		return 0
	case objmgr.PrioBorder:
		return 1
	case objmgr.PrioHGhost, objmgr.PrioVGhost:
		return 2
	case objmgr.PrioVHGhost:
		return 3
	default:
		return 4
	}
}

// DefaultPriorityMerge ranks Master > Border > {H,V}Ghost > VHGhost >
// None, independent of object type.
func DefaultPriorityMerge(objType int32, a, b objmgr.Priority) objmgr.Priority {
	if priorityRank(a) <= priorityRank(b) {
		return a
	}
	return b
}

const (
	msgTypePruning  int32 = 9001
	msgTypeObjects  int32 = 9002
	msgTypeCoupling int32 = 9003
)

type copyKey struct {
	GID  objmgr.GID
	Dest int
}

type copyCmd struct {
	Hdr     *objmgr.Header
	Dest    int
	Prio    objmgr.Priority
	Size    int
	AddData []wireAddData
}

type deleteCmd struct {
	Hdr *objmgr.Header
}

type prioCmd struct {
	Hdr  *objmgr.Header
	Prio objmgr.Priority
}

// Options configures an Engine.
type Options struct {
	Logger           xlog.Logger
	PruneDelete      bool
	WarnRefCollision bool
	WarnVarSizeObj   bool
	Interfaces       *iface.Builder
	TypeOf           iface.TypeOf
	// HeaderOf resolves a domain object (as passed to handler
	// callbacks) back to its objmgr header, so XFERCOPY's recursive
	// copyObj callback can be routed through XferCopyObj.
	HeaderOf func(obj any) *objmgr.Header
}

// Engine drives one processor's side of the transfer protocol.
type Engine struct {
	om          *objmgr.Manager
	handlers    *handlers.Registry
	descriptors Registry
	layer       *lowcomm.Layer
	merge       PriorityMerge
	log         xlog.Logger

	prune            bool
	warnRefCollision bool
	warnVarSizeObj   bool

	iface    *iface.Builder
	typeOf   iface.TypeOf
	headerOf func(obj any) *objmgr.Header

	mode Mode

	headers map[objmgr.GID]*objmgr.Header
	objects map[objmgr.GID]any

	copyCmds    map[copyKey]*copyCmd
	copyOrder   []copyKey
	lastCopy    *copyCmd
	deleteCmds  map[objmgr.GID]*deleteCmd
	deleteOrder []objmgr.GID
	prioCmds    map[objmgr.GID]*prioCmd
	prioOrder   []objmgr.GID

	// packPool runs per-destination message encoding concurrently
	// during XferEnd's pack step; encoding one destination's batch
	// never touches another's, so this is an embarrassingly parallel
	// fan-out over the set of destinations in the current round.
	packPool *parallel.WorkerPool[int, []byte]
}

// NewEngine creates a transfer engine for the local processor. om is
// the object manager holding every coupled object's headers;
// registry supplies per-type handler callbacks; descriptors supplies
// per-type wire (de)serialization; layer carries messages between
// processors; merge resolves priority collisions.
func NewEngine(om *objmgr.Manager, registry *handlers.Registry, descriptors Registry, layer *lowcomm.Layer, merge PriorityMerge, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = &xlog.NullLogger{}
	}
	if merge == nil {
		merge = DefaultPriorityMerge
	}
	return &Engine{
		om:               om,
		handlers:         registry,
		descriptors:      descriptors,
		layer:            layer,
		merge:            merge,
		log:              opts.Logger,
		prune:            opts.PruneDelete,
		warnRefCollision: opts.WarnRefCollision,
		warnVarSizeObj:   opts.WarnVarSizeObj,
		iface:            opts.Interfaces,
		typeOf:           opts.TypeOf,
		headerOf:         opts.HeaderOf,
		headers:          make(map[objmgr.GID]*objmgr.Header),
		objects:          make(map[objmgr.GID]any),
		copyCmds:         make(map[copyKey]*copyCmd),
		deleteCmds:       make(map[objmgr.GID]*deleteCmd),
		prioCmds:         make(map[objmgr.GID]*prioCmd),
		packPool:         parallel.NewWorkerPool[int, []byte](parallel.DefaultPoolConfig()),
	}
}

// Track registers (hdr, obj) as a locally known object, reachable by
// gid for the duration of future transfers. Callers (the mesh layer)
// must call this for every object they create or accept so XferEnd
// can find both the header and the domain object again by gid.
func (e *Engine) Track(hdr *objmgr.Header, obj any) {
	e.headers[hdr.GID] = hdr
	e.objects[hdr.GID] = obj
}

// Untrack removes hdr from the gid index, e.g. after local disposal
// outside a transfer.
func (e *Engine) Untrack(hdr *objmgr.Header) {
	delete(e.headers, hdr.GID)
	delete(e.objects, hdr.GID)
}

func (e *Engine) requireMode(want Mode) error {
	if e.mode != want {
		return xerrors.Wrap(xerrors.CodeUsage, "invalid transfer mode transition", xerrors.ErrBadMode)
	}
	return nil
}

// XferBegin opens a command bracket (XMODE_IDLE -> XMODE_CMDS).
func (e *Engine) XferBegin() error {
	if err := e.requireMode(ModeIdle); err != nil {
		e.log.Error("XferBegin: bad mode", "mode", e.mode.String())
		return err
	}
	e.mode = ModeCmds
	return nil
}

// XferCopyObj requests a copy of hdr at dest with prio (XFER-C4: a
// self-destination degrades to XferPrioChange; XFER-C1: colliding
// requests for the same (gid, dest) merge their priority).
func (e *Engine) XferCopyObj(hdr *objmgr.Header, dest int, prio objmgr.Priority) error {
	return e.XferCopyObjX(hdr, dest, prio, 0)
}

// XferCopyObjX is XferCopyObj with an explicit payload size override
// for variable-size objects.
func (e *Engine) XferCopyObjX(hdr *objmgr.Header, dest int, prio objmgr.Priority, size int) error {
	if err := e.requireMode(ModeCmds); err != nil {
		return err
	}

	if dest == e.om.Rank() {
		return e.XferPrioChange(hdr, prio)
	}

	key := copyKey{GID: hdr.GID, Dest: dest}
	if existing, ok := e.copyCmds[key]; ok {
		existing.Prio = e.merge(hdr.Type, existing.Prio, prio)
		e.lastCopy = existing
		return nil
	}

	cmd := &copyCmd{Hdr: hdr, Dest: dest, Prio: prio, Size: size}
	e.copyCmds[key] = cmd
	e.copyOrder = append(e.copyOrder, key)
	e.lastCopy = cmd
	return nil
}

// XferDeleteObj requests deletion of hdr (XFER-D1: duplicate requests
// for the same gid collapse to one).
func (e *Engine) XferDeleteObj(hdr *objmgr.Header) error {
	if err := e.requireMode(ModeCmds); err != nil {
		return err
	}
	if _, ok := e.deleteCmds[hdr.GID]; !ok {
		e.deleteCmds[hdr.GID] = &deleteCmd{Hdr: hdr}
		e.deleteOrder = append(e.deleteOrder, hdr.GID)
	}
	return nil
}

// XferPrioChange requests a local priority change for hdr (XFER-P1:
// duplicate requests for the same gid merge their priority).
func (e *Engine) XferPrioChange(hdr *objmgr.Header, prio objmgr.Priority) error {
	if err := e.requireMode(ModeCmds); err != nil {
		return err
	}
	if existing, ok := e.prioCmds[hdr.GID]; ok {
		existing.Prio = e.merge(hdr.Type, existing.Prio, prio)
		return nil
	}
	e.prioCmds[hdr.GID] = &prioCmd{Hdr: hdr, Prio: prio}
	e.prioOrder = append(e.prioOrder, hdr.GID)
	return nil
}

// XferAddData attaches cnt records of dataType as dependent data on
// the most recently issued XferCopyObj command.
func (e *Engine) XferAddData(cnt int, dataType int32) error {
	return e.XferAddDataX(cnt, dataType, nil)
}

// XferAddDataX is XferAddData with explicit per-record sizes for
// variable-size dependent data.
func (e *Engine) XferAddDataX(cnt int, dataType int32, sizes []int) error {
	if err := e.requireMode(ModeCmds); err != nil {
		return err
	}
	if e.lastCopy == nil {
		return xerrors.New(xerrors.CodeUsage, "XferAddData with no preceding XferCopyObj")
	}
	e.lastCopy.AddData = append(e.lastCopy.AddData, wireAddData{DataType: dataType, Count: cnt, Sizes: sizes})
	return nil
}

