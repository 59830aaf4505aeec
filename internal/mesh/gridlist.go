package mesh

import (
	"sync"

	"github.com/griddist/core/internal/objmgr"
	"github.com/griddist/core/pkg/xlog"
)

// priorityOrder is the canonical ordering that keeps a PriorityList's
// per-class entries contiguous: Master, Border, then the ghost
// classes, then unassigned.
var priorityOrder = []objmgr.Priority{
	objmgr.PrioMaster,
	objmgr.PrioBorder,
	objmgr.PrioHGhost,
	objmgr.PrioVGhost,
	objmgr.PrioVHGhost,
	objmgr.PrioNone,
}

// PriorityList holds entries of one entity kind for one grid level,
// bucketed by priority class. Bucketing (rather than a single
// pointer-linked list with manual segment bookkeeping) gives the same
// "contiguous per-priority sub-list" guarantee the original grid list
// provides, expressed the idiomatic Go way.
type PriorityList[T any] struct {
	buckets map[objmgr.Priority][]T
}

// NewPriorityList creates an empty PriorityList.
func NewPriorityList[T any]() *PriorityList[T] {
	return &PriorityList[T]{buckets: make(map[objmgr.Priority][]T)}
}

// Insert adds v to the sub-list for prio.
func (l *PriorityList[T]) Insert(prio objmgr.Priority, v T) {
	l.buckets[prio] = append(l.buckets[prio], v)
}

// Remove deletes the first entry in prio's sub-list matching pred,
// reporting whether one was found.
func (l *PriorityList[T]) Remove(prio objmgr.Priority, pred func(T) bool) bool {
	b := l.buckets[prio]
	for i, v := range b {
		if pred(v) {
			l.buckets[prio] = append(b[:i:i], b[i+1:]...)
			return true
		}
	}
	return false
}

// Move relocates the first entry in from's sub-list matching pred into
// to's sub-list, reporting whether one was found. This is how an
// object's grid-list membership follows a priority change.
func (l *PriorityList[T]) Move(from, to objmgr.Priority, pred func(T) bool) bool {
	b := l.buckets[from]
	for i, v := range b {
		if pred(v) {
			l.buckets[from] = append(b[:i:i], b[i+1:]...)
			l.buckets[to] = append(l.buckets[to], v)
			return true
		}
	}
	return false
}

// ByPriority returns the sub-list for prio (read-only view).
func (l *PriorityList[T]) ByPriority(prio objmgr.Priority) []T {
	return l.buckets[prio]
}

// All returns every entry across all priority classes, in canonical
// class order, i.e. the equivalent of one flattened doubly-linked list.
func (l *PriorityList[T]) All() []T {
	out := make([]T, 0, l.Len())
	for _, p := range priorityOrder {
		out = append(out, l.buckets[p]...)
	}
	return out
}

// Len returns the total number of entries across all classes.
func (l *PriorityList[T]) Len() int {
	n := 0
	for _, b := range l.buckets {
		n += len(b)
	}
	return n
}

// Grid holds every entity kind for a single refinement level.
type Grid struct {
	Level    int
	Elements *PriorityList[*Element]
	Nodes    *PriorityList[*Node]
	Edges    *PriorityList[*Edge]
	Vectors  *PriorityList[*Vector]
}

func newGrid(level int) *Grid {
	return &Grid{
		Level:    level,
		Elements: NewPriorityList[*Element](),
		Nodes:    NewPriorityList[*Node](),
		Edges:    NewPriorityList[*Edge](),
		Vectors:  NewPriorityList[*Vector](),
	}
}

// Multigrid is the root of the per-level grid hierarchy: an array of
// Grids indexed by level, plus the object manager and id counters
// shared by every construction operation.
type Multigrid struct {
	mu  sync.Mutex
	Dim int

	grids   []*Grid
	objmgr  *objmgr.Manager
	log     xlog.Logger
	nextGID objmgr.GID
	nextLID int
}

// MultigridOption configures a Multigrid.
type MultigridOption func(*Multigrid)

// WithLogger overrides the multigrid's logger.
func WithLogger(l xlog.Logger) MultigridOption {
	return func(mg *Multigrid) { mg.log = l }
}

// NewMultigrid creates an empty multigrid of the given dimension (2 or
// 3), backed by the given distributed object manager.
func NewMultigrid(dim int, om *objmgr.Manager, opts ...MultigridOption) *Multigrid {
	mg := &Multigrid{
		Dim:    dim,
		grids:  []*Grid{newGrid(0)},
		objmgr: om,
		log:    &xlog.NullLogger{},
	}
	for _, opt := range opts {
		opt(mg)
	}
	return mg
}

// Grid returns the grid at level, growing the level array as needed.
func (mg *Multigrid) Grid(level int) *Grid {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return mg.gridLocked(level)
}

func (mg *Multigrid) gridLocked(level int) *Grid {
	for level >= len(mg.grids) {
		mg.grids = append(mg.grids, newGrid(len(mg.grids)))
	}
	return mg.grids[level]
}

// NumLevels returns the number of levels currently allocated.
func (mg *Multigrid) NumLevels() int {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return len(mg.grids)
}

// ObjManager returns the multigrid's underlying object manager.
func (mg *Multigrid) ObjManager() *objmgr.Manager { return mg.objmgr }

// gidRankShift reserves the low bits of a gid for a per-processor
// counter and the high bits for the owning processor's rank, so gids
// are globally unique without any cross-processor coordination.
const gidRankShift = 40

// newGID allocates a fresh global identity: (rank << gidRankShift) |
// counter.
func (mg *Multigrid) newGID() objmgr.GID {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.nextGID++
	return objmgr.GID(uint64(mg.objmgr.Rank())<<gidRankShift) | mg.nextGID
}

// newLocalID allocates a fresh per-processor local element id.
func (mg *Multigrid) newLocalID() int {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.nextLID++
	return mg.nextLID
}
