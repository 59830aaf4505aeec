// Package refine implements the refinement engine (C2): turning
// per-element marks into a new, finer grid level that is geometrically
// conforming (closure), rule-consistent (rule selection + son
// construction), and, in parallel, globally coherent (new sons handed
// to the transfer engine for cross-processor placement).
package refine

import (
	"github.com/griddist/core/internal/iface"
	"github.com/griddist/core/internal/mesh"
	"github.com/griddist/core/internal/objmgr"
	"github.com/griddist/core/internal/xfer"
	"github.com/griddist/core/pkg/collections"
	"github.com/griddist/core/pkg/xerrors"
	"github.com/griddist/core/pkg/xlog"
)

// refineInfoHistory is the per-step entry retained for the REFINEINFO
// accounting the spec's refine-info scenario exercises.
type refineInfoHistory struct {
	markCount     int
	realCount     int
	predictedNew  [3]int
	predictedMax  int
}

const refineInfoCapacity = 100

// RefineInfo tracks, per adapt step, how many elements were marked, how
// many real elements existed before the step, and how many the step is
// predicted to create — mirroring the original's fixed-size
// refine_info ring (RINFO_MAX), expressed as a bounded ring buffer
// instead of a step counter modulo an array size.
type RefineInfo struct {
	history *collections.RingBuffer[refineInfoHistory]
	last    refineInfoHistory
	hasLast bool
}

// NewRefineInfo creates an empty refine-info history.
func NewRefineInfo() *RefineInfo {
	return &RefineInfo{history: collections.NewRingBuffer[refineInfoHistory](refineInfoCapacity)}
}

// record appends one step's accounting, evicting the oldest entry once
// the ring is full.
func (ri *RefineInfo) record(entry refineInfoHistory) {
	if ri.history.IsFull() {
		ri.history.Pop()
	}
	ri.history.Push(entry)
	ri.last = entry
	ri.hasLast = true
}

// Last returns the most recently recorded step's accounting, or false
// if no step has run yet.
func (ri *RefineInfo) Last() (markCount, realCount, predNew0, predNew1, predNew2 int, ok bool) {
	if !ri.hasLast {
		return 0, 0, 0, 0, 0, false
	}
	entry := ri.last
	return entry.markCount, entry.realCount, entry.predictedNew[0], entry.predictedNew[1], entry.predictedNew[2], true
}

// sonsPerRedRule is the literature constant for a full red refinement
// of an element of the multigrid's dimension: 2^DIM congruent-ish
// sons (4 for a 2D simplex, 8 for a 3D simplex, matching Bey's red
// tetrahedron refinement used by ruleFor(ElementTetrahedron, redMask)).
func sonsPerRedRule(dim int) int {
	n := 1
	for i := 0; i < dim; i++ {
		n *= 2
	}
	return n
}

// BoundaryProvider re-exports the C1 boundary collaborator so callers
// driving an adapt step only need to import this package.
type BoundaryProvider = mesh.BoundaryProvider

// Exchanger broadcasts the mark-class/side-pattern of every border
// element to its remote copies and folds the peers' answers back in,
// once per closure sweep iteration (spec §4.3 step 2: "exchange
// side-pattern and mark-class across interface elements after each
// sweep using C5's coupling channels"). nil skips the cross-processor
// step (single-processor grids, unit tests).
type Exchanger func(borderElements []*mesh.Element)

// Options configures an Engine.
type Options struct {
	Logger     xlog.Logger
	Catalog    RuleCatalog
	Exchange   Exchanger
	Interfaces *iface.Builder
	TypeOf     iface.TypeOf
	Transfer   *xfer.Engine
	Boundary   BoundaryProvider
}

// Engine drives one processor's side of mark-intake, closure, rule
// selection, son construction, parallel son placement, and coarsening.
type Engine struct {
	mg  *mesh.Multigrid
	log xlog.Logger

	catalog  RuleCatalog
	exchange Exchanger
	ifbuild  *iface.Builder
	typeOf   iface.TypeOf
	xferEng  *xfer.Engine
	boundary BoundaryProvider

	info *RefineInfo
}

// NewEngine creates a refinement engine operating on mg.
func NewEngine(mg *mesh.Multigrid, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = &xlog.NullLogger{}
	}
	if opts.Catalog == nil {
		opts.Catalog = StandardCatalog{}
	}
	return &Engine{
		mg:       mg,
		log:      opts.Logger,
		catalog:  opts.Catalog,
		exchange: opts.Exchange,
		ifbuild:  opts.Interfaces,
		typeOf:   opts.TypeOf,
		xferEng:  opts.Transfer,
		boundary: opts.Boundary,
		info:     NewRefineInfo(),
	}
}

// Info returns the engine's refine-info accounting history.
func (e *Engine) Info() *RefineInfo { return e.info }

// Mark proposes ruleID for el, pending this step's closure (spec §4.3
// step 1, "mark intake"). A zero ruleID means no refinement.
func (e *Engine) Mark(el *mesh.Element, ruleID int) {
	el.Mark = ruleID
	if ruleID == 0 {
		el.MarkClass = mesh.ClassYellow
		return
	}
	rule, ok := e.catalog.Rule(el.Tag, ruleID)
	if !ok {
		el.MarkClass = mesh.ClassYellow
		return
	}
	el.MarkClass = rule.Class
}

// MarkCoarsen flags el to have its sons removed, subject to the
// parallel coarsening rule in AdaptStep's coarsen pass.
func (e *Engine) MarkCoarsen(el *mesh.Element) {
	el.Coarsen = true
}

// AdaptStep runs one full refinement step on grid level: mark-count
// accounting, closure, rule selection, son construction, parallel son
// placement, the coarsen pass, and finalization (spec §4.3 steps 1–8).
// It aborts without partial commit if rule selection fails for any
// marked element.
func (e *Engine) AdaptStep(level int) (*Stats, error) {
	grid := e.mg.Grid(level)
	existing := grid.Elements.All()

	before := refineInfoHistory{realCount: len(existing)}
	for _, el := range existing {
		if el.Mark != 0 {
			before.markCount++
		}
	}

	if err := e.closure(grid); err != nil {
		return nil, err
	}

	stats, created, err := e.refineGrid(grid)
	if err != nil {
		// No partial commit: leave the mesh unchanged on this level.
		e.rollback(created)
		return nil, err
	}

	e.coarsen(grid)

	// Only elements that existed before this step carry a pending
	// Mark/MarkClass to commit; sons created just now already got
	// their own leaf RefineClass from constructSons.
	for _, el := range existing {
		el.Refine = el.Mark
		el.RefineClass = el.MarkClass
		el.Mark = 0
		el.MarkClass = mesh.ClassNone
		el.UpdateGreen = false
		el.Decoupled = false
		el.NewEl = false
	}

	if e.ifbuild != nil && e.typeOf != nil {
		e.ifbuild.IFAllFromScratch(e.typeOf)
	}

	dim := e.mg.Dim
	before.predictedNew[0] = before.markCount * sonsPerRedRule(dim-1)
	before.predictedNew[1] = stats.SonsCreated
	before.predictedNew[2] = before.realCount + stats.SonsCreated
	before.predictedMax = before.realCount + before.markCount*sonsPerRedRule(dim)
	e.info.record(before)

	return stats, nil
}

// Stats summarizes one AdaptStep.
type Stats struct {
	ElementsRefined int
	SonsCreated     int
	ElementsCoarsened int
}

// createdSon is one son element constructed during this step, kept so
// a failed step can be unwound without a partial commit.
type createdSon struct {
	father *mesh.Element
	son    *mesh.Element
}

func (e *Engine) rollback(created []createdSon) {
	for i := len(created) - 1; i >= 0; i-- {
		e.mg.DisposeElement(created[i].son)
	}
}

// refineGrid selects a rule and constructs sons for every marked
// element of grid, recording every son created so a failure midway can
// be unwound by the caller.
func (e *Engine) refineGrid(grid *mesh.Grid) (*Stats, []createdSon, error) {
	stats := &Stats{}
	var created []createdSon

	for _, el := range grid.Elements.All() {
		if el.MarkClass == mesh.ClassNone || el.Mark == 0 {
			continue
		}

		rule, ok := e.catalog.Rule(el.Tag, el.Mark)
		if !ok {
			return stats, created, xerrors.New(xerrors.CodeInvariant, "refine: no matching rule for element's mark-class/edge-pattern")
		}

		sons, err := e.constructSons(el, rule)
		for _, s := range sons {
			created = append(created, createdSon{father: el, son: s})
		}
		if err != nil {
			return stats, created, err
		}

		stats.ElementsRefined++
		stats.SonsCreated += len(sons)

		if e.xferEng != nil {
			e.placeSons(el, sons)
		}
	}

	return stats, created, nil
}

// placeSons issues XferCopyObj for every new son of el to every
// processor that already held a copy of el, so the transfer engine can
// establish master/ghost son copies mirroring the father's ownership
// (spec §4.3 step 6).
func (e *Engine) placeSons(el *mesh.Element, sons []*mesh.Element) {
	om := e.mg.ObjManager()
	owners := om.InfoProcListRange(el.Hdr, false)
	if len(owners) == 0 {
		return
	}
	for _, s := range sons {
		for _, o := range owners {
			if err := e.xferEng.XferCopyObj(s.Hdr, o.Proc, o.Prio); err != nil {
				e.log.Warn("refine: failed placing son on father's owner", "son_gid", s.Hdr.GID, "proc", o.Proc, "error", err.Error())
			}
		}
	}
}

// coarsen removes the sons of every element flagged Coarsen whose sons
// are all yellow (no refinement of their own). A father that is not
// PrioMaster is skipped unless its Decoupled flag is set; nothing in
// this package or in the transfer of elements sets Decoupled, so a
// ghost father's sons are not removed by this pass.
func (e *Engine) coarsen(grid *mesh.Grid) {
	for _, el := range grid.Elements.All() {
		if !el.Coarsen {
			continue
		}
		if el.Hdr.Prio != objmgr.PrioMaster && !el.Decoupled {
			continue
		}
		if !allSonsYellow(el) {
			continue
		}
		var sons []*mesh.Element
		el.Sons(func(s *mesh.Element) { sons = append(sons, s) })
		for _, s := range sons {
			e.mg.DisposeElement(s)
		}
		el.Refine = 0
		el.RefineClass = mesh.ClassNone
		el.Coarsen = false
	}
}

func allSonsYellow(el *mesh.Element) bool {
	allYellow := true
	el.Sons(func(s *mesh.Element) {
		if s.RefineClass != mesh.ClassYellow {
			allYellow = false
		}
	})
	return allYellow
}
