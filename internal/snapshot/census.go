package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/griddist/core/internal/mesh"
	"github.com/griddist/core/internal/objmgr"
)

// LevelCensus is the object inventory for a single grid level: counts of
// elements, nodes, edges and vectors bucketed by priority class.
type LevelCensus struct {
	Level    int        `json:"level"`
	Elements PrioCounts `json:"elements"`
	Nodes    PrioCounts `json:"nodes"`
	Edges    PrioCounts `json:"edges"`
	Vectors  PrioCounts `json:"vectors"`
}

// PrioCounts tallies entries of one entity kind by priority class.
type PrioCounts struct {
	Master  int `json:"master"`
	Border  int `json:"border"`
	HGhost  int `json:"hghost"`
	VGhost  int `json:"vghost"`
	VHGhost int `json:"vhghost"`
	None    int `json:"none"`
}

func (c *PrioCounts) add(prio objmgr.Priority) {
	switch prio {
	case objmgr.PrioMaster:
		c.Master++
	case objmgr.PrioBorder:
		c.Border++
	case objmgr.PrioHGhost:
		c.HGhost++
	case objmgr.PrioVGhost:
		c.VGhost++
	case objmgr.PrioVHGhost:
		c.VHGhost++
	default:
		c.None++
	}
}

// Total returns the sum of all priority classes.
func (c PrioCounts) Total() int {
	return c.Master + c.Border + c.HGhost + c.VGhost + c.VHGhost + c.None
}

// Census is a point-in-time snapshot of grid-level object inventory and
// inter-processor coupling for one rank, taken between adapt/transfer
// cycles for offline inspection.
type Census struct {
	Proc           int           `json:"proc"`
	Dim            int           `json:"dim"`
	NumLevels      int           `json:"num_levels"`
	Levels         []LevelCensus `json:"levels"`
	CoupledObjects int           `json:"coupled_objects"`
	TakenAt        time.Time     `json:"taken_at"`
}

// BuildCensus walks every level of mg and tallies object counts per
// priority class plus the object manager's coupling count.
func BuildCensus(mg *mesh.Multigrid, takenAt time.Time) *Census {
	om := mg.ObjManager()
	c := &Census{
		Proc:           om.Rank(),
		Dim:            mg.Dim,
		NumLevels:      mg.NumLevels(),
		Levels:         make([]LevelCensus, 0, mg.NumLevels()),
		CoupledObjects: om.NCoupledObjects(),
		TakenAt:        takenAt,
	}

	for level := 0; level < mg.NumLevels(); level++ {
		g := mg.Grid(level)
		lc := LevelCensus{Level: level}
		tallyElements(g.Elements, &lc.Elements)
		tallyNodes(g.Nodes, &lc.Nodes)
		tallyEdges(g.Edges, &lc.Edges)
		tallyVectors(g.Vectors, &lc.Vectors)
		c.Levels = append(c.Levels, lc)
	}

	return c
}

func tallyElements(l *mesh.PriorityList[*mesh.Element], counts *PrioCounts) {
	for _, el := range l.All() {
		counts.add(el.Hdr.Prio)
	}
}

func tallyNodes(l *mesh.PriorityList[*mesh.Node], counts *PrioCounts) {
	for _, n := range l.All() {
		counts.add(n.Hdr.Prio)
	}
}

func tallyEdges(l *mesh.PriorityList[*mesh.Edge], counts *PrioCounts) {
	for _, e := range l.All() {
		counts.add(e.Hdr.Prio)
	}
}

func tallyVectors(l *mesh.PriorityList[*mesh.Vector], counts *PrioCounts) {
	for _, v := range l.All() {
		counts.add(v.Hdr.Prio)
	}
}

// CensusWriter periodically serializes grid censuses to a Storage
// backend, keyed by processor rank and timestamp.
type CensusWriter struct {
	store  Storage
	prefix string
}

// NewCensusWriter wraps store, prefixing every uploaded key with prefix
// (e.g. "census/run-42").
func NewCensusWriter(store Storage, prefix string) *CensusWriter {
	return &CensusWriter{store: store, prefix: prefix}
}

// Write serializes c as JSON and writes it to the store under a key
// the store derives from w.prefix, c.Proc and c.TakenAt.
func (w *CensusWriter) Write(ctx context.Context, c *Census) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("census: marshal: %w", err)
	}

	if _, err := w.store.WriteCensus(ctx, w.prefix, c.Proc, c.TakenAt, data); err != nil {
		return fmt.Errorf("census: write: %w", err)
	}
	return nil
}
