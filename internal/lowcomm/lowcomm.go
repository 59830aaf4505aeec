// Package lowcomm is the concrete realization of the grid core's
// abstract low-communication layer (spec §6): connect/communicate/
// cleanup of typed messages built from named tables and a raw data
// chunk, as consumed by the transfer engine (C4). The core only ever
// talks to the Layer type below; Transport implementations (gRPC for
// real deployments, an in-process loopback for tests) are swappable.
package lowcomm

import (
	"context"
	"sync"

	"github.com/griddist/core/pkg/xerrors"
)

// TableID identifies one named sub-table of a message (object table,
// symbol table, new-coupling table, old-coupling table, ...).
type TableID int

// Table holds one message sub-table: a fixed-size record array.
type Table struct {
	RecordSize int
	Count      int
	Data       []byte
}

// Message is one outgoing or incoming transfer message: a set of
// named tables plus a raw object-memory chunk.
type Message struct {
	proc    int
	msgType int32
	tables  map[TableID]*Table
	order   []TableID
	chunk   []byte
	frozen  bool
}

// SetTableSize reserves count records of recordSize bytes for the
// named table (LC_SetTableSize).
func (m *Message) SetTableSize(id TableID, count, recordSize int) {
	if _, exists := m.tables[id]; !exists {
		m.order = append(m.order, id)
	}
	m.tables[id] = &Table{RecordSize: recordSize, Count: count, Data: make([]byte, count*recordSize)}
}

// SetChunkSize reserves n bytes for the message's object-memory chunk
// (LC_SetChunkSize).
func (m *Message) SetChunkSize(n int) {
	m.chunk = make([]byte, n)
}

// Freeze finalizes the message's layout and returns its total buffer
// size (LC_MsgFreeze).
func (m *Message) Freeze() int {
	m.frozen = true
	size := len(m.chunk)
	for _, id := range m.order {
		size += len(m.tables[id].Data)
	}
	return size
}

// GetPtr returns the raw bytes backing table id (LC_GetPtr).
func (m *Message) GetPtr(id TableID) []byte {
	t, ok := m.tables[id]
	if !ok {
		return nil
	}
	return t.Data
}

// GetTableLen returns the record count of table id (LC_GetTableLen).
func (m *Message) GetTableLen(id TableID) int {
	t, ok := m.tables[id]
	if !ok {
		return 0
	}
	return t.Count
}

// Chunk returns the message's raw object-memory chunk.
func (m *Message) Chunk() []byte { return m.chunk }

// GetProc returns the message's destination (outgoing) or source
// (incoming) processor (LC_MsgGetProc).
func (m *Message) GetProc() int { return m.proc }

// Transport implements the wire-level behaviour behind a Layer: who
// gets told what during Connect, and how payloads actually move
// during Communicate.
type Transport interface {
	// Connect announces, for msgType, which destinations the local
	// processor intends to send to, and returns how many messages the
	// local processor should expect to receive for msgType.
	Connect(ctx context.Context, me int, msgType int32, destinations []int) (nRecv int, err error)
	// Communicate exchanges the actual message payloads for msgType
	// and returns every message addressed to the local processor.
	Communicate(ctx context.Context, me int, msgType int32, sends []*Message) ([]*Message, error)
	// Cleanup releases any transport-level resources held for
	// completed exchanges.
	Cleanup()
}

// Layer is the per-processor low-communication handle C4 drives.
type Layer struct {
	me        int
	transport Transport

	mu      sync.Mutex
	pending map[int]*Message // keyed by destination proc, built since the last Communicate
}

// NewLayer wraps transport for the local processor rank me.
func NewLayer(me int, transport Transport) *Layer {
	return &Layer{me: me, transport: transport, pending: make(map[int]*Message)}
}

// NewSendMsg starts building a new outgoing message to dest
// (LC_NewSendMsg / LC_MsgAlloc).
func (l *Layer) NewSendMsg(dest int, msgType int32) *Message {
	m := &Message{proc: dest, msgType: msgType, tables: make(map[TableID]*Table)}
	l.mu.Lock()
	l.pending[dest] = m
	l.mu.Unlock()
	return m
}

// PrepareSend finalizes m for sending (LC_MsgPrepareSend). It is a
// no-op beyond requiring the message to have been frozen first.
func (l *Layer) PrepareSend(m *Message) error {
	if !m.frozen {
		return xerrors.New(xerrors.CodeUsage, "message sent before LC_MsgFreeze")
	}
	return nil
}

// Connect announces the destinations of every pending message for
// msgType and returns how many messages this processor should expect
// to receive (LC_Connect). A negative nRecv with a non-nil error means
// abort: peers observe the same failure via their own Connect call.
func (l *Layer) Connect(ctx context.Context, msgType int32) (int, error) {
	l.mu.Lock()
	dests := make([]int, 0, len(l.pending))
	for d := range l.pending {
		dests = append(dests, d)
	}
	l.mu.Unlock()

	n, err := l.transport.Connect(ctx, l.me, msgType, dests)
	if err != nil {
		return -1, err
	}
	return n, nil
}

// Communicate sends every pending message for msgType and returns
// every message received in return (LC_Communicate).
func (l *Layer) Communicate(ctx context.Context, msgType int32) ([]*Message, error) {
	l.mu.Lock()
	sends := make([]*Message, 0, len(l.pending))
	for _, m := range l.pending {
		sends = append(sends, m)
	}
	l.pending = make(map[int]*Message)
	l.mu.Unlock()

	return l.transport.Communicate(ctx, l.me, msgType, sends)
}

// Cleanup releases buffers owned by the low-comm layer (LC_Cleanup).
func (l *Layer) Cleanup() {
	l.mu.Lock()
	l.pending = make(map[int]*Message)
	l.mu.Unlock()
	l.transport.Cleanup()
}

// AbortCode identifies why an exchange was aborted (LC_Abort).
type AbortCode int

const (
	// AbortUser is a local, non-propagating abort (EXCEPTION_LOWCOMM_USER).
	AbortUser AbortCode = iota
	// AbortProtocol is a globally-known exception that must shut down
	// the exchange symmetrically across all processors.
	AbortProtocol
)

// Abort reports an exchange-ending failure. User aborts only affect
// the local processor; protocol aborts are expected to be observed by
// every participant via their own Connect/Communicate call returning
// an error.
func Abort(code AbortCode, reason string) error {
	if code == AbortProtocol {
		return xerrors.Wrap(xerrors.CodeProtocol, "transfer aborted", xerrors.New(xerrors.CodeProtocol, reason))
	}
	return xerrors.Wrap(xerrors.CodeResource, "transfer aborted locally", xerrors.New(xerrors.CodeResource, reason))
}
