package lowcomm

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/griddist/core/pkg/xerrors"
	"github.com/griddist/core/pkg/xlog"
)

// Envelope is the wire frame exchanged between two processors for one
// phase ("connect" or "communicate") of one msgType round. It carries
// either a destination announcement (phase "connect") or a real
// message payload (phase "communicate").
type Envelope struct {
	FromProc     int
	MsgType      int32
	Phase        string
	Destinations []int
	DestProc     int
	TableOrder   []TableID
	TableSizes   map[TableID]int
	TableBytes   map[TableID][]byte
	Chunk        []byte
}

const gobCodecName = "griddist-gob"

func init() {
	encoding.RegisterCodec(gobCodec{})
}

// AddressBook maps processor rank to dial target. Every processor
// in the run needs the same book.
type AddressBook map[int]string

// GRPCTransport is the real, networked Transport: every processor runs
// a server accepting an Exchange stream and dials its peers' servers
// to push its own announcements/payloads. Because a processor cannot
// know in advance how many peers will address it, a round (one
// msgType, one phase) is a broadcast barrier: every one of numProcs
// processors both sends to and receives from every other one, exactly
// like LoopbackNetwork, just carried over the network instead of
// in-process channels.
type GRPCTransport struct {
	me        int
	numProcs  int
	addresses AddressBook
	log       xlog.Logger

	server   *grpc.Server
	listener net.Listener

	mu      sync.Mutex
	rounds  map[exchangeKey]*netRound
	dialMu  sync.Mutex
	conns   map[int]*grpc.ClientConn
}

type netRound struct {
	mu      sync.Mutex
	arrived int
	connect []*Envelope // one per remote proc, phase "connect"
	deliver []*Message  // accumulated, phase "communicate"
	done    chan struct{}
}

// NewGRPCTransport starts a server for processor me listening on
// listenAddr and prepares client connections to every peer in
// addresses. numProcs is the size of the whole run.
func NewGRPCTransport(me, numProcs int, listenAddr string, addresses AddressBook, log xlog.Logger) (*GRPCTransport, error) {
	if log == nil {
		log = &xlog.NullLogger{}
	}

	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeResource, "lowcomm: listen failed", err)
	}

	t := &GRPCTransport{
		me:        me,
		numProcs:  numProcs,
		addresses: addresses,
		log:       log,
		listener:  lis,
		rounds:    make(map[exchangeKey]*netRound),
		conns:     make(map[int]*grpc.ClientConn),
	}

	t.server = grpc.NewServer()
	t.server.RegisterService(&exchangeServiceDesc, t)
	go func() {
		if err := t.server.Serve(lis); err != nil {
			t.log.Warn("lowcomm: server stopped", "error", err.Error())
		}
	}()

	return t, nil
}

func (t *GRPCTransport) dial(proc int) (*grpc.ClientConn, error) {
	t.dialMu.Lock()
	defer t.dialMu.Unlock()

	if cc, ok := t.conns[proc]; ok {
		return cc, nil
	}
	addr, ok := t.addresses[proc]
	if !ok {
		return nil, xerrors.New(xerrors.CodeUsage, fmt.Sprintf("lowcomm: no address for proc %d", proc))
	}
	cc, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(gobCodecName)),
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeResource, "lowcomm: dial failed", err)
	}
	t.conns[proc] = cc
	return cc, nil
}

func (t *GRPCTransport) roundFor(key exchangeKey) *netRound {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rounds[key]
	if !ok {
		r = &netRound{done: make(chan struct{})}
		t.rounds[key] = r
	}
	return r
}

func (t *GRPCTransport) clearRound(key exchangeKey) {
	t.mu.Lock()
	delete(t.rounds, key)
	t.mu.Unlock()
}

func (t *GRPCTransport) broadcast(ctx context.Context, env *Envelope) error {
	for proc := range t.addresses {
		if proc == t.me {
			continue
		}
		if err := t.send(ctx, proc, env); err != nil {
			return err
		}
	}
	return nil
}

func (t *GRPCTransport) send(ctx context.Context, proc int, env *Envelope) error {
	cc, err := t.dial(proc)
	if err != nil {
		return err
	}
	stream, err := cc.NewStream(ctx, &exchangeStreamDesc, exchangeMethod, grpc.CallContentSubtype(gobCodecName))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeProtocol, "lowcomm: open stream failed", err)
	}
	if err := stream.SendMsg(env); err != nil {
		return xerrors.Wrap(xerrors.CodeProtocol, "lowcomm: send failed", err)
	}
	return stream.CloseSend()
}

// deliverEnvelope is invoked by the server handler for every Envelope received
// from a peer.
func (t *GRPCTransport) deliverEnvelope(env *Envelope) {
	key := exchangeKey{msgType: env.MsgType, phase: env.Phase}
	r := t.roundFor(key)

	r.mu.Lock()
	switch env.Phase {
	case "connect":
		r.connect = append(r.connect, env)
	case "communicate":
		r.deliver = append(r.deliver, envelopeToMessage(env))
	}
	r.arrived++
	if r.arrived == t.numProcs-1 {
		t.clearRound(key)
		close(r.done)
	}
	r.mu.Unlock()
}

// Connect implements Transport.
func (t *GRPCTransport) Connect(ctx context.Context, me int, msgType int32, destinations []int) (int, error) {
	key := exchangeKey{msgType: msgType, phase: "connect"}
	r := t.roundFor(key)

	if err := t.broadcast(ctx, &Envelope{FromProc: me, MsgType: msgType, Phase: "connect", Destinations: destinations}); err != nil {
		return 0, err
	}
	if t.numProcs <= 1 {
		return 0, nil
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(30 * time.Second):
		return 0, xerrors.New(xerrors.CodeProtocol, "lowcomm: connect round timed out")
	}

	n := 0
	r.mu.Lock()
	for _, env := range r.connect {
		for _, d := range env.Destinations {
			if d == me {
				n++
			}
		}
	}
	r.mu.Unlock()
	return n, nil
}

// Communicate implements Transport.
func (t *GRPCTransport) Communicate(ctx context.Context, me int, msgType int32, sends []*Message) ([]*Message, error) {
	key := exchangeKey{msgType: msgType, phase: "communicate"}
	r := t.roundFor(key)

	for _, m := range sends {
		if err := t.send(ctx, m.proc, messageToEnvelope(me, msgType, m)); err != nil {
			return nil, err
		}
	}
	if t.numProcs <= 1 {
		return nil, nil
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(30 * time.Second):
		return nil, xerrors.New(xerrors.CodeProtocol, "lowcomm: communicate round timed out")
	}

	r.mu.Lock()
	out := r.deliver
	r.mu.Unlock()
	return out, nil
}

// Cleanup implements Transport: closes peer connections and stops the
// local server.
func (t *GRPCTransport) Cleanup() {
	t.dialMu.Lock()
	for _, cc := range t.conns {
		cc.Close()
	}
	t.conns = make(map[int]*grpc.ClientConn)
	t.dialMu.Unlock()

	t.server.GracefulStop()
}

func messageToEnvelope(from int, msgType int32, m *Message) *Envelope {
	env := &Envelope{
		FromProc:   from,
		MsgType:    msgType,
		Phase:      "communicate",
		DestProc:   m.proc,
		TableOrder: append([]TableID(nil), m.order...),
		TableSizes: make(map[TableID]int, len(m.tables)),
		TableBytes: make(map[TableID][]byte, len(m.tables)),
		Chunk:      m.chunk,
	}
	for id, tbl := range m.tables {
		env.TableSizes[id] = tbl.RecordSize
		env.TableBytes[id] = tbl.Data
	}
	return env
}

func envelopeToMessage(env *Envelope) *Message {
	m := &Message{proc: env.FromProc, msgType: env.MsgType, tables: make(map[TableID]*Table), chunk: env.Chunk, frozen: true}
	for _, id := range env.TableOrder {
		data := env.TableBytes[id]
		size := env.TableSizes[id]
		count := 0
		if size > 0 {
			count = len(data) / size
		}
		m.tables[id] = &Table{RecordSize: size, Count: count, Data: data}
		m.order = append(m.order, id)
	}
	return m
}
