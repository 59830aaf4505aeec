package lowcomm

import (
	"context"
	"sync"
)

// exchangeKey identifies one synchronized round of an exchange: every
// participating processor must call Connect (then Communicate) with
// the same msgType before any of them proceeds past the barrier.
type exchangeKey struct {
	msgType int32
	phase   string // "connect" or "communicate"
}

type barrier struct {
	mu       sync.Mutex
	arrived  int
	dests    [][]int        // per-proc destination lists, phase "connect"
	sends    [][]*Message    // per-proc outgoing messages, phase "communicate"
	recv     [][]*Message    // computed once by the last arriving processor
	recvN    []int
	done     chan struct{}
}

// LoopbackNetwork simulates numProcs processors inside one Go process
// with goroutine-synchronized barriers, standing in for a real
// transport in unit tests.
type LoopbackNetwork struct {
	numProcs int

	mu       sync.Mutex
	barriers map[exchangeKey]*barrier
}

// NewLoopbackNetwork creates a simulated network of numProcs
// processors.
func NewLoopbackNetwork(numProcs int) *LoopbackNetwork {
	return &LoopbackNetwork{numProcs: numProcs, barriers: make(map[exchangeKey]*barrier)}
}

// Transport returns the Transport view of the network for processor
// rank me.
func (n *LoopbackNetwork) Transport(me int) Transport {
	return &loopbackTransport{net: n, me: me}
}

func (n *LoopbackNetwork) barrierFor(key exchangeKey) *barrier {
	n.mu.Lock()
	defer n.mu.Unlock()

	b, ok := n.barriers[key]
	if !ok {
		b = &barrier{
			dests: make([][]int, n.numProcs),
			sends: make([][]*Message, n.numProcs),
			recv:  make([][]*Message, n.numProcs),
			recvN: make([]int, n.numProcs),
			done:  make(chan struct{}),
		}
		n.barriers[key] = b
	}
	return b
}

func (n *LoopbackNetwork) clearBarrier(key exchangeKey) {
	n.mu.Lock()
	delete(n.barriers, key)
	n.mu.Unlock()
}

type loopbackTransport struct {
	net *LoopbackNetwork
	me  int
}

func (t *loopbackTransport) Connect(ctx context.Context, me int, msgType int32, destinations []int) (int, error) {
	key := exchangeKey{msgType: msgType, phase: "connect"}
	b := t.net.barrierFor(key)

	b.mu.Lock()
	b.dests[me] = destinations
	b.arrived++
	last := b.arrived == t.net.numProcs
	if last {
		for src, dests := range b.dests {
			for _, d := range dests {
				_ = src
				b.recvN[d]++
			}
		}
		t.net.clearBarrier(key)
		close(b.done)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return b.recvN[me], nil
}

func (t *loopbackTransport) Communicate(ctx context.Context, me int, msgType int32, sends []*Message) ([]*Message, error) {
	key := exchangeKey{msgType: msgType, phase: "communicate"}
	b := t.net.barrierFor(key)

	b.mu.Lock()
	b.sends[me] = sends
	b.arrived++
	last := b.arrived == t.net.numProcs
	if last {
		for src, fromProc := range b.sends {
			for _, m := range fromProc {
				in := *m
				in.proc = src
				b.recv[m.proc] = append(b.recv[m.proc], &in)
			}
		}
		t.net.clearBarrier(key)
		close(b.done)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.recv[me], nil
}

func (t *loopbackTransport) Cleanup() {}
