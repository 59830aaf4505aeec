package lowcomm

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackNetwork_ConnectReportsExpectedRecvCount(t *testing.T) {
	net := NewLoopbackNetwork(3)
	ctx := context.Background()

	var wg sync.WaitGroup
	nRecv := make([]int, 3)
	errs := make([]error, 3)

	dests := [][]int{
		{1, 2}, // proc 0 sends to 1 and 2
		{2},    // proc 1 sends to 2
		{},     // proc 2 sends to nobody
	}

	for p := 0; p < 3; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			nRecv[p], errs[p] = net.Transport(p).Connect(ctx, p, 1, dests[p])
		}(p)
	}
	wg.Wait()

	for p := 0; p < 3; p++ {
		require.NoError(t, errs[p])
	}
	assert.Equal(t, 0, nRecv[0])
	assert.Equal(t, 1, nRecv[1])
	assert.Equal(t, 2, nRecv[2])
}

func TestLoopbackNetwork_CommunicateDeliversToDestination(t *testing.T) {
	network := NewLoopbackNetwork(2)
	ctx := context.Background()

	layer0 := NewLayer(0, network.Transport(0))
	layer1 := NewLayer(1, network.Transport(1))

	m := layer0.NewSendMsg(1, 7)
	m.SetTableSize(TableID(0), 2, 4)
	copy(m.GetPtr(TableID(0)), []byte{1, 2, 3, 4})
	m.Freeze()

	var wg sync.WaitGroup
	var recv0, recv1 []*Message
	var err0, err1 error

	wg.Add(2)
	go func() { defer wg.Done(); recv0, err0 = layer0.Communicate(ctx, 7) }()
	go func() { defer wg.Done(); recv1, err1 = layer1.Communicate(ctx, 7) }()
	wg.Wait()

	require.NoError(t, err0)
	require.NoError(t, err1)
	assert.Empty(t, recv0)
	require.Len(t, recv1, 1)
	assert.Equal(t, 0, recv1[0].GetProc())
	assert.Equal(t, 2, recv1[0].GetTableLen(TableID(0)))
	assert.Equal(t, []byte{1, 2, 3, 4}, recv1[0].GetPtr(TableID(0)))
}

func TestLayer_PrepareSendRejectsUnfrozenMessage(t *testing.T) {
	network := NewLoopbackNetwork(1)
	layer := NewLayer(0, network.Transport(0))

	m := layer.NewSendMsg(0, 1)
	err := layer.PrepareSend(m)
	assert.Error(t, err)

	m.Freeze()
	assert.NoError(t, layer.PrepareSend(m))
}

func TestMessage_FreezeAccountsForTablesAndChunk(t *testing.T) {
	network := NewLoopbackNetwork(1)
	layer := NewLayer(0, network.Transport(0))

	m := layer.NewSendMsg(0, 1)
	m.SetTableSize(TableID(0), 3, 8)
	m.SetChunkSize(16)

	assert.Equal(t, 3*8+16, m.Freeze())
}
