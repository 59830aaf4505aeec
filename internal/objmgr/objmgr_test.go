package objmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/griddist/core/pkg/xerrors"
)

func newTestManager() *Manager {
	return New(0)
}

func TestAddCoupling_NewObjectRegistersInTable(t *testing.T) {
	m := newTestManager()
	hdr := m.NewHeader(1, 0, 0, PrioMaster)

	cp, err := m.AddCoupling(hdr, 1, PrioBorder)
	require.NoError(t, err)
	require.NotNil(t, cp)

	assert.Equal(t, 1, cp.Proc)
	assert.Equal(t, PrioBorder, cp.Prio)
	assert.True(t, hdr.HasCoupling())
	assert.Equal(t, 1, hdr.NCoupling())
	assert.Equal(t, 1, m.NCoupledObjects())
}

func TestAddCoupling_IdempotentOverwritesPriority(t *testing.T) {
	m := newTestManager()
	hdr := m.NewHeader(1, 0, 0, PrioMaster)

	_, err := m.AddCoupling(hdr, 2, PrioHGhost)
	require.NoError(t, err)

	cp, err := m.AddCoupling(hdr, 2, PrioVGhost)
	require.NoError(t, err)

	assert.Equal(t, PrioVGhost, cp.Prio)
	assert.Equal(t, 1, hdr.NCoupling(), "re-adding the same proc must not create a second coupling")
}

func TestAddCoupling_RejectsSelf(t *testing.T) {
	m := newTestManager()
	hdr := m.NewHeader(1, 0, 0, PrioMaster)

	_, err := m.AddCoupling(hdr, 0, PrioBorder)
	assert.ErrorIs(t, err, xerrors.ErrSelfDest)
}

func TestAddCoupling_MultipleProcsThreadOntoChain(t *testing.T) {
	m := newTestManager()
	hdr := m.NewHeader(1, 0, 0, PrioMaster)

	_, err := m.AddCoupling(hdr, 1, PrioBorder)
	require.NoError(t, err)
	_, err = m.AddCoupling(hdr, 2, PrioHGhost)
	require.NoError(t, err)
	_, err = m.AddCoupling(hdr, 3, PrioVGhost)
	require.NoError(t, err)

	assert.Equal(t, 3, hdr.NCoupling())

	procs := m.InfoProcListRange(hdr, false)
	assert.Len(t, procs, 3)

	seen := map[int]Priority{}
	for _, pp := range procs {
		seen[pp.Proc] = pp.Prio
	}
	assert.Equal(t, PrioBorder, seen[1])
	assert.Equal(t, PrioHGhost, seen[2])
	assert.Equal(t, PrioVGhost, seen[3])
}

func TestAddCoupling_GrowsObjectTable(t *testing.T) {
	m := New(0)
	hdrs := make([]*Header, 0, initialObjTableSize+10)
	for i := 0; i < initialObjTableSize+10; i++ {
		hdr := m.NewHeader(GID(i), 0, 0, PrioMaster)
		_, err := m.AddCoupling(hdr, 1, PrioBorder)
		require.NoError(t, err)
		hdrs = append(hdrs, hdr)
	}

	assert.Equal(t, initialObjTableSize+10, m.NCoupledObjects())
	assert.GreaterOrEqual(t, len(m.objTable), initialObjTableSize+10)
}

func TestModCoupling_UpdatesExistingPriority(t *testing.T) {
	m := newTestManager()
	hdr := m.NewHeader(1, 0, 0, PrioMaster)
	_, err := m.AddCoupling(hdr, 1, PrioBorder)
	require.NoError(t, err)

	cp, err := m.ModCoupling(hdr, 1, PrioHGhost)
	require.NoError(t, err)
	assert.Equal(t, PrioHGhost, cp.Prio)
}

func TestModCoupling_FailsWhenNoCouplings(t *testing.T) {
	m := newTestManager()
	hdr := m.NewHeader(1, 0, 0, PrioMaster)

	_, err := m.ModCoupling(hdr, 1, PrioBorder)
	assert.ErrorIs(t, err, xerrors.ErrNoCoupling)
}

func TestModCoupling_FailsWhenProcUnknown(t *testing.T) {
	m := newTestManager()
	hdr := m.NewHeader(1, 0, 0, PrioMaster)
	_, err := m.AddCoupling(hdr, 1, PrioBorder)
	require.NoError(t, err)

	_, err = m.ModCoupling(hdr, 2, PrioBorder)
	assert.ErrorIs(t, err, xerrors.ErrNoCoupling)
}

func TestDelCoupling_RemovesSingleCouplingAndMarksLocal(t *testing.T) {
	m := newTestManager()
	hdr := m.NewHeader(1, 0, 0, PrioMaster)
	_, err := m.AddCoupling(hdr, 1, PrioBorder)
	require.NoError(t, err)

	m.DelCoupling(hdr, 1)

	assert.False(t, hdr.HasCoupling())
	assert.Equal(t, 0, m.NCoupledObjects())
	assert.Equal(t, -1, hdr.objIndex)
}

func TestDelCoupling_UnknownProcIsNoop(t *testing.T) {
	m := newTestManager()
	hdr := m.NewHeader(1, 0, 0, PrioMaster)
	_, err := m.AddCoupling(hdr, 1, PrioBorder)
	require.NoError(t, err)

	m.DelCoupling(hdr, 99)

	assert.True(t, hdr.HasCoupling())
	assert.Equal(t, 1, hdr.NCoupling())
}

func TestDelCoupling_CompactsObjectTableSwapWithLast(t *testing.T) {
	m := newTestManager()
	a := m.NewHeader(1, 0, 0, PrioMaster)
	b := m.NewHeader(2, 0, 0, PrioMaster)
	c := m.NewHeader(3, 0, 0, PrioMaster)

	for _, h := range []*Header{a, b, c} {
		_, err := m.AddCoupling(h, 1, PrioBorder)
		require.NoError(t, err)
	}

	// a occupies index 0; deleting its only coupling should pull the
	// last registered object (c, index 2) into slot 0.
	m.DelCoupling(a, 1)

	assert.Equal(t, 2, m.NCoupledObjects())
	assert.Equal(t, 0, c.objIndex)
	assert.True(t, c.HasCoupling())
	assert.True(t, b.HasCoupling())
	assert.False(t, a.HasCoupling())
}

func TestDelCoupling_KeepsObjectRegisteredWhileOtherCouplingsRemain(t *testing.T) {
	m := newTestManager()
	hdr := m.NewHeader(1, 0, 0, PrioMaster)
	_, err := m.AddCoupling(hdr, 1, PrioBorder)
	require.NoError(t, err)
	_, err = m.AddCoupling(hdr, 2, PrioHGhost)
	require.NoError(t, err)

	m.DelCoupling(hdr, 1)

	assert.True(t, hdr.HasCoupling())
	assert.Equal(t, 1, hdr.NCoupling())
	assert.Equal(t, 1, m.NCoupledObjects())
}

func TestDisposeCouplingList_FreesChainAndClears(t *testing.T) {
	m := newTestManager()
	hdr := m.NewHeader(1, 0, 0, PrioMaster)
	_, err := m.AddCoupling(hdr, 1, PrioBorder)
	require.NoError(t, err)
	_, err = m.AddCoupling(hdr, 2, PrioHGhost)
	require.NoError(t, err)

	m.DisposeCouplingList(hdr)

	assert.Nil(t, hdr.Couplings())
	assert.Equal(t, 0, hdr.NCoupling())
}

func TestInfoProcListRange_IncludesSelfEntry(t *testing.T) {
	m := newTestManager()
	hdr := m.NewHeader(1, 0, 0, PrioMaster)
	_, err := m.AddCoupling(hdr, 1, PrioBorder)
	require.NoError(t, err)

	procs := m.InfoProcListRange(hdr, true)
	require.Len(t, procs, 2)
	assert.Equal(t, 0, procs[0].Proc)
	assert.Equal(t, PrioMaster, procs[0].Prio)
}

func TestCplAllocator_FreelistRecyclesRecords(t *testing.T) {
	a := newCplAllocator(true)

	cp1 := a.New()
	a.Free(cp1)
	cp2 := a.New()

	assert.Same(t, cp1, cp2, "freed coupling should be recycled before a new segment is carved")
}

func TestCplAllocator_NoFreelistAllocatesFresh(t *testing.T) {
	a := newCplAllocator(false)

	cp1 := a.New()
	a.Free(cp1)
	cp2 := a.New()

	assert.NotSame(t, cp1, cp2)
}

func TestCplAllocator_SegmentGrowthAcrossBoundary(t *testing.T) {
	a := newCplAllocator(true)

	cps := make([]*Coupling, cplSegmentSize+5)
	for i := range cps {
		cps[i] = a.New()
	}

	assert.Len(t, a.segments, 2)
}
