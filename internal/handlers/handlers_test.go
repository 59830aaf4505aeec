package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/griddist/core/internal/objmgr"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	called := false
	h := &Handlers{
		Update: func(obj any) { called = true },
	}

	require.NoError(t, r.Register(1, h))
	r.RunUpdate(1, "object")
	assert.True(t, called)
}

func TestRegistry_DuplicateRegistrationFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(1, &Handlers{}))

	err := r.Register(1, &Handlers{})
	assert.Error(t, err)
}

func TestRegistry_SealedRejectsRegistration(t *testing.T) {
	r := NewRegistry()
	r.Seal()

	err := r.Register(1, &Handlers{})
	assert.Error(t, err)
}

func TestRegistry_NilHandlersAreNoop(t *testing.T) {
	r := NewRegistry()
	assert.NotPanics(t, func() {
		r.RunUpdate(99, "object")
		r.RunObjMkCons(99, "object", TotalNew)
		r.RunDestructor(99, "object")
		r.RunSetPriority(99, "object", objmgr.PrioMaster, objmgr.PrioBorder)
		r.RunLDataConstructor(99, "object")
	})
}

func TestRegistry_SetPriorityReceivesOldAndNew(t *testing.T) {
	r := NewRegistry()
	var gotOld, gotNew objmgr.Priority
	require.NoError(t, r.Register(1, &Handlers{
		SetPriority: func(obj any, oldPrio, newPrio objmgr.Priority) {
			gotOld, gotNew = oldPrio, newPrio
		},
	}))

	r.RunSetPriority(1, "object", objmgr.PrioHGhost, objmgr.PrioMaster)
	assert.Equal(t, objmgr.PrioHGhost, gotOld)
	assert.Equal(t, objmgr.PrioMaster, gotNew)
}

func TestRefTypeField_ResolveType(t *testing.T) {
	static := RefTypeField{Name: "father", Static: 7, HasStatic: true}
	assert.Equal(t, int32(7), static.ResolveType(nil))

	dynamic := RefTypeField{
		Name: "side",
		ByHandler: func(parent any) int32 {
			return parent.(int32) + 1
		},
	}
	assert.Equal(t, int32(6), dynamic.ResolveType(int32(5)))
}
