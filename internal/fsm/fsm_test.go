package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fireAll(t *testing.T, f *FSM, events ...Event) {
	t.Helper()
	for _, e := range events {
		require.NoError(t, f.Fire(e))
	}
}

func TestStageCycleThenFinish(t *testing.T) {
	f := NewFSM("u1")
	fireAll(t, f, EventStart,
		EventRequest, EventGrant, EventInspect, EventReject, // 本地重试
		EventRequest, EventGrant, EventInspect, EventPass,
		EventFinish)
	assert.Equal(t, StateCompleted, f.State())
	assert.True(t, f.Terminal())
}

func TestReworkThenDiscard(t *testing.T) {
	f := NewFSM("u2")
	fireAll(t, f, EventStart,
		EventRequest, EventGrant, EventInspect, EventReject,
		EventEscalate, EventStart,
		EventRequest, EventGrant, EventInspect, EventReject,
		EventDiscard)
	assert.Equal(t, StateDiscarded, f.State())
	assert.True(t, f.Terminal())
}

func TestInvalidTransition(t *testing.T) {
	f := NewFSM("u3")
	err := f.Fire(EventGrant)
	assert.ErrorContains(t, err, "cannot fire event GRANT from state CREATED")
	assert.Equal(t, StateCreated, f.State())

	fireAll(t, f, EventStart, EventFinish)
	assert.Error(t, f.Fire(EventStart))
}
