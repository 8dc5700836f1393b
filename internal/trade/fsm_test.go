package trade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realmsync.io/internal/model"
)

func TestTransition(t *testing.T) {
	cases := []struct {
		from State
		ev   event
		want State
	}{
		{StateNegotiating, evConfirmA, StateConfirmedA},
		{StateNegotiating, evConfirmB, StateConfirmedB},
		{StateConfirmedA, evConfirmA, StateConfirmedA},
		{StateConfirmedA, evConfirmB, StateCommitting},
		{StateConfirmedB, evConfirmA, StateCommitting},
		{StateConfirmedA, evStage, StateNegotiating},
		{StateConfirmedB, evStage, StateNegotiating},
		{StateCommitting, evCommitted, StateCommitted},
		{StateCommitting, evFailed, StateFailed},
		{StateConfirmedB, evCancel, StateCancelled},
	}
	for _, tc := range cases {
		got, err := transition(tc.from, tc.ev)
		require.NoError(t, err, "%s/%d", tc.from, tc.ev)
		assert.Equal(t, tc.want, got, "%s/%d", tc.from, tc.ev)
	}
}

func TestTransition_Rejects(t *testing.T) {
	for _, s := range []State{StateCommitting, StateCommitted, StateCancelled, StateFailed} {
		_, err := transition(s, evStage)
		assert.ErrorIs(t, err, model.ErrStale, string(s))
		_, err = transition(s, evCancel)
		assert.ErrorIs(t, err, model.ErrStale, string(s))
	}
	_, err := transition(StateNegotiating, evCommitted)
	assert.ErrorIs(t, err, model.ErrStale)
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateCommitting.Terminal())
}
