package coordinator

import (
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle_HappyPath(t *testing.T) {
	var seen []State
	l := NewLifecycle(FlowCreateWallet, time2.NewMockClock(time.Now()), func(_ *Lifecycle, tr Transition) {
		seen = append(seen, tr.To)
	})

	assert.Equal(t, StateNew, l.State())
	for _, next := range []State{StateInitiated, StatePending, StateComputed, StatePending, StateComputed, StateConfirmed} {
		require.NoError(t, l.Advance(next), "to %s", next)
	}

	assert.Equal(t, StateConfirmed, l.State())
	assert.True(t, l.State().Terminal())
	assert.Len(t, l.History(), 6)
	assert.Equal(t, []State{StateInitiated, StatePending, StateComputed, StatePending, StateComputed, StateConfirmed}, seen)
	assert.Nil(t, l.Err())
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []State
		next State
	}{
		{"skip initiate", nil, StatePending},
		{"confirm before compute", []State{StateInitiated, StatePending}, StateConfirmed},
		{"compute without poll", []State{StateInitiated}, StateComputed},
		{"leave confirmed", []State{StateInitiated, StatePending, StateComputed, StateConfirmed}, StatePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLifecycle(FlowSign, nil, nil)
			for _, s := range tt.path {
				require.NoError(t, l.Advance(s))
			}
			err := l.Advance(tt.next)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.True(t, protocol.HasCode(err, protocol.CodeInvalidTransition))
		})
	}
}

func TestLifecycle_Fail(t *testing.T) {
	l := NewLifecycle(FlowBackup, nil, nil)
	require.NoError(t, l.Advance(StateInitiated))

	cause := errors.New("poll failed")
	require.NoError(t, l.Fail(cause))
	assert.Equal(t, StateFailed, l.State())
	assert.Equal(t, cause, l.Err())

	assert.Error(t, l.Fail(cause))
	assert.Error(t, l.Advance(StatePending))
}
