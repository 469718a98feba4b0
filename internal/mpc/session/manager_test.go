package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/kashguard/go-waas-device/internal/mpc/settlement"
	"github.com/kashguard/go-waas-device/internal/waas"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const group = "pools/p1/deviceGroups/g1"

// MockLister 模拟远端查询
type MockLister struct {
	mock.Mock
}

func (m *MockLister) ListPendingOperations(ctx context.Context, deviceGroup string) ([]*waas.PendingOperation, error) {
	args := m.Called(ctx, deviceGroup)
	ops, _ := args.Get(0).([]*waas.PendingOperation)
	return ops, args.Error(1)
}

// listerFunc adapts a function to Lister.
type listerFunc func(ctx context.Context, deviceGroup string) ([]*waas.PendingOperation, error)

func (f listerFunc) ListPendingOperations(ctx context.Context, deviceGroup string) ([]*waas.PendingOperation, error) {
	return f(ctx, deviceGroup)
}

func newTestManager(lister Lister) *Manager {
	return NewManager(lister, settlement.NewLane("poll", 0), time2.NewMockClock(time.Now()))
}

func TestManager_PollUntilMatched(t *testing.T) {
	target := &waas.PendingOperation{Kind: protocol.KindCreateSignature, DeviceGroup: group, Operation: "operations/s1", MPCData: "AAA"}
	other := &waas.PendingOperation{Kind: protocol.KindCreateSignature, DeviceGroup: group, Operation: "operations/s0"}

	lister := new(MockLister)
	lister.On("ListPendingOperations", mock.Anything, group).Return(nil, nil).Once()
	lister.On("ListPendingOperations", mock.Anything, group).Return([]*waas.PendingOperation{other}, nil).Once()
	lister.On("ListPendingOperations", mock.Anything, group).Return([]*waas.PendingOperation{other, target}, nil).Once()

	m := newTestManager(lister)
	ops, err := m.Poll(context.Background(), group, time.Millisecond, AcceptOperation(protocol.KindCreateSignature, "operations/s1"))
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Same(t, target, ops[0])

	lister.AssertExpectations(t)
	assert.False(t, m.Active(group))
	assert.Empty(t, m.Sessions())
}

func TestManager_AcceptKindOrder(t *testing.T) {
	a := &waas.PendingOperation{Kind: protocol.KindCreateDeviceGroup, MPCOperation: "m1"}
	b := &waas.PendingOperation{Kind: protocol.KindPrepareDeviceArchive, MPCOperation: "m2"}
	c := &waas.PendingOperation{Kind: protocol.KindCreateDeviceGroup, MPCOperation: "m3"}

	lister := new(MockLister)
	lister.On("ListPendingOperations", mock.Anything, group).Return([]*waas.PendingOperation{a, b, c}, nil).Once()

	m := newTestManager(lister)
	s, err := m.Start(context.Background(), group, time.Millisecond, AcceptKind(protocol.KindCreateDeviceGroup))
	require.NoError(t, err)

	ops, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []*waas.PendingOperation{c, a}, ops)

	snap := s.Snapshot()
	assert.Equal(t, SessionStatusMatched, snap.Status)
	assert.Equal(t, 1, snap.Cycles)
	require.NotNil(t, snap.EndedAt)
	assert.Contains(t, snap.SessionID, "poll-")
}

func TestManager_RemoteErrorTerminates(t *testing.T) {
	remote := protocol.NewTransportError(errors.New("connection reset"))
	lister := new(MockLister)
	lister.On("ListPendingOperations", mock.Anything, group).Return(nil, remote).Once()

	m := newTestManager(lister)
	s, err := m.Start(context.Background(), group, time.Millisecond, AcceptKind(protocol.KindCreateDeviceGroup))
	require.NoError(t, err)

	_, err = s.Wait(context.Background())
	assert.Equal(t, remote, err)
	assert.Equal(t, SessionStatusFailed, s.Snapshot().Status)
	lister.AssertExpectations(t)
}

func TestManager_StopIsIdempotent(t *testing.T) {
	var calls atomic.Int32
	lister := listerFunc(func(ctx context.Context, deviceGroup string) ([]*waas.PendingOperation, error) {
		calls.Add(1)
		return nil, nil
	})
	m := newTestManager(lister)

	assert.Equal(t, StopResultNotActive, m.Stop(group))

	s, err := m.Start(context.Background(), group, 5*time.Millisecond, AcceptKind(protocol.KindAddDevice))
	require.NoError(t, err)
	assert.True(t, m.Active(group))

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, time.Millisecond)

	assert.Equal(t, StopResultStopped, m.Stop(group))
	assert.Equal(t, StopResultNotActive, m.Stop(group))

	_, err = s.Wait(context.Background())
	assert.True(t, errors.Is(err, ErrPollStopped))
	assert.Equal(t, SessionStatusStopped, s.Snapshot().Status)
	assert.False(t, m.Active(group))
}

func TestManager_RejectsSecondSession(t *testing.T) {
	lister := listerFunc(func(ctx context.Context, deviceGroup string) ([]*waas.PendingOperation, error) {
		return nil, nil
	})
	m := newTestManager(lister)

	first, err := m.Start(context.Background(), group, time.Millisecond, AcceptKind(protocol.KindAddDevice))
	require.NoError(t, err)

	_, err = m.Start(context.Background(), group, time.Millisecond, AcceptKind(protocol.KindAddDevice))
	assert.True(t, protocol.HasCode(err, protocol.CodePollSessionActive))

	// other parents are independent
	other, err := m.Start(context.Background(), "pools/p1/deviceGroups/g2", time.Millisecond, AcceptKind(protocol.KindAddDevice))
	require.NoError(t, err)
	assert.Len(t, m.Sessions(), 2)

	assert.Equal(t, 2, m.StopAll())
	<-first.Done()
	<-other.Done()

	again, err := m.Start(context.Background(), group, time.Millisecond, AcceptKind(protocol.KindAddDevice))
	require.NoError(t, err)
	m.Stop(group)
	<-again.Done()
}

func TestManager_ContextCancelled(t *testing.T) {
	lister := listerFunc(func(ctx context.Context, deviceGroup string) ([]*waas.PendingOperation, error) {
		return nil, nil
	})
	m := newTestManager(lister)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := m.Start(ctx, group, time.Hour, AcceptKind(protocol.KindAddDevice))
	require.NoError(t, err)
	cancel()

	_, err = s.Wait(context.Background())
	assert.True(t, protocol.HasCode(err, protocol.CodeCancelled))
	assert.Equal(t, SessionStatusCancelled, s.Snapshot().Status)
	assert.False(t, m.Active(group))
}

func TestManager_StartValidation(t *testing.T) {
	m := newTestManager(new(MockLister))

	_, err := m.Start(context.Background(), "", time.Second, AcceptKind(protocol.KindAddDevice))
	assert.True(t, protocol.HasCode(err, protocol.CodeInvalidArgument))

	_, err = m.Start(context.Background(), group, time.Second, nil)
	assert.True(t, protocol.HasCode(err, protocol.CodeInvalidArgument))
}
