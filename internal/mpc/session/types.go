package session

import (
	"context"
	"sync"
	"time"

	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/kashguard/go-waas-device/internal/waas"
)

// Session 轮询会话快照
type Session struct {
	SessionID string
	Parent    string
	Interval  time.Duration
	Status    SessionStatus
	Cycles    int
	StartedAt time.Time
	EndedAt   *time.Time
}

// SessionStatus 会话状态
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusMatched   SessionStatus = "matched"
	SessionStatusStopped   SessionStatus = "stopped"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// StopResult 停止结果，仅供调用方参考，不是错误
type StopResult int

const (
	StopResultNotActive StopResult = iota
	StopResultStopped
)

func (r StopResult) String() string {
	if r == StopResultStopped {
		return "stopped"
	}
	return "not_active"
}

var (
	// ErrPollStopped 会话被 Stop 终止
	ErrPollStopped = protocol.NewDomainError(protocol.CodePollStopped, "poll session stopped")
	// ErrPollSessionActive 同一父资源已有活动会话
	ErrPollSessionActive = protocol.NewDomainError(protocol.CodePollSessionActive, "a poll session is already active for this parent")
)

// Accept inspects one poll cycle's batch. It returns the operations selected
// for processing and whether polling is finished. A batch that selects
// nothing normally returns done=false so the next cycle runs after the interval.
type Accept func(batch []*waas.PendingOperation) (selected []*waas.PendingOperation, done bool)

// PollSession is one running poll loop over a parent resource.
type PollSession struct {
	id       string
	parent   string
	interval time.Duration
	accept   Accept
	cancel   context.CancelFunc
	done     chan struct{}

	mu        sync.Mutex
	status    SessionStatus
	stopped   bool
	cycles    int
	startedAt time.Time
	endedAt   *time.Time
	result    []*waas.PendingOperation
	err       error
}

func (s *PollSession) ID() string {
	return s.id
}

func (s *PollSession) Parent() string {
	return s.parent
}

// Done is closed once the loop has finished.
func (s *PollSession) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the loop finishes or ctx ends and returns the selected
// operations of the terminating cycle.
func (s *PollSession) Wait(ctx context.Context) ([]*waas.PendingOperation, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		return nil, protocol.NewCancelledError(ctx.Err()).WithOperation(s.parent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

// Snapshot 当前会话状态
func (s *PollSession) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Session{
		SessionID: s.id,
		Parent:    s.parent,
		Interval:  s.interval,
		Status:    s.status,
		Cycles:    s.cycles,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
	}
}
