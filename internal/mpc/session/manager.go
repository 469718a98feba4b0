package session

import (
	"context"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/google/uuid"
	"github.com/kashguard/go-waas-device/internal/metrics"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/kashguard/go-waas-device/internal/mpc/settlement"
	"github.com/kashguard/go-waas-device/internal/waas"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultInterval 未指定间隔时的轮询周期
const DefaultInterval = 200 * time.Millisecond

// Lister 远端待处理操作查询
type Lister interface {
	ListPendingOperations(ctx context.Context, deviceGroup string) ([]*waas.PendingOperation, error)
}

// Manager 轮询会话管理器：每个父资源至多一个活动会话
type Manager struct {
	lister Lister
	lane   *settlement.Lane
	clock  time2.Clock

	mu       sync.Mutex
	sessions map[string]*PollSession
}

// NewManager 创建会话管理器
func NewManager(lister Lister, lane *settlement.Lane, clock time2.Clock) *Manager {
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Manager{
		lister:   lister,
		lane:     lane,
		clock:    clock,
		sessions: make(map[string]*PollSession),
	}
}

// Start begins polling parent on the poll lane and returns immediately.
// Starting a second session for a parent that still has an active one fails
// with ErrPollSessionActive.
func (m *Manager) Start(ctx context.Context, parent string, interval time.Duration, accept Accept) (*PollSession, error) {
	if parent == "" {
		return nil, protocol.NewDomainError(protocol.CodeInvalidArgument, "poll parent is required")
	}
	if accept == nil {
		return nil, protocol.NewDomainError(protocol.CodeInvalidArgument, "poll accept func is required")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	m.mu.Lock()
	if _, ok := m.sessions[parent]; ok {
		m.mu.Unlock()
		return nil, ErrPollSessionActive.WithOperation(parent)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &PollSession{
		id:        "poll-" + uuid.New().String(),
		parent:    parent,
		interval:  interval,
		accept:    accept,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    SessionStatusActive,
		startedAt: m.clock.Now(),
	}
	m.sessions[parent] = s
	m.mu.Unlock()

	log.Debug().Str("session_id", s.id).Str("device_group", parent).Dur("interval", interval).Msg("Starting poll session")

	m.lane.Go(sctx, func(ctx context.Context) {
		m.loop(ctx, s)
	}, func(err error) {
		m.finish(s, nil, m.terminalError(s, err))
	})

	return s, nil
}

// Poll starts a session and waits for it to finish.
func (m *Manager) Poll(ctx context.Context, parent string, interval time.Duration, accept Accept) ([]*waas.PendingOperation, error) {
	s, err := m.Start(ctx, parent, interval, accept)
	if err != nil {
		return nil, err
	}
	return s.Wait(ctx)
}

// Stop ends the active session of parent. Calling it when nothing is active
// is a no-op that reports StopResultNotActive.
func (m *Manager) Stop(parent string) StopResult {
	m.mu.Lock()
	s, ok := m.sessions[parent]
	if ok {
		delete(m.sessions, parent)
	}
	m.mu.Unlock()

	if !ok {
		return StopResultNotActive
	}

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()

	log.Debug().Str("session_id", s.id).Str("device_group", parent).Msg("Poll session stopped")
	return StopResultStopped
}

// StopAll 停止所有活动会话
func (m *Manager) StopAll() int {
	m.mu.Lock()
	parents := make([]string, 0, len(m.sessions))
	for parent := range m.sessions {
		parents = append(parents, parent)
	}
	m.mu.Unlock()

	n := 0
	for _, parent := range parents {
		if m.Stop(parent) == StopResultStopped {
			n++
		}
	}
	return n
}

func (m *Manager) Active(parent string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[parent]
	return ok
}

// Sessions 活动会话快照
func (m *Manager) Sessions() []Session {
	m.mu.Lock()
	active := make([]*PollSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		active = append(active, s)
	}
	m.mu.Unlock()

	out := make([]Session, 0, len(active))
	for _, s := range active {
		out = append(out, s.Snapshot())
	}
	return out
}

func (m *Manager) loop(ctx context.Context, s *PollSession) {
	for {
		batch, err := m.lister.ListPendingOperations(ctx, s.parent)
		metrics.IncPollCycle(err)

		s.mu.Lock()
		s.cycles++
		cycle := s.cycles
		s.mu.Unlock()

		if err != nil {
			if ctx.Err() != nil {
				m.finish(s, nil, m.terminalError(s, ctx.Err()))
				return
			}
			log.Error().Err(err).Str("device_group", s.parent).Int("cycle", cycle).Msg("Failed to list pending operations")
			m.finish(s, nil, err)
			return
		}

		selected, done := s.accept(batch)
		log.Debug().
			Str("device_group", s.parent).
			Int("cycle", cycle).
			Int("pending", len(batch)).
			Int("selected", len(selected)).
			Msg("Poll cycle completed")

		if done {
			m.finish(s, selected, nil)
			return
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.finish(s, nil, m.terminalError(s, ctx.Err()))
			return
		case <-timer.C:
		}
	}
}

// terminalError distinguishes an explicit Stop from caller cancellation.
func (m *Manager) terminalError(s *PollSession, cause error) error {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()

	if stopped {
		return ErrPollStopped.WithOperation(s.parent)
	}
	return protocol.NewCancelledError(errors.Wrap(cause, "poll cancelled")).WithOperation(s.parent)
}

func (m *Manager) finish(s *PollSession, selected []*waas.PendingOperation, err error) {
	m.mu.Lock()
	if cur, ok := m.sessions[s.parent]; ok && cur == s {
		delete(m.sessions, s.parent)
	}
	m.mu.Unlock()

	now := m.clock.Now()

	s.mu.Lock()
	s.result = selected
	s.err = err
	s.endedAt = &now
	switch {
	case err == nil:
		s.status = SessionStatusMatched
	case protocol.HasCode(err, protocol.CodePollStopped):
		s.status = SessionStatusStopped
	case protocol.HasCode(err, protocol.CodeCancelled):
		s.status = SessionStatusCancelled
	default:
		s.status = SessionStatusFailed
	}
	s.mu.Unlock()

	s.cancel()
	close(s.done)
}
