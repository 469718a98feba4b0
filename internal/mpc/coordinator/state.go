package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/google/uuid"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
)

// State 流程实例状态
type State string

const (
	StateNew       State = "new"
	StateInitiated State = "initiated"
	StatePending   State = "pending"
	StateComputed  State = "computed"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
)

func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// ErrInvalidTransition 非法状态迁移
var ErrInvalidTransition = protocol.NewDomainError(protocol.CodeInvalidTransition, "invalid state transition")

// Transition 一次状态迁移记录
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Observer is called after every accepted transition.
type Observer func(l *Lifecycle, t Transition)

// Lifecycle tracks one flow instance through
// new -> initiated -> pending -> computed -> confirmed, or failed from any
// non-terminal state. Flows with several compute phases go computed -> pending.
type Lifecycle struct {
	ID   string
	Flow Flow

	clock    time2.Clock
	observer Observer

	mu        sync.Mutex
	state     State
	startedAt time.Time
	history   []Transition
	err       error
}

// NewLifecycle 创建流程实例
func NewLifecycle(flow Flow, clock time2.Clock, observer Observer) *Lifecycle {
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Lifecycle{
		ID:        uuid.New().String(),
		Flow:      flow,
		clock:     clock,
		observer:  observer,
		state:     StateNew,
		startedAt: clock.Now(),
	}
}

// Advance moves to next, failing with ErrInvalidTransition when the table
// does not allow it.
func (l *Lifecycle) Advance(next State) error {
	if next == StateFailed {
		return l.Fail(nil)
	}
	return l.transition(next, nil)
}

// Fail moves the instance to failed and records cause. A terminal instance
// cannot fail again.
func (l *Lifecycle) Fail(cause error) error {
	return l.transition(StateFailed, cause)
}

func (l *Lifecycle) transition(next State, cause error) error {
	l.mu.Lock()
	current := l.state
	if !canTransition(current, next) {
		l.mu.Unlock()
		return protocol.AsError(ErrInvalidTransition).WithOperation(fmt.Sprintf("%s: %s -> %s", l.Flow, current, next))
	}
	t := Transition{From: current, To: next, At: l.clock.Now()}
	l.state = next
	l.history = append(l.history, t)
	if cause != nil {
		l.err = cause
	}
	observer := l.observer
	l.mu.Unlock()

	if observer != nil {
		observer(l, t)
	}
	return nil
}

func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Elapsed 自流程开始经过的时间
func (l *Lifecycle) Elapsed(at time.Time) time.Duration {
	return at.Sub(l.startedAt)
}

// History 迁移历史副本
func (l *Lifecycle) History() []Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transition, len(l.history))
	copy(out, l.history)
	return out
}

func canTransition(current, next State) bool {
	switch current {
	case StateNew:
		return next == StateInitiated || next == StateFailed
	case StateInitiated:
		return next == StatePending || next == StateFailed
	case StatePending:
		return next == StateComputed || next == StateFailed
	case StateComputed:
		// next compute phase of the same flow
		return next == StatePending || next == StateConfirmed || next == StateFailed
	case StateConfirmed, StateFailed:
		return false
	default:
		return false
	}
}
