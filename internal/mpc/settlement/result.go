package settlement

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
)

// State 结算状态
type State int32

const (
	StatePending State = iota
	StateResolved
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Handle identifies one in-flight bridged operation. Its state moves out of
// Pending at most once.
type Handle struct {
	ID   uuid.UUID
	Name string

	state atomic.Int32
}

// NewHandle 创建操作句柄
func NewHandle(name string) *Handle {
	return &Handle{
		ID:   uuid.New(),
		Name: name,
	}
}

func (h *Handle) State() State {
	return State(h.state.Load())
}

// transition returns false when the handle already left Pending.
func (h *Handle) transition(to State) bool {
	return h.state.CompareAndSwap(int32(StatePending), int32(to))
}

// Result 两臂结算结果：Err 为 nil 时 Value 有效
type Result[R any] struct {
	Value R
	Err   *protocol.Error
}

func Resolved[R any](v R) Result[R] {
	return Result[R]{Value: v}
}

func Rejected[R any](err error) Result[R] {
	return Result[R]{Err: protocol.AsError(err)}
}

func (r Result[R]) OK() bool {
	return r.Err == nil
}

// Unwrap returns the value or the error as a plain error interface.
func (r Result[R]) Unwrap() (R, error) {
	if r.Err != nil {
		var zero R
		return zero, r.Err
	}
	return r.Value, nil
}
