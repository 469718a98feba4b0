package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/kashguard/go-waas-device/internal/mpc/settlement"
)

// Continuation is the caller's resolve/reject pair. Exactly one of the two is
// called, exactly once, per bridged call.
type Continuation[R any] interface {
	Resolve(value R)
	Reject(code string, message string)
}

// Funcs adapts two plain functions to a Continuation. Nil functions are skipped.
type Funcs[R any] struct {
	OnResolve func(value R)
	OnReject  func(code string, message string)
}

func (f Funcs[R]) Resolve(value R) {
	if f.OnResolve != nil {
		f.OnResolve(value)
	}
}

func (f Funcs[R]) Reject(code string, message string) {
	if f.OnReject != nil {
		f.OnReject(code, message)
	}
}

// RejectedError is what Promise.Await returns for a rejected call.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Promise is a Continuation that can be awaited.
type Promise[R any] struct {
	once sync.Once
	done chan struct{}

	value R
	err   *RejectedError
}

func NewPromise[R any]() *Promise[R] {
	return &Promise[R]{done: make(chan struct{})}
}

func (p *Promise[R]) Resolve(value R) {
	p.once.Do(func() {
		p.value = value
		close(p.done)
	})
}

func (p *Promise[R]) Reject(code string, message string) {
	p.once.Do(func() {
		p.err = &RejectedError{Code: code, Message: message}
		close(p.done)
	})
}

// Done is closed once the promise settled.
func (p *Promise[R]) Done() <-chan struct{} {
	return p.done
}

// Await blocks until the promise settles or ctx ends.
func (p *Promise[R]) Await(ctx context.Context) (R, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
	if p.err != nil {
		var zero R
		return zero, p.err
	}
	return p.value, nil
}

// deliver routes one settlement to cont.
func deliver[R any](cont Continuation[R]) func(settlement.Result[R]) {
	return func(res settlement.Result[R]) {
		if res.OK() {
			cont.Resolve(res.Value)
			return
		}
		cont.Reject(res.Err.Code, res.Err.Error())
	}
}
