package settlement

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Lane is a background execution context. Work submitted with Go never runs on
// the caller's goroutine; concurrency is bounded when the lane has a limit.
type Lane struct {
	name string
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
}

// NewLane 创建执行通道；concurrency <= 0 表示不限制
func NewLane(name string, concurrency int64) *Lane {
	l := &Lane{name: name}
	if concurrency > 0 {
		l.sem = semaphore.NewWeighted(concurrency)
	}
	return l
}

func (l *Lane) Name() string {
	return l.name
}

// Go schedules run on the lane and returns immediately. If the lane slot
// cannot be acquired because ctx ended, abort is called instead of run.
func (l *Lane) Go(ctx context.Context, run func(ctx context.Context), abort func(err error)) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		if l.sem != nil {
			if err := l.sem.Acquire(ctx, 1); err != nil {
				abort(err)
				return
			}
			defer l.sem.Release(1)
		}

		run(ctx)
	}()
}

// Wait blocks until all submitted work has returned.
func (l *Lane) Wait() {
	l.wg.Wait()
}
