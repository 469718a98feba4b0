package settlement

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/kashguard/go-waas-device/internal/metrics"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Producer 单次触发的异步生产者
type Producer[V any] func(ctx context.Context) (V, error)

// Channel turns one producer run into exactly one settlement.
type Channel[V, R any] struct {
	handle   *Handle
	produce  Producer[V]
	mapFn    func(V) (R, error)
	onFinish func(*Handle)

	settled atomic.Bool
}

// NewChannel 创建结算通道；onFinish 在结算后恰好调用一次
func NewChannel[V, R any](name string, produce Producer[V], mapFn func(V) (R, error), onFinish func(*Handle)) *Channel[V, R] {
	return &Channel[V, R]{
		handle:   NewHandle(name),
		produce:  produce,
		mapFn:    mapFn,
		onFinish: onFinish,
	}
}

func (c *Channel[V, R]) Handle() *Handle {
	return c.handle
}

// Run schedules the producer on lane and returns immediately. onSettle is
// called exactly once with either the mapped value or the failure.
func (c *Channel[V, R]) Run(ctx context.Context, lane *Lane, onSettle func(Result[R])) {
	lane.Go(ctx, func(ctx context.Context) {
		c.settle(c.execute(ctx), onSettle)
	}, func(err error) {
		c.settle(Rejected[R](protocol.NewCancelledError(err)), onSettle)
	})
}

func (c *Channel[V, R]) execute(ctx context.Context) (res Result[R]) {
	v, err := c.runProducer(ctx)
	if err != nil {
		return Rejected[R](err)
	}

	r, err := c.transform(v)
	if err != nil {
		return Rejected[R](protocol.NewTransformError(err))
	}
	return Resolved(r)
}

func (c *Channel[V, R]) runProducer(ctx context.Context) (v V, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = protocol.NewDomainError(protocol.CodeProducerPanic, fmt.Sprintf("producer panicked: %v", p))
		}
	}()
	return c.produce(ctx)
}

func (c *Channel[V, R]) transform(v V) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("transform panicked: %v", p)
		}
	}()
	return c.mapFn(v)
}

func (c *Channel[V, R]) settle(res Result[R], onSettle func(Result[R])) {
	if !c.settled.CompareAndSwap(false, true) {
		return
	}

	state := StateResolved
	code := ""
	if !res.OK() {
		state = StateRejected
		code = res.Err.Code
	}
	c.handle.transition(state)
	metrics.IncSettlement(res.OK(), code)

	defer func() {
		if c.onFinish != nil {
			c.onFinish(c.handle)
		}
	}()

	if !res.OK() {
		log.Debug().Str("operation", c.handle.Name).Str("code", code).Msg("Bridged operation rejected")
	}
	onSettle(res)
}

// Run bridges a value-producing operation: produce, map, settle, release.
func Run[V, R any](ctx context.Context, t *Tracker, lane *Lane, name string, produce Producer[V], mapFn func(V) (R, error), onSettle func(Result[R])) *Handle {
	c := NewChannel(name, produce, mapFn, release(t))
	t.Track(c.handle)
	c.Run(ctx, lane, onSettle)
	return c.handle
}

// RunVoid bridges a side-effect-only operation; it settles with struct{}.
func RunVoid(ctx context.Context, t *Tracker, lane *Lane, name string, produce func(ctx context.Context) error, onSettle func(Result[struct{}])) *Handle {
	p := func(ctx context.Context) (struct{}, error) {
		return struct{}{}, produce(ctx)
	}
	return Run(ctx, t, lane, name, p, identity[struct{}], onSettle)
}

// RunList bridges a list-producing operation, encoding each element for transport.
// A failure to encode any element settles the whole operation as a transform error.
func RunList[V, R any](ctx context.Context, t *Tracker, lane *Lane, name string, produce Producer[[]V], encode func(V) (R, error), onSettle func(Result[[]R])) *Handle {
	mapFn := func(items []V) ([]R, error) {
		out := make([]R, 0, len(items))
		for i, item := range items {
			r, err := encode(item)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to encode element %d", i)
			}
			out = append(out, r)
		}
		return out, nil
	}
	return Run(ctx, t, lane, name, produce, mapFn, onSettle)
}

func identity[V any](v V) (V, error) {
	return v, nil
}

func release(t *Tracker) func(*Handle) {
	return func(h *Handle) {
		t.Release(h)
	}
}
