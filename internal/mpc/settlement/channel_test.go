package settlement

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func await[R any](t *testing.T, ch <-chan Result[R]) Result[R] {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("operation did not settle")
	}
	return Result[R]{}
}

func TestRun_Resolves(t *testing.T) {
	tracker := NewTracker()
	lane := NewLane("default", 0)
	ch := make(chan Result[string], 2)

	h := Run(context.Background(), tracker, lane, "getPool",
		func(ctx context.Context) (int, error) { return 42, nil },
		func(v int) (string, error) { return "pools/42", nil },
		func(res Result[string]) { ch <- res },
	)

	res := await(t, ch)
	require.True(t, res.OK())
	assert.Equal(t, "pools/42", res.Value)

	lane.Wait()
	assert.Equal(t, StateResolved, h.State())
	assert.Equal(t, 0, tracker.Len())
	assert.Len(t, ch, 0)
}

func TestRun_ProducerFailureSkipsMapping(t *testing.T) {
	tracker := NewTracker()
	lane := NewLane("default", 0)
	ch := make(chan Result[string], 2)
	var mapped atomic.Bool

	domain := protocol.NewDomainError(protocol.CodeDeviceAlreadyRegistered, "device already registered")
	h := Run(context.Background(), tracker, lane, "registerDevice",
		func(ctx context.Context) (int, error) { return 0, domain },
		func(v int) (string, error) {
			mapped.Store(true)
			return "", nil
		},
		func(res Result[string]) { ch <- res },
	)

	res := await(t, ch)
	lane.Wait()

	require.False(t, res.OK())
	assert.False(t, mapped.Load())
	assert.Equal(t, protocol.CodeDeviceAlreadyRegistered, res.Err.Code)
	assert.Equal(t, "device already registered", res.Err.Message)
	assert.Equal(t, StateRejected, h.State())
	assert.Equal(t, 0, tracker.Len())
}

func TestRun_TransformFailureIsDistinct(t *testing.T) {
	tracker := NewTracker()
	lane := NewLane("default", 0)
	ch := make(chan Result[string], 2)

	Run(context.Background(), tracker, lane, "getAddress",
		func(ctx context.Context) (int, error) { return 1, nil },
		func(v int) (string, error) { return "", errors.New("cannot encode address") },
		func(res Result[string]) { ch <- res },
	)

	res := await(t, ch)
	lane.Wait()

	require.False(t, res.OK())
	assert.Equal(t, protocol.ErrTypeTransform, res.Err.Type)
	assert.Equal(t, protocol.CodeTransform, res.Err.Code)
	assert.NotEqual(t, protocol.CodeDomain, res.Err.Code)
	assert.Equal(t, 0, tracker.Len())
}

func TestRun_MappingPanicSettlesAsTransform(t *testing.T) {
	tracker := NewTracker()
	lane := NewLane("default", 0)
	ch := make(chan Result[string], 2)

	Run(context.Background(), tracker, lane, "getSignature",
		func(ctx context.Context) (int, error) { return 1, nil },
		func(v int) (string, error) { panic("nil resource") },
		func(res Result[string]) { ch <- res },
	)

	res := await(t, ch)
	lane.Wait()
	assert.Equal(t, protocol.CodeTransform, res.Err.Code)
	assert.Equal(t, 0, tracker.Len())
}

func TestRun_ProducerPanic(t *testing.T) {
	tracker := NewTracker()
	lane := NewLane("default", 0)
	ch := make(chan Result[int], 2)

	Run(context.Background(), tracker, lane, "computeMPCOperation",
		func(ctx context.Context) (int, error) { panic("engine crashed") },
		func(v int) (int, error) { return v, nil },
		func(res Result[int]) { ch <- res },
	)

	res := await(t, ch)
	lane.Wait()
	assert.Equal(t, protocol.CodeProducerPanic, res.Err.Code)
	assert.Equal(t, protocol.ErrTypeDomain, res.Err.Type)
	assert.Equal(t, 0, tracker.Len())
}

func TestRun_LaneAbortRejects(t *testing.T) {
	tracker := NewTracker()
	lane := NewLane("compute", 1)
	require.True(t, lane.sem.TryAcquire(1))

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan Result[int], 2)
	var produced atomic.Bool

	Run(ctx, tracker, lane, "computeMPCOperation",
		func(ctx context.Context) (int, error) {
			produced.Store(true)
			return 1, nil
		},
		func(v int) (int, error) { return v, nil },
		func(res Result[int]) { ch <- res },
	)
	cancel()

	res := await(t, ch)
	lane.Wait()
	lane.sem.Release(1)

	assert.False(t, produced.Load())
	assert.Equal(t, protocol.CodeCancelled, res.Err.Code)
	assert.Equal(t, 0, tracker.Len())
}

func TestChannel_SettlesOnce(t *testing.T) {
	var finished atomic.Int32
	c := NewChannel("once",
		func(ctx context.Context) (int, error) { return 1, nil },
		func(v int) (int, error) { return v, nil },
		func(*Handle) { finished.Add(1) },
	)

	var delivered atomic.Int32
	onSettle := func(Result[int]) { delivered.Add(1) }

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				c.settle(Resolved(i), onSettle)
			} else {
				c.settle(Rejected[int](errors.New("late failure")), onSettle)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, delivered.Load())
	assert.EqualValues(t, 1, finished.Load())
	assert.NotEqual(t, StatePending, c.Handle().State())
}

func TestRunVoid(t *testing.T) {
	tracker := NewTracker()
	lane := NewLane("default", 0)
	ch := make(chan Result[struct{}], 2)

	RunVoid(context.Background(), tracker, lane, "stopPolling",
		func(ctx context.Context) error { return nil },
		func(res Result[struct{}]) { ch <- res },
	)
	assert.True(t, await(t, ch).OK())

	RunVoid(context.Background(), tracker, lane, "resetPasscode",
		func(ctx context.Context) error { return errors.New("connection refused") },
		func(res Result[struct{}]) { ch <- res },
	)
	res := await(t, ch)
	lane.Wait()

	assert.Equal(t, protocol.CodeTransport, res.Err.Code)
	assert.Equal(t, 0, tracker.Len())
}

func TestRunList(t *testing.T) {
	tracker := NewTracker()
	lane := NewLane("poll", 0)
	ch := make(chan Result[[]string], 2)

	encode := func(v int) (string, error) {
		if v < 0 {
			return "", errors.New("negative")
		}
		return string(rune('a' + v)), nil
	}

	RunList(context.Background(), tracker, lane, "listPending",
		func(ctx context.Context) ([]int, error) { return []int{0, 1, 2}, nil },
		encode,
		func(res Result[[]string]) { ch <- res },
	)
	res := await(t, ch)
	require.True(t, res.OK())
	assert.Equal(t, []string{"a", "b", "c"}, res.Value)

	RunList(context.Background(), tracker, lane, "listPending",
		func(ctx context.Context) ([]int, error) { return []int{0, -1}, nil },
		encode,
		func(res Result[[]string]) { ch <- res },
	)
	res = await(t, ch)
	lane.Wait()

	assert.Equal(t, protocol.CodeTransform, res.Err.Code)
	assert.Nil(t, res.Value)
	assert.Equal(t, 0, tracker.Len())
}

func TestRun_TrackerBalance(t *testing.T) {
	tracker := NewTracker()
	lane := NewLane("compute", 4)

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	var resolved, rejected atomic.Int32

	for i := 0; i < n; i++ {
		i := i
		Run(context.Background(), tracker, lane, "op",
			func(ctx context.Context) (int, error) {
				if i%3 == 0 {
					return 0, errors.New("transport")
				}
				return i, nil
			},
			func(v int) (int, error) {
				if v%5 == 0 {
					return 0, errors.New("transform")
				}
				return v, nil
			},
			func(res Result[int]) {
				if res.OK() {
					resolved.Add(1)
				} else {
					rejected.Add(1)
				}
				wg.Done()
			},
		)
	}

	wg.Wait()
	lane.Wait()

	assert.EqualValues(t, n, resolved.Load()+rejected.Load())
	assert.Equal(t, 0, tracker.Len())
}
