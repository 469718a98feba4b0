package coordinator

import (
	"context"
	"sync"

	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"golang.org/x/sync/semaphore"
)

// groupLocks serialises flows per device group. A flow holds its group from
// the remote initiate until its last compute step, because the device group
// is the poll session key and only one session per parent may be active.
type groupLocks struct {
	mu   sync.Mutex
	held map[string]*groupLock
}

type groupLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newGroupLocks() *groupLocks {
	return &groupLocks{held: make(map[string]*groupLock)}
}

// acquire blocks until deviceGroup is free or ctx is done. The returned
// release is safe to call more than once.
func (g *groupLocks) acquire(ctx context.Context, deviceGroup string) (func(), error) {
	g.mu.Lock()
	gl, ok := g.held[deviceGroup]
	if !ok {
		gl = &groupLock{sem: semaphore.NewWeighted(1)}
		g.held[deviceGroup] = gl
	}
	gl.refs++
	g.mu.Unlock()

	if err := gl.sem.Acquire(ctx, 1); err != nil {
		g.drop(deviceGroup, gl)
		return nil, protocol.NewCancelledError(err).WithOperation(deviceGroup)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			gl.sem.Release(1)
			g.drop(deviceGroup, gl)
		})
	}, nil
}

func (g *groupLocks) drop(deviceGroup string, gl *groupLock) {
	g.mu.Lock()
	defer g.mu.Unlock()
	gl.refs--
	if gl.refs == 0 {
		delete(g.held, deviceGroup)
	}
}

// busy reports whether a flow currently holds or waits for deviceGroup.
func (g *groupLocks) busy(deviceGroup string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[deviceGroup]
	return ok
}
