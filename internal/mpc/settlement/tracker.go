package settlement

import (
	"sync"

	"github.com/google/uuid"
	"github.com/kashguard/go-waas-device/internal/metrics"
)

// Tracker 持有在途操作，防止结算前被回收；结算时释放
type Tracker struct {
	mu      sync.Mutex
	handles map[uuid.UUID]*Handle
}

// NewTracker 创建跟踪器
func NewTracker() *Tracker {
	return &Tracker{
		handles: make(map[uuid.UUID]*Handle),
	}
}

// Track returns false if a handle with the same identity is already tracked.
func (t *Tracker) Track(h *Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.handles[h.ID]; ok {
		return false
	}
	t.handles[h.ID] = h
	metrics.TrackedInc()
	return true
}

// Release returns false if the handle was not tracked.
func (t *Tracker) Release(h *Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.handles[h.ID]; !ok {
		return false
	}
	delete(t.handles, h.ID)
	metrics.TrackedDec()
	return true
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}

// Handles 当前在途句柄的快照
func (t *Tracker) Handles() []*Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Handle, 0, len(t.handles))
	for _, h := range t.handles {
		out = append(out, h)
	}
	return out
}
