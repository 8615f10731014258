package reconciler

import (
	"sync"
	"time"

	"github.com/omni/rollup-bridge-reconciler/entity"
	"github.com/omni/rollup-bridge-reconciler/utils"
)

type backoffState struct {
	failures int
	retryAt  time.Time
}

// itemBackoff delays items after repeated failures, doubling the delay up to a limit.
type itemBackoff struct {
	mu    sync.Mutex
	base  time.Duration
	limit time.Duration
	now   func() time.Time
	items map[entity.TxnKey]*backoffState
}

func newItemBackoff(base, limit time.Duration, now func() time.Time) *itemBackoff {
	return &itemBackoff{
		base:  base,
		limit: limit,
		now:   now,
		items: make(map[entity.TxnKey]*backoffState),
	}
}

func (b *itemBackoff) Ready(key entity.TxnKey) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.items[key]
	return !ok || !b.now().Before(state.retryAt)
}

// Failed records a failure and returns the delay before the next attempt.
func (b *itemBackoff) Failed(key entity.TxnKey) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.items[key]
	if !ok {
		state = new(backoffState)
		b.items[key] = state
	}
	state.failures++
	delay := utils.ExponentialBackoff(b.base, b.limit, state.failures)
	state.retryAt = b.now().Add(delay)
	return delay
}

func (b *itemBackoff) Succeeded(key entity.TxnKey) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.items, key)
}

func (b *itemBackoff) Failures(key entity.TxnKey) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if state, ok := b.items[key]; ok {
		return state.failures
	}
	return 0
}
