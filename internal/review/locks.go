package review

import (
	"context"
	"sync"
)

// keyedSlots hands out one slot per key. A second caller for the same key
// waits until the first releases it or its context ends.
type keyedSlots struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newKeyedSlots() *keyedSlots {
	return &keyedSlots{slots: make(map[string]chan struct{})}
}

func (k *keyedSlots) acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	ch, ok := k.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.slots[key] = ch
	}
	k.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
