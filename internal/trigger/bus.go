package trigger

import (
	"slices"
	"sync"
)

// HandlerFunc receives ledger events. Handlers run synchronously on the
// publishing goroutine and must not block; hand work off to a channel
// or goroutine when it can take time.
type HandlerFunc func(e Event)

// Bus is the in-process publish/subscribe edge of the ledger.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]HandlerFunc
}

// NewBus creates a Bus with no subscribers.
func NewBus() *Bus {
	return &Bus{handlers: make(map[uint64]HandlerFunc)}
}

// Subscribe registers fn and returns the handle that removes it again.
// The unsubscribe func is idempotent.
func (b *Bus) Subscribe(fn HandlerFunc) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e to every current subscriber in subscription order.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	handlers := make([]HandlerFunc, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
