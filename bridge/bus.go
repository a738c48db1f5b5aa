package bridge

import "sync"

// Bus models a page's global message channel: every subscriber sees every
// posted envelope and filters by target itself, exactly like listeners on
// window "message" events. Delivery is asynchronous; posting never blocks
// on a subscriber.
type Bus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]func(Envelope)
}

// NewBus creates an empty message bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]func(Envelope))}
}

// Subscribe registers a handler for every envelope posted to the bus.
// The returned function removes the subscription.
func (b *Bus) Subscribe(handler func(Envelope)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Post delivers the envelope to all current subscribers, each on its own
// goroutine.
func (b *Bus) Post(env Envelope) {
	b.mu.Lock()
	snapshot := make([]func(Envelope), 0, len(b.handlers))
	for _, h := range b.handlers {
		snapshot = append(snapshot, h)
	}
	b.mu.Unlock()

	for _, h := range snapshot {
		go h(env)
	}
}
