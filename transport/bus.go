package transport

import "sync"

// bus dispatches decoded events to typed subscribers. Handlers run
// synchronously on the caller, which is the read loop, so every subscriber
// sees events in arrival order. The disposer returned by subscribe removes
// only its own handler.
type bus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]func(map[string]any)
}

func newBus() *bus {
	return &bus{handlers: make(map[string]map[int]func(map[string]any))}
}

func (b *bus) subscribe(event string, handler func(map[string]any)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[event] == nil {
		b.handlers[event] = make(map[int]func(map[string]any))
	}
	id := b.nextID
	b.nextID++
	b.handlers[event][id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[event], id)
	}
}

func (b *bus) publish(event string, data map[string]any) {
	b.mu.Lock()
	handlers := make([]func(map[string]any), 0, len(b.handlers[event]))
	for _, h := range b.handlers[event] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}
