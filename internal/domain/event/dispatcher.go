package event

import (
	"sync"
)

// Handler handles domain events
type Handler interface {
	// Handle processes the event
	Handle(event DomainEvent) error
	// HandledEvents returns the event names this handler subscribes to
	HandledEvents() []string
}

// Dispatcher dispatches domain events to registered handlers
type Dispatcher interface {
	// Dispatch sends an event to all registered handlers
	Dispatch(event DomainEvent)
	// Subscribe registers a handler for its declared events
	Subscribe(handler Handler)
	// Unsubscribe removes a handler
	Unsubscribe(handler Handler)
}

// InMemoryDispatcher is an in-process implementation of Dispatcher
type InMemoryDispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	async    bool
}

// NewInMemoryDispatcher creates a new InMemoryDispatcher. With async true,
// handlers run on their own goroutines and Dispatch never blocks.
func NewInMemoryDispatcher(async bool) *InMemoryDispatcher {
	return &InMemoryDispatcher{
		handlers: make(map[string][]Handler),
		async:    async,
	}
}

// Dispatch sends an event to handlers registered for its name plus any
// wildcard subscribers.
func (d *InMemoryDispatcher) Dispatch(event DomainEvent) {
	d.mu.RLock()
	named := d.handlers[event.EventName()]
	wild := d.handlers[Wildcard]
	combined := make([]Handler, 0, len(named)+len(wild))
	combined = append(combined, named...)
	combined = append(combined, wild...)
	d.mu.RUnlock()

	for _, handler := range combined {
		if d.async {
			go func(h Handler) {
				_ = h.Handle(event)
			}(handler)
		} else {
			_ = handler.Handle(event)
		}
	}
}

// Subscribe registers a handler for its declared events
func (d *InMemoryDispatcher) Subscribe(handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range handler.HandledEvents() {
		d.handlers[name] = append(d.handlers[name], handler)
	}
}

// Unsubscribe removes a handler
func (d *InMemoryDispatcher) Unsubscribe(handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range handler.HandledEvents() {
		registered := d.handlers[name]
		for i, h := range registered {
			if h == handler {
				d.handlers[name] = append(registered[:i:i], registered[i+1:]...)
				break
			}
		}
	}
}

// NullDispatcher is a no-op dispatcher for when events are not needed
type NullDispatcher struct{}

// NewNullDispatcher creates a new NullDispatcher
func NewNullDispatcher() *NullDispatcher {
	return &NullDispatcher{}
}

// Dispatch does nothing
func (d *NullDispatcher) Dispatch(event DomainEvent) {}

// Subscribe does nothing
func (d *NullDispatcher) Subscribe(handler Handler) {}

// Unsubscribe does nothing
func (d *NullDispatcher) Unsubscribe(handler Handler) {}
