package session

import "sync"

// EventType names a session lifecycle transition.
type EventType string

const (
	EventSignedIn       EventType = "signed_in"
	EventTokenRefreshed EventType = "token_refreshed"
	EventUserUpdated    EventType = "user_updated"
	EventSignedOut      EventType = "signed_out"
)

// Event describes a session change for observers.
type Event struct {
	Type     EventType
	UserID   string
	TenantID string
	Email    string
}

// Handler reacts to a session change.
type Handler func(Event)

// Broadcaster fans session events out to subscribers. Subscribe returns an
// unsubscribe handle; handlers run synchronously on the publishing
// goroutine.
type Broadcaster struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{handlers: make(map[int]Handler)}
}

func (b *Broadcaster) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

func (b *Broadcaster) Publish(evt Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(evt)
	}
}
