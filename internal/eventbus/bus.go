package eventbus

import "sync"

// Topics published by the core. Listeners subscribe by topic name.
const (
	TopicGameCompleted   = "game:completed"
	TopicBoardReset      = "board:reset"
	TopicSettingsChanged = "settings:changed"
	TopicTimerExpired    = "timer:expired"
	TopicTimerTick       = "timer:tick"
)

// Handler receives every payload published on a subscribed topic.
type Handler func(payload any)

// Bus is a small in-process topic bus. It replaces window-level custom
// events: interested components get explicit callbacks instead of global
// browser events.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

func New() *Bus {
	return &Bus{
		subs: make(map[string]map[int]Handler),
	}
}

// Subscribe registers a handler and returns its unsubscribe function.
func (that *Bus) Subscribe(topic string, handler Handler) func() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.subs[topic] == nil {
		that.subs[topic] = make(map[int]Handler)
	}

	id := that.nextID
	that.nextID++
	that.subs[topic][id] = handler

	return func() {
		that.mu.Lock()
		defer that.mu.Unlock()
		delete(that.subs[topic], id)
	}
}

// Publish delivers the payload to every handler subscribed to the topic.
// Delivery is synchronous and in subscription order is not guaranteed.
func (that *Bus) Publish(topic string, payload any) {
	that.mu.RLock()
	handlers := make([]Handler, 0, len(that.subs[topic]))
	for _, h := range that.subs[topic] {
		handlers = append(handlers, h)
	}
	that.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
}
