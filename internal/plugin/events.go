package plugin

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// EventHandler handles registry events.
// Handlers must be non-blocking and should not call back into the Registry
// to avoid deadlocks. Panics in handlers are recovered.
type EventHandler func(event Event)

// Event represents a lifecycle change of one plugin.
type Event struct {
	Type    EventType
	Plugin  string
	Version string
	State   State
	Error   error
}

// EventType is the type of registry event.
type EventType int

const (
	// EventInstalled is emitted when a plugin is installed or adopted.
	EventInstalled EventType = iota
	// EventUninstalled is emitted when a plugin is removed.
	EventUninstalled
	// EventEnabled is emitted when initialize succeeded.
	EventEnabled
	// EventDisabled is emitted when a plugin is disabled.
	EventDisabled
	// EventErrored is emitted when enabling a plugin failed.
	EventErrored
	// EventUpgraded is emitted when a newer version replaced a plugin.
	EventUpgraded
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventInstalled:
		return "installed"
	case EventUninstalled:
		return "uninstalled"
	case EventEnabled:
		return "enabled"
	case EventDisabled:
		return "disabled"
	case EventErrored:
		return "errored"
	case EventUpgraded:
		return "upgraded"
	default:
		return "unknown"
	}
}

// eventBus fans events out to subscribers.
type eventBus struct {
	mu       sync.RWMutex
	handlers map[int]EventHandler
	next     int
	log      *logrus.Entry
}

// subscribe adds a handler and returns its unsubscribe function.
func (b *eventBus) subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}
	b.mu.Lock()
	if b.handlers == nil {
		b.handlers = make(map[int]EventHandler)
	}
	id := b.next
	b.next++
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// emit sends an event to all handlers outside the lock.
func (b *eventBus) emit(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if p := recover(); p != nil && b.log != nil {
					b.log.WithField("event", event.Type.String()).Errorf("event handler panicked: %v", p)
				}
			}()
			handler(event)
		}()
	}
}
