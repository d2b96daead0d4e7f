package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// CallStateChanged is published on every call session transition
	CallStateChanged = "call.state_changed"
	// CallStatusObserved is published for each room status snapshot
	CallStatusObserved = "call.status_observed"
)

// Event system event
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Source    string                 `json:"source"`
}

// EventHandler event handler function
type EventHandler func(event Event) error

// EventBus fans events out to subscribers, one goroutine per handler.
type EventBus struct {
	handlers map[string][]EventHandler
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewEventBus creates an empty bus
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		handlers: make(map[string][]EventHandler),
		logger:   logger,
	}
}

// Subscribe registers handler for eventType, "*" receives everything
func (bus *EventBus) Subscribe(eventType string, handler EventHandler) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.handlers[eventType] = append(bus.handlers[eventType], handler)
	bus.logger.Debug("[EventBus] handler subscribed", zap.String("eventType", eventType))
}

// Publish publishes an event
func (bus *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	bus.mu.RLock()
	handlers := make([]EventHandler, 0, len(bus.handlers[event.Type])+len(bus.handlers["*"]))
	handlers = append(handlers, bus.handlers[event.Type]...)
	handlers = append(handlers, bus.handlers["*"]...)
	bus.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	for _, handler := range handlers {
		go func(h EventHandler) {
			if err := h(event); err != nil {
				bus.logger.Error("[EventBus] handler failed",
					zap.String("eventType", event.Type),
					zap.Error(err))
			}
		}(handler)
	}
}
