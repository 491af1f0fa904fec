package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a user-facing notification emitted by the editing session or
// the pipeline (save failed, stage ready, profile required). The
// presentation layer subscribes and renders these; nothing in the core
// blocks on delivery.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type (e.g., "save_failed", "stage_ready").
	Type string `json:"type"`

	// OrderID is the associated order, if applicable.
	OrderID string `json:"order_id,omitempty"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Message is a human-readable event message.
	Message string `json:"message"`
}

// EventHandler receives published events.
type EventHandler func(Event)

// EventPublisher fans events out to subscribers. Delivery is asynchronous
// per subscriber with a bounded buffer; a slow subscriber drops events
// rather than stalling the publisher.
type EventPublisher struct {
	config EventsConfig

	mu          sync.Mutex
	subscribers map[string]chan Event
	closed      bool
}

// NewEventPublisher creates a new event publisher.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	return &EventPublisher{
		config:      cfg,
		subscribers: make(map[string]chan Event),
	}, nil
}

// Publish sends an event to all subscribers. No-op when disabled.
func (p *EventPublisher) Publish(eventType, orderID, level, message string) {
	if p == nil || !p.config.Enabled {
		return
	}

	event := Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Type:      eventType,
		OrderID:   orderID,
		Level:     level,
		Message:   message,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for _, ch := range p.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full; drop rather than block.
		}
	}
}

// Subscribe registers a handler and returns an unsubscribe function.
func (p *EventPublisher) Subscribe(handler EventHandler) func() {
	if p == nil || !p.config.Enabled {
		return func() {}
	}

	id := uuid.New().String()
	ch := make(chan Event, p.config.BufferSize)

	p.mu.Lock()
	p.subscribers[id] = ch
	p.mu.Unlock()

	go func() {
		for event := range ch {
			handler(event)
		}
	}()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if sub, ok := p.subscribers[id]; ok {
			delete(p.subscribers, id)
			close(sub)
		}
	}
}

// Close shuts down all subscriptions.
func (p *EventPublisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.subscribers {
		delete(p.subscribers, id)
		close(ch)
	}
}
