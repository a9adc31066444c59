// Package event provides the domain event bus and stores.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/motorgrid/exportd/internal/logger"
)

// EventType defines event types in the application.
type EventType string

const (
	// Export job events
	EventTypeExportRequested  EventType = "export.requested"
	EventTypeExportProgressed EventType = "export.progressed"
	EventTypeExportCompleted  EventType = "export.completed"
	EventTypeExportFailed     EventType = "export.failed"
)

// Event represents a domain event in the system.
type Event struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	AggregateID   string            `json:"aggregate_id,omitempty"`
	AggregateName string            `json:"aggregate_name,omitempty"`
	UserID        string            `json:"user_id,omitempty"`
	Payload       map[string]any    `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Version       int               `json:"version"`
}

// EventHandler defines the event handler function type.
type EventHandler func(ctx context.Context, event *Event) error

// Bus represents the event bus for inter-module communication.
type Bus struct {
	handlers map[EventType][]EventHandler
	buffer   chan *Event
	mu       sync.RWMutex
	logger   *logger.Logger
	store    EventStore
}

// NewBus creates a new event bus.
func NewBus(bufferSize int, log *logger.Logger, store EventStore) *Bus {
	return &Bus{
		handlers: make(map[EventType][]EventHandler),
		buffer:   make(chan *Event, bufferSize),
		logger:   log,
		store:    store,
	}
}

// Subscribe subscribes a handler to an event type.
func (b *Bus) Subscribe(eventType EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.logger.Debug(context.Background(), "Event handler subscribed",
		"event_type", eventType,
		"total_handlers", len(b.handlers[eventType]))
}

// Publish publishes an event to the bus.
func (b *Bus) Publish(ctx context.Context, event *Event) error {
	event.Timestamp = time.Now()
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Version == 0 {
		event.Version = 1
	}

	// Store event if store is available
	if b.store != nil {
		if err := b.store.Save(ctx, event); err != nil {
			b.logger.Error(ctx, "Failed to store event",
				"error", err,
				"event_id", event.ID,
				"event_type", event.Type)
			// Continue even if storage fails
		}
	}

	select {
	case b.buffer <- event:
		b.logger.Debug(ctx, "Event published", "type", event.Type, "id", event.ID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("event buffer full, timeout publishing event")
	}
}

// Start starts the event bus workers.
func (b *Bus) Start(ctx context.Context, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go b.worker(ctx, i)
	}
	b.logger.Info(ctx, "Event bus started", "workers", numWorkers)
}

// worker processes events from the buffer.
func (b *Bus) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			b.logger.Debug(context.Background(), "Event bus worker stopped", "worker_id", id)
			return
		case event := <-b.buffer:
			b.dispatch(ctx, event)
		}
	}
}

// dispatch dispatches an event to all subscribed handlers.
func (b *Bus) dispatch(ctx context.Context, event *Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	for i, handler := range handlers {
		handlerCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := handler(handlerCtx, event); err != nil {
			b.logger.Error(ctx, "Event handler failed",
				"type", event.Type,
				"id", event.ID,
				"handler_index", i,
				"error", err)
		}
		cancel()
	}
}

// GetStats returns event bus statistics.
func (b *Bus) GetStats() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers := make(map[string]int)
	total := 0
	for eventType, handlers := range b.handlers {
		subscribers[string(eventType)] = len(handlers)
		total += len(handlers)
	}

	return map[string]any{
		"buffer_size":    cap(b.buffer),
		"buffer_used":    len(b.buffer),
		"event_types":    len(b.handlers),
		"total_handlers": total,
		"subscribers":    subscribers,
	}
}

// Shutdown gracefully shuts down the event bus.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.logger.Info(ctx, "Shutting down event bus", "pending_events", len(b.buffer))

	timeout := time.After(10 * time.Second)
	for {
		select {
		case <-timeout:
			return fmt.Errorf("shutdown timeout with %d events remaining", len(b.buffer))
		case <-ctx.Done():
			return ctx.Err()
		default:
			if len(b.buffer) == 0 {
				return nil
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// MarshalEvent marshals an event to JSON.
func MarshalEvent(event *Event) ([]byte, error) {
	return json.Marshal(event)
}

// UnmarshalEvent unmarshals an event from JSON.
func UnmarshalEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
