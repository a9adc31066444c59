package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/motorgrid/exportd/internal/logger"
)

// EventStore defines the interface for event persistence.
type EventStore interface {
	Save(ctx context.Context, event *Event) error
	Load(ctx context.Context, eventID string) (*Event, error)
	LoadByAggregate(ctx context.Context, aggregateID string) ([]*Event, error)
}

// MemoryStore is an in-memory implementation of EventStore.
type MemoryStore struct {
	events map[string]*Event
	order  []string
	mu     sync.RWMutex
}

// NewMemoryStore creates a new memory-based event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string]*Event),
	}
}

// Save saves an event to memory.
func (s *MemoryStore) Save(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy to avoid mutations by the publisher
	eventCopy := *event
	if _, exists := s.events[event.ID]; !exists {
		s.order = append(s.order, event.ID)
	}
	s.events[event.ID] = &eventCopy
	return nil
}

// Load loads an event by ID.
func (s *MemoryStore) Load(ctx context.Context, eventID string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, fmt.Errorf("event not found: %s", eventID)
	}
	return event, nil
}

// LoadByAggregate loads events for a specific aggregate in publish order.
func (s *MemoryStore) LoadByAggregate(ctx context.Context, aggregateID string) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*Event
	for _, id := range s.order {
		if event := s.events[id]; event.AggregateID == aggregateID {
			events = append(events, event)
		}
	}
	return events, nil
}

// RedisStore persists events in Redis so restarted consoles can replay
// recent export history.
type RedisStore struct {
	client *redis.Client
	logger *logger.Logger
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed event store.
func NewRedisStore(client *redis.Client, log *logger.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{
		client: client,
		logger: log,
		ttl:    24 * time.Hour,
	}, nil
}

func eventKey(eventID string) string {
	return "exportd:event:" + eventID
}

func aggregateKey(aggregateID string) string {
	return "exportd:aggregate:" + aggregateID
}

// Save saves the event body and appends it to its aggregate's stream.
func (s *RedisStore) Save(ctx context.Context, event *Event) error {
	data, err := MarshalEvent(event)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, eventKey(event.ID), data, s.ttl)
	if event.AggregateID != "" {
		pipe.RPush(ctx, aggregateKey(event.AggregateID), event.ID)
		pipe.Expire(ctx, aggregateKey(event.AggregateID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		if s.logger != nil {
			s.logger.Error(ctx, "Failed to save event in Redis", "error", err, "event_id", event.ID)
		}
		return err
	}
	return nil
}

// Load loads an event by ID.
func (s *RedisStore) Load(ctx context.Context, eventID string) (*Event, error) {
	data, err := s.client.Get(ctx, eventKey(eventID)).Bytes()
	if err != nil {
		return nil, err
	}
	return UnmarshalEvent(data)
}

// LoadByAggregate loads events for a specific aggregate in publish order.
func (s *RedisStore) LoadByAggregate(ctx context.Context, aggregateID string) ([]*Event, error) {
	ids, err := s.client.LRange(ctx, aggregateKey(aggregateID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	events := make([]*Event, 0, len(ids))
	for _, id := range ids {
		event, err := s.Load(ctx, id)
		if err != nil {
			// Event body expired before its aggregate index entry.
			continue
		}
		events = append(events, event)
	}
	return events, nil
}
