package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/motorgrid/exportd/internal/logger"
)

func TestPublishDispatchesInOrder(t *testing.T) {
	bus := NewBus(16, logger.StdLogger(), nil)

	var mu sync.Mutex
	var got []string
	bus.Subscribe(EventTypeExportProgressed, func(ctx context.Context, e *Event) error {
		mu.Lock()
		got = append(got, e.AggregateID)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx, 1)

	want := []string{"a", "b", "c"}
	for _, id := range want {
		if err := bus.Publish(ctx, &Event{Type: EventTypeExportProgressed, AggregateID: id}); err != nil {
			t.Fatalf("Publish(%s) failed: %v", id, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == len(want) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d out of order: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPublishAssignsIdentity(t *testing.T) {
	bus := NewBus(4, logger.StdLogger(), nil)

	e := &Event{Type: EventTypeExportRequested}
	if err := bus.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if e.ID == "" {
		t.Error("event ID not assigned")
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp not assigned")
	}
	if e.Version != 1 {
		t.Errorf("version = %d, want 1", e.Version)
	}
}

func TestHandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewBus(4, logger.StdLogger(), nil)

	var mu sync.Mutex
	delivered := false
	bus.Subscribe(EventTypeExportFailed, func(context.Context, *Event) error {
		return context.DeadlineExceeded
	})
	bus.Subscribe(EventTypeExportFailed, func(context.Context, *Event) error {
		mu.Lock()
		delivered = true
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx, 1)

	if err := bus.Publish(ctx, &Event{Type: EventTypeExportFailed}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		ok := delivered
		mu.Unlock()
		if ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("second handler never ran")
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	events := []*Event{
		{ID: "e1", Type: EventTypeExportRequested, AggregateID: "task-1", Timestamp: time.Now()},
		{ID: "e2", Type: EventTypeExportCompleted, AggregateID: "task-1", Timestamp: time.Now()},
		{ID: "e3", Type: EventTypeExportRequested, AggregateID: "task-2", Timestamp: time.Now()},
	}
	for _, e := range events {
		if err := store.Save(ctx, e); err != nil {
			t.Fatalf("Save(%s) failed: %v", e.ID, err)
		}
	}

	loaded, err := store.Load(ctx, "e2")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Type != EventTypeExportCompleted {
		t.Errorf("unexpected type %s", loaded.Type)
	}

	byAgg, err := store.LoadByAggregate(ctx, "task-1")
	if err != nil {
		t.Fatalf("LoadByAggregate failed: %v", err)
	}
	if len(byAgg) != 2 {
		t.Fatalf("expected 2 events for task-1, got %d", len(byAgg))
	}
	if byAgg[0].ID != "e1" || byAgg[1].ID != "e2" {
		t.Errorf("aggregate events out of order: %s, %s", byAgg[0].ID, byAgg[1].ID)
	}

	if _, err := store.Load(ctx, "absent"); err == nil {
		t.Error("expected error for unknown event")
	}
}
