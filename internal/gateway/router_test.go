package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opkey-ai/reasoning-engine/internal/storage"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

type fakeWriter struct {
	mu     sync.Mutex
	frames []models.Event
}

func (f *fakeWriter) writeEvent(event models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, event)
	return nil
}

func TestRouterDeliversToBoundWriter(t *testing.T) {
	store := storage.NewMemoryStore(time.Minute)
	defer store.Close()

	router := NewEventRouter(store, nil)
	writer := &fakeWriter{}
	router.bind("conv-1", writer)

	event := models.Event{
		Event:   models.EventStreamResponse,
		Payload: map[string]any{"chat_id": "conv-1", "content": "Working on it"},
	}
	router.Emit(context.Background(), event)

	if len(writer.frames) != 1 || writer.frames[0].Event != models.EventStreamResponse {
		t.Fatalf("frames = %+v", writer.frames)
	}

	events, err := store.Events(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("persisted = %d, want 1", len(events))
	}
}

func TestRouterDropsEventWithoutChatID(t *testing.T) {
	router := NewEventRouter(nil, nil)
	writer := &fakeWriter{}
	router.bind("conv-1", writer)

	router.Emit(context.Background(), models.Event{
		Event:   models.EventPong,
		Payload: map[string]any{},
	})

	if len(writer.frames) != 0 {
		t.Errorf("frames = %+v, want none", writer.frames)
	}
}

func TestRouterPersistsWhenNoWriterBound(t *testing.T) {
	store := storage.NewMemoryStore(time.Minute)
	defer store.Close()

	router := NewEventRouter(store, nil)
	router.Emit(context.Background(), models.Event{
		Event:   models.EventChatEnded,
		Payload: map[string]any{"chat_id": "conv-2"},
	})

	events, err := store.Events(context.Background(), "conv-2")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || events[0].Event != models.EventChatEnded {
		t.Errorf("persisted = %+v", events)
	}
}

func TestRouterReplaysMissedEvents(t *testing.T) {
	store := storage.NewMemoryStore(time.Minute)
	defer store.Close()
	ctx := context.Background()

	router := NewEventRouter(store, nil)
	first := &fakeWriter{}
	router.bind("conv-1", first)
	router.Emit(ctx, models.Event{Event: models.EventProcessingStarted, Payload: map[string]any{"chat_id": "conv-1"}})
	router.Emit(ctx, models.Event{Event: models.EventStreamResponse, Payload: map[string]any{"chat_id": "conv-1", "content": "partial"}})

	// The reconnecting client saw only the first event.
	records, err := store.EventsSince(ctx, "conv-1", "")
	if err != nil {
		t.Fatalf("EventsSince: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	second := &fakeWriter{}
	router.bind("conv-1", second)
	if err := router.replay(ctx, "conv-1", records[0].ID, second); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(second.frames) != 1 || second.frames[0].Event != models.EventStreamResponse {
		t.Errorf("replayed frames = %+v, want the missed stream event", second.frames)
	}
}

func TestRouterRebindAndUnbind(t *testing.T) {
	router := NewEventRouter(nil, nil)
	first := &fakeWriter{}
	second := &fakeWriter{}

	router.bind("conv-1", first)
	router.bind("conv-1", second) // reconnect takes over

	event := models.Event{
		Event:   models.EventChatEnded,
		Payload: map[string]any{"chat_id": "conv-1"},
	}
	router.Emit(context.Background(), event)
	if len(first.frames) != 0 {
		t.Errorf("stale writer received %d frames", len(first.frames))
	}
	if len(second.frames) != 1 {
		t.Errorf("bound writer received %d frames, want 1", len(second.frames))
	}

	router.unbindWriter(second)
	router.Emit(context.Background(), event)
	if len(second.frames) != 1 {
		t.Errorf("unbound writer received %d frames, want 1", len(second.frames))
	}
}
