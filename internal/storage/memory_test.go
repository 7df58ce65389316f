package storage

import (
	"context"
	"testing"
	"time"

	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(time.Hour)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndLoadHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.AppendMessages(ctx, "c1",
		models.ChatMessage{Role: models.RoleUser, Content: "export hcm config"},
		models.ChatMessage{Role: models.RoleAssistant, Content: "on it"},
	)
	if err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	history, err := s.History(ctx, "c1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d messages, want 2", len(history))
	}
	if history[0].Role != models.RoleUser || history[1].Content != "on it" {
		t.Errorf("history out of order: %+v", history)
	}

	// Mutating the returned slice must not affect the store.
	history[0].Content = "mutated"
	again, _ := s.History(ctx, "c1")
	if again[0].Content != "export hcm config" {
		t.Error("History returned a shared slice")
	}
}

func TestHistoryMissingConversation(t *testing.T) {
	s := newTestStore(t)
	history, err := s.History(context.Background(), "nope")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("got %d messages, want 0", len(history))
	}
}

func TestRecentHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.AppendMessages(ctx, "c1",
		models.ChatMessage{Role: models.RoleUser, Content: "one"},
		models.ChatMessage{Role: models.RoleAssistant, Content: "two"},
		models.ChatMessage{Role: models.RoleUser, Content: "three"},
	)

	recent, err := s.RecentHistory(ctx, "c1", 2)
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(recent) != 2 || recent[0].Content != "two" || recent[1].Content != "three" {
		t.Errorf("recent = %+v, want trailing two messages", recent)
	}

	// Zero means everything; a cap above the length returns everything.
	all, _ := s.RecentHistory(ctx, "c1", 0)
	if len(all) != 3 {
		t.Errorf("got %d messages with max 0, want 3", len(all))
	}
	all, _ = s.RecentHistory(ctx, "c1", 10)
	if len(all) != 3 {
		t.Errorf("got %d messages with max 10, want 3", len(all))
	}

	empty, _ := s.RecentHistory(ctx, "missing", 5)
	if len(empty) != 0 {
		t.Errorf("got %d messages for missing conversation", len(empty))
	}
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.LoadState(ctx, "c1"); err != ErrNotFound {
		t.Errorf("LoadState before save: err = %v, want ErrNotFound", err)
	}
	exists, _ := s.Exists(ctx, "c1")
	if exists {
		t.Error("Exists should be false before SaveState")
	}

	state := &models.ConversationState{
		ConversationID: "c1",
		Status:         models.StatusActive,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.SaveState(ctx, state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	loaded, err := s.LoadState(ctx, "c1")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if loaded.Status != models.StatusActive {
		t.Errorf("status = %s, want %s", loaded.Status, models.StatusActive)
	}

	exists, _ = s.Exists(ctx, "c1")
	if !exists {
		t.Error("Exists should be true after SaveState")
	}
}

func TestDeleteRemovesEverything(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.AppendMessages(ctx, "c1", models.ChatMessage{Role: models.RoleUser, Content: "hi"})
	s.SaveState(ctx, &models.ConversationState{ConversationID: "c1", Status: models.StatusActive})
	s.SaveDraft(ctx, "c1", "partial")

	if err := s.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if history, _ := s.History(ctx, "c1"); len(history) != 0 {
		t.Error("history survived Delete")
	}
	if _, err := s.LoadState(ctx, "c1"); err != ErrNotFound {
		t.Error("state survived Delete")
	}
	if draft, _ := s.LoadDraft(ctx, "c1"); draft != "" {
		t.Error("draft survived Delete")
	}
}

func TestClarificationLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.SaveClarificationRequest(ctx, "c1", &models.ClarificationState{
		ClarificationID: "cl-1",
		Questions:       []string{"which environment?"},
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("SaveClarificationRequest: %v", err)
	}

	if err := s.SaveClarificationResponse(ctx, "c1", "missing", "x"); err != ErrNotFound {
		t.Errorf("response to unknown clarification: err = %v, want ErrNotFound", err)
	}
	if err := s.SaveClarificationResponse(ctx, "c1", "cl-1", "production"); err != nil {
		t.Fatalf("SaveClarificationResponse: %v", err)
	}

	clarification, err := s.LoadClarification(ctx, "c1", "cl-1")
	if err != nil {
		t.Fatalf("LoadClarification: %v", err)
	}
	if clarification.Response != "production" {
		t.Errorf("response = %q, want production", clarification.Response)
	}
	if clarification.RespondedAt == nil {
		t.Error("RespondedAt not set")
	}
}

func TestEventLog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.AppendEvent(ctx, "c1", models.Event{Event: models.EventStreamResponse, Payload: map[string]any{"content": "a"}})
	s.AppendEvent(ctx, "c1", models.Event{Event: models.EventChatEnded, Payload: map[string]any{"chat_id": "c1"}})

	events, err := s.Events(ctx, "c1")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Event != models.EventStreamResponse || events[1].Event != models.EventChatEnded {
		t.Errorf("events out of order: %+v", events)
	}
}

func TestEventsSince(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.AppendEvent(ctx, "c1", models.Event{Event: models.EventProcessingStarted, Payload: map[string]any{"chat_id": "c1"}})
	s.AppendEvent(ctx, "c1", models.Event{Event: models.EventStreamResponse, Payload: map[string]any{"content": "a"}})
	s.AppendEvent(ctx, "c1", models.Event{Event: models.EventChatEnded, Payload: map[string]any{"chat_id": "c1"}})

	// Empty and "0" cursors both return the full log.
	for _, cursor := range []string{"", "0"} {
		records, err := s.EventsSince(ctx, "c1", cursor)
		if err != nil {
			t.Fatalf("EventsSince(%q): %v", cursor, err)
		}
		if len(records) != 3 {
			t.Fatalf("EventsSince(%q) = %d records, want 3", cursor, len(records))
		}
	}

	records, err := s.EventsSince(ctx, "c1", "1")
	if err != nil {
		t.Fatalf("EventsSince: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records after cursor 1, want 2", len(records))
	}
	if records[0].Event.Event != models.EventStreamResponse || records[1].Event.Event != models.EventChatEnded {
		t.Errorf("records = %+v", records)
	}

	// The cursor chains: resuming from the last returned ID yields
	// nothing new.
	tail, _ := s.EventsSince(ctx, "c1", records[1].ID)
	if len(tail) != 0 {
		t.Errorf("got %d records past the end, want 0", len(tail))
	}
}

func TestExtendTTLKeepsConversationAlive(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(50 * time.Millisecond)
	defer s.Close()

	s.SaveState(ctx, &models.ConversationState{ConversationID: "c1", Status: models.StatusAwaitingClarification})
	if err := s.ExtendTTL(ctx, "c1", time.Hour); err != nil {
		t.Fatalf("ExtendTTL: %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	if _, err := s.LoadState(ctx, "c1"); err != nil {
		t.Errorf("extended conversation expired: %v", err)
	}

	// Unknown conversations are a no-op.
	if err := s.ExtendTTL(ctx, "missing", time.Hour); err != nil {
		t.Errorf("ExtendTTL on missing conversation: %v", err)
	}
}

func TestExpiredConversationNotServed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10 * time.Millisecond)
	defer s.Close()

	s.SaveState(ctx, &models.ConversationState{ConversationID: "c1", Status: models.StatusActive})
	time.Sleep(30 * time.Millisecond)

	if _, err := s.LoadState(ctx, "c1"); err != ErrNotFound {
		t.Errorf("expired state: err = %v, want ErrNotFound", err)
	}
}

func TestRedisKeyLayout(t *testing.T) {
	if got := historyKey("c1"); got != "conv:c1:history" {
		t.Errorf("historyKey = %q", got)
	}
	if got := stateKey("c1"); got != "conv:c1:state" {
		t.Errorf("stateKey = %q", got)
	}
	if got := draftKey("c1"); got != "conv:c1:draft" {
		t.Errorf("draftKey = %q", got)
	}
	if got := eventsKey("c1"); got != "events:c1" {
		t.Errorf("eventsKey = %q", got)
	}
	if got := clarifyRequestKey("c1", "cl-1"); got != "clarify:c1:cl-1:request" {
		t.Errorf("clarifyRequestKey = %q", got)
	}
	if got := clarifyResponseKey("c1", "cl-1"); got != "clarify:c1:cl-1:response" {
		t.Errorf("clarifyResponseKey = %q", got)
	}
}
