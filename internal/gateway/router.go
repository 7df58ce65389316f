package gateway

import (
	"context"
	"sync"

	"github.com/opkey-ai/reasoning-engine/internal/observability"
	"github.com/opkey-ai/reasoning-engine/internal/storage"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

// frameWriter delivers one event frame to a client.
type frameWriter interface {
	writeEvent(event models.Event) error
}

// EventRouter fans engine events out to the websocket connection that
// owns each conversation and records them in the conversation's event
// log. It is the single engine.EventEmitter the orchestrator and its
// agents are wired with; routing happens on the chat_id carried by
// every server event payload.
type EventRouter struct {
	store  storage.ConversationStore
	logger *observability.Logger

	mu    sync.RWMutex
	sinks map[string]frameWriter
}

// NewEventRouter creates a router. Store may be nil to skip event
// persistence.
func NewEventRouter(store storage.ConversationStore, logger *observability.Logger) *EventRouter {
	return &EventRouter{
		store:  store,
		logger: logger,
		sinks:  make(map[string]frameWriter),
	}
}

// bind routes a conversation's events to w, replacing any previous
// binding. A reconnecting client takes over its conversation.
func (r *EventRouter) bind(conversationID string, w frameWriter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[conversationID] = w
}

// unbindWriter drops every conversation bound to w.
func (r *EventRouter) unbindWriter(w frameWriter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sink := range r.sinks {
		if sink == w {
			delete(r.sinks, id)
		}
	}
}

// replay writes every recorded event after lastID to w, so a
// reconnecting client catches up before live delivery resumes. An empty
// lastID replays the whole log.
func (r *EventRouter) replay(ctx context.Context, conversationID, lastID string, w frameWriter) error {
	if r.store == nil {
		return nil
	}
	records, err := r.store.EventsSince(ctx, conversationID, lastID)
	if err != nil {
		return err
	}
	for _, record := range records {
		if err := w.writeEvent(record.Event); err != nil {
			return err
		}
	}
	return nil
}

// Emit implements engine.EventEmitter.
func (r *EventRouter) Emit(ctx context.Context, event models.Event) {
	chatID, _ := event.Payload["chat_id"].(string)
	if chatID == "" {
		if r.logger != nil {
			r.logger.Debug(ctx, "dropping event without chat_id", "event", string(event.Event))
		}
		return
	}

	if r.store != nil {
		if err := r.store.AppendEvent(ctx, chatID, event); err != nil && r.logger != nil {
			r.logger.Warn(ctx, "failed to persist event",
				"event", string(event.Event),
				"chat_id", chatID,
				"error", err,
			)
		}
	}

	r.mu.RLock()
	sink := r.sinks[chatID]
	r.mu.RUnlock()
	if sink == nil {
		return
	}
	if err := sink.writeEvent(event); err != nil && r.logger != nil {
		r.logger.Warn(ctx, "failed to deliver event",
			"event", string(event.Event),
			"chat_id", chatID,
			"error", err,
		)
	}
}
