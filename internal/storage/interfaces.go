// Package storage persists conversation state with a configurable TTL.
// Two drivers exist: Redis for production (multiple gateway replicas can
// share one store) and an in-memory driver for tests and single-node
// development.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

var (
	ErrNotFound = errors.New("not found")
)

// EventRecord is one entry of the conversation event log together with
// the driver-assigned position ID. Clients resuming a conversation pass
// the last ID they saw to EventsSince.
type EventRecord struct {
	ID    string
	Event models.Event
}

// DefaultTTL is applied when a driver is constructed with a
// non-positive TTL. Matches one day of conversation retention.
const DefaultTTL = 24 * time.Hour

// ConversationStore persists everything the engine knows about a
// conversation: message history, orchestrator state, the streamed draft
// response, pending clarifications, and the emitted event log. Every
// write refreshes the conversation's TTL; reads of history and state
// refresh it too, so an active conversation never expires mid-flight.
type ConversationStore interface {
	// AppendMessages appends messages to the conversation history.
	AppendMessages(ctx context.Context, conversationID string, messages ...models.ChatMessage) error

	// History returns the full message history, oldest first. A missing
	// conversation yields an empty slice, not an error.
	History(ctx context.Context, conversationID string) ([]models.ChatMessage, error)

	// RecentHistory returns at most max trailing messages, oldest first.
	// max <= 0 returns everything.
	RecentHistory(ctx context.Context, conversationID string, max int) ([]models.ChatMessage, error)

	// SaveState persists the orchestrator state record.
	SaveState(ctx context.Context, state *models.ConversationState) error

	// LoadState returns the state record, or ErrNotFound.
	LoadState(ctx context.Context, conversationID string) (*models.ConversationState, error)

	// Exists reports whether a state record is present.
	Exists(ctx context.Context, conversationID string) (bool, error)

	// Delete removes every key belonging to the conversation.
	Delete(ctx context.Context, conversationID string) error

	// SaveDraft stores the partially-streamed assistant response so a
	// reconnecting client can recover it.
	SaveDraft(ctx context.Context, conversationID, draft string) error

	// LoadDraft returns the stored draft, empty when none exists.
	LoadDraft(ctx context.Context, conversationID string) (string, error)

	// SaveClarificationRequest records an outstanding clarification.
	SaveClarificationRequest(ctx context.Context, conversationID string, clarification *models.ClarificationState) error

	// SaveClarificationResponse records the user's answer to a pending
	// clarification. ErrNotFound when no matching request exists.
	SaveClarificationResponse(ctx context.Context, conversationID, clarificationID, response string) error

	// LoadClarification returns a clarification with any recorded
	// response, or ErrNotFound.
	LoadClarification(ctx context.Context, conversationID, clarificationID string) (*models.ClarificationState, error)

	// AppendEvent records an emitted event in the conversation's event
	// log for replay and audit.
	AppendEvent(ctx context.Context, conversationID string, event models.Event) error

	// Events returns the recorded event log, oldest first.
	Events(ctx context.Context, conversationID string) ([]models.Event, error)

	// EventsSince returns event records after lastID, oldest first. An
	// empty or "0" lastID returns the whole log. Reconnecting clients
	// use it to replay what they missed.
	EventsSince(ctx context.Context, conversationID, lastID string) ([]EventRecord, error)

	// ExtendTTL pushes out the expiry of every key belonging to the
	// conversation. A non-positive ttl applies the store's default.
	ExtendTTL(ctx context.Context, conversationID string, ttl time.Duration) error

	// Close releases driver resources.
	Close() error
}
