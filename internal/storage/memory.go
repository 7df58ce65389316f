package storage

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opkey-ai/reasoning-engine/internal/engine"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

type memoryConversation struct {
	history        []models.ChatMessage
	state          *models.ConversationState
	draft          string
	clarifications map[string]*models.ClarificationState
	events         []models.Event
	expiresAt      time.Time
}

// MemoryStore is an in-memory ConversationStore with the same TTL
// behavior as the Redis driver. A cron sweep evicts expired
// conversations once a minute; reads also check expiry so a stale entry
// is never served between sweeps.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*memoryConversation
	ttl           time.Duration
	sweeper       *cron.Cron
}

// NewMemoryStore creates an in-memory store and starts the expiry
// sweep.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		conversations: make(map[string]*memoryConversation),
		ttl:           ttl,
		sweeper:       cron.New(),
	}
	s.sweeper.AddFunc("@every 1m", s.sweep)
	s.sweeper.Start()
	return s
}

func (s *MemoryStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conv := range s.conversations {
		if now.After(conv.expiresAt) {
			delete(s.conversations, id)
		}
	}
}

// get returns the live conversation entry, creating it when create is
// set. Expired entries are treated as absent. Callers hold s.mu.
func (s *MemoryStore) get(conversationID string, create bool) *memoryConversation {
	conv, ok := s.conversations[conversationID]
	if ok && time.Now().After(conv.expiresAt) {
		delete(s.conversations, conversationID)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		conv = &memoryConversation{clarifications: make(map[string]*models.ClarificationState)}
		s.conversations[conversationID] = conv
	}
	conv.expiresAt = time.Now().Add(s.ttl)
	return conv
}

func (s *MemoryStore) AppendMessages(ctx context.Context, conversationID string, messages ...models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(conversationID, true)
	conv.history = append(conv.history, messages...)
	return nil
}

func (s *MemoryStore) History(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(conversationID, false)
	if conv == nil {
		return []models.ChatMessage{}, nil
	}
	out := make([]models.ChatMessage, len(conv.history))
	copy(out, conv.history)
	return out, nil
}

func (s *MemoryStore) RecentHistory(ctx context.Context, conversationID string, max int) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(conversationID, false)
	if conv == nil {
		return []models.ChatMessage{}, nil
	}
	history := conv.history
	if max > 0 && len(history) > max {
		history = history[len(history)-max:]
	}
	out := make([]models.ChatMessage, len(history))
	copy(out, history)
	return out, nil
}

func (s *MemoryStore) SaveState(ctx context.Context, state *models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(state.ConversationID, true)
	copied := *state
	conv.state = &copied
	return nil
}

func (s *MemoryStore) LoadState(ctx context.Context, conversationID string) (*models.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(conversationID, false)
	if conv == nil || conv.state == nil {
		return nil, ErrNotFound
	}
	copied := *conv.state
	return &copied, nil
}

func (s *MemoryStore) Exists(ctx context.Context, conversationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(conversationID, false)
	return conv != nil && conv.state != nil, nil
}

func (s *MemoryStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	return nil
}

func (s *MemoryStore) SaveDraft(ctx context.Context, conversationID, draft string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(conversationID, true)
	conv.draft = draft
	return nil
}

func (s *MemoryStore) LoadDraft(ctx context.Context, conversationID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(conversationID, false)
	if conv == nil {
		return "", nil
	}
	return conv.draft, nil
}

func (s *MemoryStore) SaveClarificationRequest(ctx context.Context, conversationID string, clarification *models.ClarificationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(conversationID, true)
	copied := *clarification
	conv.clarifications[clarification.ClarificationID] = &copied
	return nil
}

func (s *MemoryStore) SaveClarificationResponse(ctx context.Context, conversationID, clarificationID, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(conversationID, false)
	if conv == nil {
		return ErrNotFound
	}
	clarification, ok := conv.clarifications[clarificationID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	clarification.Response = response
	clarification.RespondedAt = &now
	return nil
}

func (s *MemoryStore) LoadClarification(ctx context.Context, conversationID, clarificationID string) (*models.ClarificationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(conversationID, false)
	if conv == nil {
		return nil, ErrNotFound
	}
	clarification, ok := conv.clarifications[clarificationID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *clarification
	return &copied, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, conversationID string, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(conversationID, true)
	conv.events = append(conv.events, event)
	return nil
}

func (s *MemoryStore) Events(ctx context.Context, conversationID string) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(conversationID, false)
	if conv == nil {
		return []models.Event{}, nil
	}
	out := make([]models.Event, len(conv.events))
	copy(out, conv.events)
	return out, nil
}

// EventsSince numbers events by their position in the log, starting at
// "1", mirroring the cursor semantics of the Redis stream driver.
func (s *MemoryStore) EventsSince(ctx context.Context, conversationID, lastID string) ([]EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(conversationID, false)
	if conv == nil {
		return []EventRecord{}, nil
	}
	offset := 0
	if lastID != "" && lastID != "0" {
		n, err := strconv.Atoi(lastID)
		if err != nil {
			return nil, &engine.StorageError{Op: "parse event cursor", Err: err}
		}
		offset = n
	}
	if offset > len(conv.events) {
		offset = len(conv.events)
	}
	records := make([]EventRecord, 0, len(conv.events)-offset)
	for i := offset; i < len(conv.events); i++ {
		records = append(records, EventRecord{ID: strconv.Itoa(i + 1), Event: conv.events[i]})
	}
	return records, nil
}

func (s *MemoryStore) ExtendTTL(ctx context.Context, conversationID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(conversationID, false)
	if conv == nil {
		return nil
	}
	conv.expiresAt = time.Now().Add(ttl)
	return nil
}

// Clear removes all conversations. Test helper.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = make(map[string]*memoryConversation)
}

func (s *MemoryStore) Close() error {
	s.sweeper.Stop()
	return nil
}

var _ ConversationStore = (*MemoryStore)(nil)
