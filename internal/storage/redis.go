package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opkey-ai/reasoning-engine/internal/engine"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

// RedisStore implements ConversationStore on Redis. Key layout:
//
//	conv:{id}:history                      list of JSON messages
//	conv:{id}:state                        JSON state record
//	conv:{id}:draft                        partial streamed response
//	clarify:{id}:{clarification}:request   JSON clarification request
//	clarify:{id}:{clarification}:response  raw response text
//	events:{id}                            stream of emitted events
//
// Every key carries the configured TTL; history and state reads refresh
// it so an active conversation stays alive.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis at url (redis:// or rediss://) and
// verifies the connection with a ping.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, &engine.StorageError{Op: "parse redis url", Err: err}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, &engine.StorageError{Op: "connect to redis", Err: err}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func historyKey(id string) string { return "conv:" + id + ":history" }
func stateKey(id string) string   { return "conv:" + id + ":state" }
func draftKey(id string) string   { return "conv:" + id + ":draft" }
func eventsKey(id string) string  { return "events:" + id }

func clarifyRequestKey(conversationID, clarificationID string) string {
	return fmt.Sprintf("clarify:%s:%s:request", conversationID, clarificationID)
}

func clarifyResponseKey(conversationID, clarificationID string) string {
	return fmt.Sprintf("clarify:%s:%s:response", conversationID, clarificationID)
}

func (s *RedisStore) AppendMessages(ctx context.Context, conversationID string, messages ...models.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	encoded := make([]any, 0, len(messages))
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return &engine.StorageError{Op: "encode message", Err: err}
		}
		encoded = append(encoded, data)
	}

	key := historyKey(conversationID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, encoded...)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return &engine.StorageError{Op: "save message", Err: err}
	}
	return nil
}

func (s *RedisStore) History(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	key := historyKey(conversationID)
	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, &engine.StorageError{Op: "load history", Err: err}
	}
	messages := make([]models.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, &engine.StorageError{Op: "decode message", Err: err}
		}
		messages = append(messages, msg)
	}
	if len(messages) > 0 {
		s.client.Expire(ctx, key, s.ttl)
	}
	return messages, nil
}

func (s *RedisStore) RecentHistory(ctx context.Context, conversationID string, max int) ([]models.ChatMessage, error) {
	if max <= 0 {
		return s.History(ctx, conversationID)
	}
	key := historyKey(conversationID)
	raw, err := s.client.LRange(ctx, key, int64(-max), -1).Result()
	if err != nil {
		return nil, &engine.StorageError{Op: "load history", Err: err}
	}
	messages := make([]models.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, &engine.StorageError{Op: "decode message", Err: err}
		}
		messages = append(messages, msg)
	}
	if len(messages) > 0 {
		s.client.Expire(ctx, key, s.ttl)
	}
	return messages, nil
}

func (s *RedisStore) SaveState(ctx context.Context, state *models.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return &engine.StorageError{Op: "encode state", Err: err}
	}
	if err := s.client.Set(ctx, stateKey(state.ConversationID), data, s.ttl).Err(); err != nil {
		return &engine.StorageError{Op: "save state", Err: err}
	}
	return nil
}

func (s *RedisStore) LoadState(ctx context.Context, conversationID string) (*models.ConversationState, error) {
	key := stateKey(conversationID)
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &engine.StorageError{Op: "load state", Err: err}
	}
	var state models.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, &engine.StorageError{Op: "decode state", Err: err}
	}
	s.client.Expire(ctx, key, s.ttl)
	return &state, nil
}

func (s *RedisStore) Exists(ctx context.Context, conversationID string) (bool, error) {
	n, err := s.client.Exists(ctx, stateKey(conversationID)).Result()
	if err != nil {
		return false, &engine.StorageError{Op: "check conversation", Err: err}
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, conversationID string) error {
	keys := []string{
		historyKey(conversationID),
		stateKey(conversationID),
		draftKey(conversationID),
		eventsKey(conversationID),
	}

	// Clarification keys are per-clarification-id, so they have to be
	// discovered by scan.
	iter := s.client.Scan(ctx, 0, "clarify:"+conversationID+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return &engine.StorageError{Op: "scan clarification keys", Err: err}
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return &engine.StorageError{Op: "delete conversation", Err: err}
	}
	return nil
}

func (s *RedisStore) SaveDraft(ctx context.Context, conversationID, draft string) error {
	if err := s.client.Set(ctx, draftKey(conversationID), draft, s.ttl).Err(); err != nil {
		return &engine.StorageError{Op: "save draft", Err: err}
	}
	return nil
}

func (s *RedisStore) LoadDraft(ctx context.Context, conversationID string) (string, error) {
	draft, err := s.client.Get(ctx, draftKey(conversationID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", &engine.StorageError{Op: "load draft", Err: err}
	}
	return draft, nil
}

func (s *RedisStore) SaveClarificationRequest(ctx context.Context, conversationID string, clarification *models.ClarificationState) error {
	data, err := json.Marshal(clarification)
	if err != nil {
		return &engine.StorageError{Op: "encode clarification", Err: err}
	}
	key := clarifyRequestKey(conversationID, clarification.ClarificationID)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return &engine.StorageError{Op: "save clarification request", Err: err}
	}
	return nil
}

func (s *RedisStore) SaveClarificationResponse(ctx context.Context, conversationID, clarificationID, response string) error {
	exists, err := s.client.Exists(ctx, clarifyRequestKey(conversationID, clarificationID)).Result()
	if err != nil {
		return &engine.StorageError{Op: "check clarification", Err: err}
	}
	if exists == 0 {
		return ErrNotFound
	}
	key := clarifyResponseKey(conversationID, clarificationID)
	if err := s.client.Set(ctx, key, response, s.ttl).Err(); err != nil {
		return &engine.StorageError{Op: "save clarification response", Err: err}
	}
	return nil
}

func (s *RedisStore) LoadClarification(ctx context.Context, conversationID, clarificationID string) (*models.ClarificationState, error) {
	data, err := s.client.Get(ctx, clarifyRequestKey(conversationID, clarificationID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &engine.StorageError{Op: "load clarification", Err: err}
	}
	var clarification models.ClarificationState
	if err := json.Unmarshal(data, &clarification); err != nil {
		return nil, &engine.StorageError{Op: "decode clarification", Err: err}
	}

	response, err := s.client.Get(ctx, clarifyResponseKey(conversationID, clarificationID)).Result()
	if err != nil && err != redis.Nil {
		return nil, &engine.StorageError{Op: "load clarification response", Err: err}
	}
	if err == nil {
		clarification.Response = response
	}
	return &clarification, nil
}

func (s *RedisStore) AppendEvent(ctx context.Context, conversationID string, event models.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return &engine.StorageError{Op: "encode event", Err: err}
	}
	key := eventsKey(conversationID)
	pipe := s.client.Pipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]any{
			"event":   string(event.Event),
			"payload": payload,
		},
	})
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return &engine.StorageError{Op: "append event", Err: err}
	}
	return nil
}

func (s *RedisStore) Events(ctx context.Context, conversationID string) ([]models.Event, error) {
	entries, err := s.client.XRange(ctx, eventsKey(conversationID), "-", "+").Result()
	if err != nil {
		return nil, &engine.StorageError{Op: "load events", Err: err}
	}
	events := make([]models.Event, 0, len(entries))
	for _, entry := range entries {
		event, err := decodeEventEntry(entry)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func (s *RedisStore) EventsSince(ctx context.Context, conversationID, lastID string) ([]EventRecord, error) {
	start := "-"
	if lastID != "" && lastID != "0" {
		start = "(" + lastID // exclusive: everything after the cursor
	}
	entries, err := s.client.XRange(ctx, eventsKey(conversationID), start, "+").Result()
	if err != nil {
		return nil, &engine.StorageError{Op: "load events", Err: err}
	}
	records := make([]EventRecord, 0, len(entries))
	for _, entry := range entries {
		event, err := decodeEventEntry(entry)
		if err != nil {
			return nil, err
		}
		records = append(records, EventRecord{ID: entry.ID, Event: event})
	}
	return records, nil
}

func decodeEventEntry(entry redis.XMessage) (models.Event, error) {
	event := models.Event{}
	if name, ok := entry.Values["event"].(string); ok {
		event.Event = models.EventType(name)
	}
	if raw, ok := entry.Values["payload"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &event.Payload); err != nil {
			return event, &engine.StorageError{Op: "decode event", Err: err}
		}
	}
	return event, nil
}

func (s *RedisStore) ExtendTTL(ctx context.Context, conversationID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	pipe := s.client.Pipeline()
	for _, key := range []string{
		historyKey(conversationID),
		stateKey(conversationID),
		draftKey(conversationID),
		eventsKey(conversationID),
	} {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &engine.StorageError{Op: "extend ttl", Err: err}
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ ConversationStore = (*RedisStore)(nil)
