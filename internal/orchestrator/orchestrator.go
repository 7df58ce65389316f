// Package orchestrator drives the conversation state machine: it owns
// persistence, hands turns to the planner, runs the validation
// pipeline and referencing pass on produced workflows, and emits the
// events clients consume.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/opkey-ai/reasoning-engine/internal/engine"
	"github.com/opkey-ai/reasoning-engine/internal/observability"
	"github.com/opkey-ai/reasoning-engine/internal/planner"
	"github.com/opkey-ai/reasoning-engine/internal/preprocess"
	"github.com/opkey-ai/reasoning-engine/internal/referencing"
	"github.com/opkey-ai/reasoning-engine/internal/storage"
	"github.com/opkey-ai/reasoning-engine/internal/validation"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

// ErrNoPendingClarification is returned when a clarification response
// arrives for a conversation without a matching outstanding request.
var ErrNoPendingClarification = errors.New("no matching clarification request pending")

// Options wires the orchestrator's collaborators. Store, Planner, and
// Pipeline are required; the rest are optional.
type Options struct {
	Store    storage.ConversationStore
	Planner  *planner.Planner
	Pipeline *validation.Pipeline

	JobName      *planner.JobNameGenerator
	Referencing  *referencing.Agent
	Preprocessor preprocess.Preprocessor

	// HistoryLimit caps how many trailing messages feed a planner turn.
	// Zero means the whole history.
	HistoryLimit int

	Emitter engine.EventEmitter
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Orchestrator serializes work per conversation and coordinates
// storage, planning, validation, and event emission.
type Orchestrator struct {
	opts Options

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Emitter == nil {
		opts.Emitter = engine.NopEmitter{}
	}
	return &Orchestrator{
		opts:  opts,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockConversation returns the mutex guarding one conversation,
// creating it on first use. Turns for the same conversation never
// interleave.
func (o *Orchestrator) lockConversation(conversationID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[conversationID] = lock
	}
	return lock
}

// StartRequest begins (or continues) a conversation with a user
// message.
type StartRequest struct {
	ConversationID string
	MessageID      string
	Message        string
	UserInfo       *models.UserInfo

	// History seeds prior turns supplied by the client, oldest first.
	History []models.ChatMessage

	Attachments []string
}

// StartConversation persists the new turn and runs it through the
// planner. Processing errors surface as error events, not as a
// returned error.
func (o *Orchestrator) StartConversation(ctx context.Context, req *StartRequest) error {
	lock := o.lockConversation(req.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	state := &models.ConversationState{
		ConversationID: req.ConversationID,
		Status:         models.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
		UserInfo:       req.UserInfo,
	}
	if err := o.opts.Store.SaveState(ctx, state); err != nil {
		return err
	}

	if len(req.History) > 0 {
		if err := o.opts.Store.AppendMessages(ctx, req.ConversationID, req.History...); err != nil {
			return err
		}
	}
	userMessage := models.ChatMessage{
		Role:        models.RoleUser,
		Content:     req.Message,
		Attachments: req.Attachments,
		Timestamp:   now,
	}
	if err := o.opts.Store.AppendMessages(ctx, req.ConversationID, userMessage); err != nil {
		return err
	}

	if o.opts.Metrics != nil {
		o.opts.Metrics.ConversationStarted()
	}
	o.opts.Emitter.Emit(ctx, models.Event{
		Event: models.EventProcessingStarted,
		Payload: map[string]any{
			"chat_id": req.ConversationID,
			"message": req.Message,
		},
	})

	o.process(ctx, req.ConversationID, req.MessageID, req.UserInfo)
	return nil
}

// HandleClarificationResponse resumes a conversation parked on a
// clarification. The clarification id must match the pending request.
func (o *Orchestrator) HandleClarificationResponse(ctx context.Context, conversationID, clarificationID, messageID, response string) error {
	lock := o.lockConversation(conversationID)
	lock.Lock()
	defer lock.Unlock()

	state, err := o.opts.Store.LoadState(ctx, conversationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &engine.ConversationNotFoundError{ConversationID: conversationID}
		}
		return err
	}

	pending := state.PendingClarification
	if pending == nil || pending.ClarificationID != clarificationID {
		return ErrNoPendingClarification
	}

	if err := o.opts.Store.SaveClarificationResponse(ctx, conversationID, clarificationID, response); err != nil {
		return err
	}

	now := time.Now().UTC()
	pending.Response = response
	pending.RespondedAt = &now
	state.Status = models.StatusActive
	state.Touch()
	if err := o.opts.Store.SaveState(ctx, state); err != nil {
		return err
	}

	userMessage := models.ChatMessage{
		Role:      models.RoleUser,
		Content:   "[Clarification Response]\n" + response,
		Timestamp: now,
	}
	if err := o.opts.Store.AppendMessages(ctx, conversationID, userMessage); err != nil {
		return err
	}

	o.opts.Emitter.Emit(ctx, models.Event{
		Event: models.EventClarificationReceived,
		Payload: map[string]any{
			"chat_id":          conversationID,
			"clarification_id": clarificationID,
		},
	})

	o.process(ctx, conversationID, messageID, state.UserInfo)
	return nil
}

// EndConversation marks a conversation completed. Unknown conversations
// are a no-op.
func (o *Orchestrator) EndConversation(ctx context.Context, conversationID string) error {
	lock := o.lockConversation(conversationID)
	lock.Lock()
	defer lock.Unlock()

	state, err := o.opts.Store.LoadState(ctx, conversationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	state.Status = models.StatusCompleted
	state.Touch()
	if err := o.opts.Store.SaveState(ctx, state); err != nil {
		return err
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.ConversationFinished("ended")
	}
	o.opts.Emitter.Emit(ctx, models.Event{
		Event:   models.EventChatEnded,
		Payload: map[string]any{"chat_id": conversationID},
	})
	return nil
}

// State returns the persisted conversation state.
func (o *Orchestrator) State(ctx context.Context, conversationID string) (*models.ConversationState, error) {
	return o.opts.Store.LoadState(ctx, conversationID)
}

// History returns the persisted conversation history.
func (o *Orchestrator) History(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	return o.opts.Store.History(ctx, conversationID)
}

// process runs one planner turn over the stored history.
func (o *Orchestrator) process(ctx context.Context, conversationID, messageID string, userInfo *models.UserInfo) {
	history, err := o.opts.Store.RecentHistory(ctx, conversationID, o.opts.HistoryLimit)
	if err != nil {
		o.handleError(ctx, conversationID, messageID, err)
		return
	}

	if o.opts.Preprocessor != nil && len(history) > 0 {
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Role != models.RoleUser {
				continue
			}
			history[i].Content = o.opts.Preprocessor.Preprocess(ctx, history[i].Content, history[:i], userInfo)
			break
		}
	}

	outcome, err := o.opts.Planner.Run(ctx, &planner.Request{
		ConversationID: conversationID,
		MessageID:      messageID,
		Messages:       history,
		UserInfo:       userInfo,
	})
	if err != nil {
		var clarify *engine.ClarificationRequiredError
		if errors.As(err, &clarify) {
			o.handleClarificationRequest(ctx, conversationID, messageID, clarify)
			return
		}
		o.handleError(ctx, conversationID, messageID, err)
		return
	}

	assistant := models.ChatMessage{
		Role:      models.RoleAssistant,
		Content:   outcome.Response,
		Timestamp: time.Now().UTC(),
	}
	if err := o.opts.Store.AppendMessages(ctx, conversationID, assistant); err != nil {
		o.handleError(ctx, conversationID, messageID, err)
		return
	}

	if outcome.Workflow != nil {
		if err := o.handleWorkflowOutput(ctx, conversationID, messageID, outcome, history); err != nil {
			o.handleError(ctx, conversationID, messageID, err)
			return
		}
	}

	// Closing frame so clients can stop rendering the stream.
	o.opts.Emitter.Emit(ctx, models.Event{
		Event: models.EventStreamResponse,
		Payload: map[string]any{
			"chat_id":     conversationID,
			"message_id":  messageID,
			"content":     "",
			"is_complete": true,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (o *Orchestrator) handleClarificationRequest(ctx context.Context, conversationID, messageID string, clarify *engine.ClarificationRequiredError) {
	pending := &models.ClarificationState{
		ClarificationID: clarify.ClarificationID,
		Questions:       clarify.Questions,
		CreatedAt:       time.Now().UTC(),
	}

	state, err := o.opts.Store.LoadState(ctx, conversationID)
	if err == nil {
		state.Status = models.StatusAwaitingClarification
		state.PendingClarification = pending
		state.Touch()
		if err := o.opts.Store.SaveState(ctx, state); err != nil {
			o.handleError(ctx, conversationID, messageID, err)
			return
		}
	}

	if err := o.opts.Store.SaveClarificationRequest(ctx, conversationID, pending); err != nil {
		o.handleError(ctx, conversationID, messageID, err)
		return
	}

	// The conversation may sit idle until the user answers; push the
	// expiry out so it does not vanish mid-clarification.
	if err := o.opts.Store.ExtendTTL(ctx, conversationID, 0); err != nil && o.opts.Logger != nil {
		o.opts.Logger.Warn(ctx, "failed to extend conversation ttl", "chat_id", conversationID, "error", err)
	}

	o.opts.Emitter.Emit(ctx, models.Event{
		Event: models.EventClarificationRequested,
		Payload: map[string]any{
			"chat_id":          conversationID,
			"message_id":       messageID,
			"clarification_id": clarify.ClarificationID,
			"questions":        clarify.Questions,
		},
	})
}

// handleWorkflowOutput validates, references, names, and emits a
// produced workflow, then completes the conversation.
func (o *Orchestrator) handleWorkflowOutput(ctx context.Context, conversationID, messageID string, outcome *planner.Outcome, history []models.ChatMessage) error {
	userQuery := outcome.Response
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser && history[i].Content != "" {
			userQuery = history[i].Content
			break
		}
	}

	vctx := &validation.Context{
		ConversationID: conversationID,
		MessageID:      messageID,
		UserQuery:      userQuery,
		Emitter:        o.opts.Emitter,
	}
	result, err := o.opts.Pipeline.Validate(ctx, outcome.Workflow, vctx)
	if err != nil {
		return err
	}

	if !result.Valid() {
		vctx.EmitProgress(ctx, "failed", 100, "Workflow validation failed", result.Errors)
		return nil
	}

	final := result.Corrected
	if final == nil {
		final = outcome.Workflow
	}

	if o.opts.Referencing != nil {
		final = o.opts.Referencing.Run(ctx, final, history, conversationID)
	}

	if o.opts.JobName != nil {
		final.JobName = o.opts.JobName.Generate(ctx, final, outcome.Response)
	}

	jsonData, err := json.Marshal(final)
	if err != nil {
		return err
	}
	o.opts.Emitter.Emit(ctx, models.Event{
		Event: models.EventWorkflowJSON,
		Payload: map[string]any{
			"chat_id":    conversationID,
			"message_id": messageID,
			"graph_data": final,
			"json_data":  string(jsonData),
			"job_name":   final.JobName,
		},
	})

	state, err := o.opts.Store.LoadState(ctx, conversationID)
	if err == nil {
		state.Status = models.StatusCompleted
		state.Touch()
		if err := o.opts.Store.SaveState(ctx, state); err != nil {
			return err
		}
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.ConversationFinished("completed")
	}
	return nil
}

func (o *Orchestrator) handleError(ctx context.Context, conversationID, messageID string, err error) {
	if o.opts.Logger != nil {
		o.opts.Logger.Error(ctx, "error during conversation processing",
			"conversation_id", conversationID,
			"error", err,
		)
	}

	code, message := engine.MapError(err)
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordError("orchestrator", code)
		o.opts.Metrics.ConversationFinished("error")
	}

	if state, loadErr := o.opts.Store.LoadState(ctx, conversationID); loadErr == nil {
		state.Status = models.StatusError
		state.Touch()
		_ = o.opts.Store.SaveState(ctx, state)
	}

	o.opts.Emitter.Emit(ctx, models.Event{
		Event: models.EventError,
		Payload: map[string]any{
			"chat_id":    conversationID,
			"message_id": messageID,
			"error_code": code,
			"message":    message,
		},
	})
}
