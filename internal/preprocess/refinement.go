package preprocess

import (
	"context"

	"github.com/opkey-ai/reasoning-engine/internal/engine"
	"github.com/opkey-ai/reasoning-engine/internal/llm"
	"github.com/opkey-ai/reasoning-engine/internal/observability"
	"github.com/opkey-ai/reasoning-engine/internal/prompts"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

const refinementTemperature = 0.5

// QueryRefinement runs a dedicated LLM call to expand the user's query
// with planning guidance before the planner sees it.
type QueryRefinement struct {
	provider llm.Provider
	model    string
	emitter  engine.EventEmitter
	logger   *observability.Logger
}

// NewQueryRefinement creates the separate-call preprocessor. Emitter
// may be nil.
func NewQueryRefinement(provider llm.Provider, model string, emitter engine.EventEmitter, logger *observability.Logger) *QueryRefinement {
	if emitter == nil {
		emitter = engine.NopEmitter{}
	}
	return &QueryRefinement{provider: provider, model: model, emitter: emitter, logger: logger}
}

// Preprocess refines the message, falling back to the original on any
// failure. Started and completed events bracket the call either way.
func (q *QueryRefinement) Preprocess(ctx context.Context, message string, _ []models.ChatMessage, _ *models.UserInfo) string {
	q.emitter.Emit(ctx, models.Event{
		Event:   models.EventQueryRefinementStarted,
		Payload: map[string]any{"message": "Refining query..."},
	})

	userPrompt := "Transform this user query by adding comprehensive guidance " +
		"for the workflow planner:\n\n" +
		message + "\n\n" +
		"Write as a journey of discovery:\n" +
		"- Start with research directions\n" +
		"- Show how research findings lead to different paths\n" +
		"- Be explicit about multi-environment operations\n" +
		"- Guide flexible block selection based on what's found\n" +
		"- Include production safeguards when applicable"

	refined := message
	resp, err := llm.Generate(ctx, q.provider, &llm.CompletionRequest{
		Model:  q.model,
		System: prompts.QueryRefinementSystem(),
		Messages: []models.ChatMessage{
			{Role: models.RoleUser, Content: userPrompt},
		},
		Temperature: refinementTemperature,
	})
	switch {
	case err != nil:
		if q.logger != nil {
			q.logger.Warn(ctx, "query refinement failed, using original", "error", err)
		}
	case resp.Content != "":
		refined = resp.Content
		if q.logger != nil {
			q.logger.Info(ctx, "query refined",
				"original_length", len(message),
				"refined_length", len(refined),
			)
		}
	}

	q.emitter.Emit(ctx, models.Event{
		Event:   models.EventQueryRefinementCompleted,
		Payload: map[string]any{"message": "Query refinement complete"},
	})
	return refined
}
