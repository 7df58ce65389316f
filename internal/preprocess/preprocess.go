// Package preprocess refines user queries before they reach the
// planner. Three modes: disabled (passthrough), inline (guidance
// appended to the message, no extra LLM call), and separate (a
// dedicated refinement LLM call).
package preprocess

import (
	"context"
	"fmt"

	"github.com/opkey-ai/reasoning-engine/internal/engine"
	"github.com/opkey-ai/reasoning-engine/internal/llm"
	"github.com/opkey-ai/reasoning-engine/internal/observability"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

// Refinement modes accepted in configuration.
const (
	ModeDisabled = "disabled"
	ModeInline   = "inline"
	ModeSeparate = "separate"
)

// Preprocessor rewrites the user message before planning. The returned
// message may be unchanged; failures degrade to the original message.
type Preprocessor interface {
	Preprocess(ctx context.Context, message string, history []models.ChatMessage, userInfo *models.UserInfo) string
}

// New builds the preprocessor for the configured mode. Separate mode
// requires a provider; unknown modes fall back to passthrough.
func New(mode string, provider llm.Provider, model string, emitter engine.EventEmitter, logger *observability.Logger) (Preprocessor, error) {
	switch mode {
	case ModeSeparate:
		if provider == nil {
			return nil, fmt.Errorf("query refinement mode %q requires an llm provider", ModeSeparate)
		}
		return NewQueryRefinement(provider, model, emitter, logger), nil
	case ModeInline:
		return InlineRefinement{}, nil
	default:
		return Passthrough{}, nil
	}
}

// Passthrough returns the message unchanged. Zero overhead when query
// refinement is disabled.
type Passthrough struct{}

func (Passthrough) Preprocess(_ context.Context, message string, _ []models.ChatMessage, _ *models.UserInfo) string {
	return message
}
