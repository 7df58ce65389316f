package preprocess

import (
	"context"

	"github.com/opkey-ai/reasoning-engine/internal/prompts"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

// InlineRefinement appends refinement guidance directly to the user
// message. No separate LLM call, so no latency overhead. The guidance
// nudges the planner toward ERP sequencing, multi-environment
// handling, and research-driven block discovery.
type InlineRefinement struct{}

func (InlineRefinement) Preprocess(_ context.Context, message string, _ []models.ChatMessage, _ *models.UserInfo) string {
	return message + prompts.InlineRefinementGuidance()
}
