package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/opkey-ai/reasoning-engine/internal/llm"
	"github.com/opkey-ai/reasoning-engine/internal/observability"
	"github.com/opkey-ai/reasoning-engine/internal/prompts"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

const summarizerTemperature = 0.1

// Summarizer condenses conversation history with a cheap LLM call.
// User clarifications survive verbatim; reasoning and tool output are
// trimmed to conclusions.
type Summarizer struct {
	provider llm.Provider
	model    string
	logger   *observability.Logger
}

// NewSummarizer creates a summarizer on the given provider.
func NewSummarizer(provider llm.Provider, model string, logger *observability.Logger) *Summarizer {
	return &Summarizer{provider: provider, model: model, logger: logger}
}

// Summarize compacts messages to [system message, if present] plus one
// summary message. Two or fewer messages pass through, and any failure
// keeps the originals — summarization is an optimization, never a
// correctness requirement.
func (s *Summarizer) Summarize(ctx context.Context, messages []models.ChatMessage) []models.ChatMessage {
	if len(messages) <= 2 {
		return messages
	}

	var systemMsg *models.ChatMessage
	parts := make([]string, 0, len(messages))
	for i := range messages {
		msg := messages[i]
		if msg.Role == models.RoleSystem {
			if systemMsg == nil {
				systemMsg = &messages[i]
			}
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", capitalize(string(msg.Role)), msg.Content))
	}
	transcript := strings.Join(parts, "\n\n")

	resp, err := llm.Generate(ctx, s.provider, &llm.CompletionRequest{
		Model:  s.model,
		System: prompts.SummarizerSystem,
		Messages: []models.ChatMessage{
			{Role: models.RoleUser, Content: "Summarize this conversation:\n\n" + transcript},
		},
		Temperature: summarizerTemperature,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Warn(ctx, "summarization failed, keeping original messages", "error", err)
		}
		return messages
	}

	summary := resp.Content
	if summary == "" {
		summary = transcript
	}

	result := make([]models.ChatMessage, 0, 2)
	if systemMsg != nil {
		result = append(result, *systemMsg)
	}
	result = append(result, models.ChatMessage{
		Role:    models.RoleUser,
		Content: "[Conversation Summary]\n" + summary,
	})

	if s.logger != nil {
		s.logger.Info(ctx, "conversation summarized",
			"original_count", len(messages),
			"summary_length", len(summary),
		)
	}
	return result
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
