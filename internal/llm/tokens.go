package llm

import "github.com/opkey-ai/reasoning-engine/pkg/models"

// DefaultSummarizationLimit is the token estimate above which history
// should be summarized before the next planner call.
const DefaultSummarizationLimit = 100000

// EstimateTokens gives a rough token count for a message list: ~4
// characters per token, plus 10 characters of per-message overhead.
func EstimateTokens(messages []models.ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) + len(string(m.Role)) + 10
	}
	estimate := total / 4
	if estimate < 1 {
		return 1
	}
	return estimate
}

// ShouldSummarize reports whether the estimated size exceeds limit.
// A non-positive limit falls back to DefaultSummarizationLimit.
func ShouldSummarize(messages []models.ChatMessage, limit int) bool {
	if limit <= 0 {
		limit = DefaultSummarizationLimit
	}
	return EstimateTokens(messages) > limit
}
