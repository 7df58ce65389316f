// Package referencing fills mandatory workflow inputs from conversation
// context. Given a validated workflow and the chat history, an LLM pass
// populates empty input fields with values the user already provided.
package referencing

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/opkey-ai/reasoning-engine/internal/engine"
	"github.com/opkey-ai/reasoning-engine/internal/llm"
	"github.com/opkey-ai/reasoning-engine/internal/observability"
	"github.com/opkey-ai/reasoning-engine/internal/prompts"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

const referencingTemperature = 0.1

var jsonFence = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// Agent runs the input-referencing pass.
type Agent struct {
	provider llm.Provider
	model    string
	emitter  engine.EventEmitter
	logger   *observability.Logger
}

// NewAgent creates a referencing agent. Emitter may be nil.
func NewAgent(provider llm.Provider, model string, emitter engine.EventEmitter, logger *observability.Logger) *Agent {
	if emitter == nil {
		emitter = engine.NopEmitter{}
	}
	return &Agent{provider: provider, model: model, emitter: emitter, logger: logger}
}

// Run fills workflow inputs from the conversation. Any failure keeps
// the workflow unchanged; referencing is best-effort by contract.
func (a *Agent) Run(ctx context.Context, workflow *models.Workflow, history []models.ChatMessage, conversationID string) *models.Workflow {
	if conversationID != "" {
		a.emitter.Emit(ctx, models.Event{
			Event: models.EventReferencingStarted,
			Payload: map[string]any{
				"chat_id": conversationID,
				"message": "Filling workflow inputs...",
			},
		})
	}

	parts := make([]string, 0, len(history))
	for _, msg := range history {
		if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", capitalize(string(msg.Role)), msg.Content))
	}
	queryHistory := strings.Join(parts, "\n\n")

	workflowJSON, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return workflow
	}

	resp, err := llm.Generate(ctx, a.provider, &llm.CompletionRequest{
		Model: a.model,
		Messages: []models.ChatMessage{
			{Role: models.RoleUser, Content: prompts.ReferencingPrompt(string(workflowJSON), queryHistory)},
		},
		Temperature: referencingTemperature,
	})
	if err != nil {
		if a.logger != nil {
			a.logger.Warn(ctx, "referencing failed", "error", err)
		}
		return workflow
	}

	updated := parseWorkflow(resp.Content)
	if updated == nil {
		if a.logger != nil {
			a.logger.Warn(ctx, "could not parse workflow from referencing response")
		}
		return workflow
	}

	if a.logger != nil {
		a.logger.Info(ctx, "referencing completed, inputs populated",
			"conversation_id", conversationID,
			"block_count", len(updated.Blocks),
		)
	}
	return updated
}

// parseWorkflow extracts a workflow from the LLM response: JSON code
// fences first, then the first balanced JSON object in raw text. A
// parse only counts when it yields at least one block.
func parseWorkflow(text string) *models.Workflow {
	for _, match := range jsonFence.FindAllStringSubmatch(text, -1) {
		var workflow models.Workflow
		if err := json.Unmarshal([]byte(match[1]), &workflow); err == nil && len(workflow.Blocks) > 0 {
			return &workflow
		}
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return nil
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var workflow models.Workflow
				if err := json.Unmarshal([]byte(text[start:i+1]), &workflow); err == nil && len(workflow.Blocks) > 0 {
					return &workflow
				}
				return nil
			}
		}
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
