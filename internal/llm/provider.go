// Package llm provides the LLM gateway: a streaming chat-completions
// client with incremental tool-call reassembly, used by the planner and
// by the cheaper validator/utility model.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

// ToolDefinition describes a function tool advertised to the model.
type ToolDefinition struct {
	Name        string
	Description string

	// Parameters is the JSON schema for the tool's arguments.
	Parameters json.RawMessage
}

// CompletionRequest is a chat-completions request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []models.ChatMessage
	Tools       []ToolDefinition
	Temperature float32
	MaxTokens   int
}

// CompletionChunk is a single streamed response fragment. Exactly one of
// Text, ToolCall, Error is meaningful; Done marks the final chunk.
type CompletionChunk struct {
	Text     string
	ToolCall *models.ToolCall
	Error    error
	Done     bool
}

// Response is a fully-collected completion.
type Response struct {
	Content   string
	ToolCalls []models.ToolCall
}

// Provider is the streaming LLM interface. Complete returns immediately;
// chunks arrive on the returned channel, which the provider closes when
// the stream ends.
type Provider interface {
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
}

// Generate runs a request to completion and collects the result. Text
// deltas are concatenated; tool calls are gathered in arrival order.
func Generate(ctx context.Context, p Provider, req *CompletionRequest) (*Response, error) {
	chunks, err := p.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	resp := &Response{}
	for chunk := range chunks {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		if chunk.Text != "" {
			sb.WriteString(chunk.Text)
		}
		if chunk.ToolCall != nil {
			resp.ToolCalls = append(resp.ToolCalls, *chunk.ToolCall)
		}
	}
	resp.Content = sb.String()
	return resp, nil
}
