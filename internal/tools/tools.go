// Package tools implements the planner's tool surface: the action tools
// that gather information and the output-signalling tools the planner
// loop intercepts to produce user-visible results.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/opkey-ai/reasoning-engine/internal/llm"
)

// Result is the outcome of one tool execution. Content is JSON text fed
// back to the model as the tool message.
type Result struct {
	Content string
	IsError bool
}

// Tool is a callable exposed to the planner model.
type Tool interface {
	Name() string
	Description() string

	// Schema returns the JSON schema for the tool's arguments.
	Schema() json.RawMessage

	Execute(ctx context.Context, args json.RawMessage) (*Result, error)
}

// Output-signalling tool names. Calls to these are intercepted by the
// planner loop instead of being fed back as tool results.
const (
	ToolWebSearch       = "web_search"
	ToolTaskBlockSearch = "task_block_search"
	ToolClarify         = "clarify"
	ToolThinkApproach   = "think_approach"
	ToolPresentAnswer   = "present_answer"
	ToolSubmitWorkflow  = "submit_workflow"
)

// IsOutputTool reports whether a tool signals output rather than
// gathering information.
func IsOutputTool(name string) bool {
	switch name {
	case ToolClarify, ToolThinkApproach, ToolPresentAnswer, ToolSubmitWorkflow:
		return true
	}
	return false
}

// MaxToolArgsSize bounds tool argument JSON (1MB).
const MaxToolArgsSize = 1 << 20

// Registry manages available tools with thread-safe registration and
// schema-validated execution.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its argument schema. A tool with the
// same name is replaced.
func (r *Registry) Register(tool Tool) error {
	schema, err := jsonschema.CompileString(tool.Name()+".json", string(tool.Schema()))
	if err != nil {
		return fmt.Errorf("compile schema for tool %s: %w", tool.Name(), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	r.schemas[tool.Name()] = schema
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Definitions returns the registered tools as LLM tool definitions,
// sorted by name for a stable prompt.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return defs
}

// Execute runs a tool by name after validating its arguments against
// the tool's schema. Unknown tools and invalid arguments produce error
// results, not errors, so the model can self-correct.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (*Result, error) {
	if len(args) > MaxToolArgsSize {
		return &Result{
			Content: fmt.Sprintf("tool arguments exceed maximum size of %d bytes", MaxToolArgsSize),
			IsError: true,
		}, nil
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return &Result{Content: "tool not found: " + name, IsError: true}, nil
	}

	if schema != nil {
		var decoded any
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		if err := json.Unmarshal(args, &decoded); err != nil {
			return &Result{Content: "invalid tool arguments: " + err.Error(), IsError: true}, nil
		}
		if err := schema.Validate(decoded); err != nil {
			return &Result{Content: "invalid tool arguments: " + schemaErrorSummary(err), IsError: true}, nil
		}
	}

	return tool.Execute(ctx, args)
}

// schemaErrorSummary flattens a validation error into one line for the
// model.
func schemaErrorSummary(err error) string {
	return strings.Join(strings.Fields(err.Error()), " ")
}

// encodeResult marshals a tool result payload to JSON content.
func encodeResult(payload any) (*Result, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Result{Content: string(data)}, nil
}
