// Package planner implements the LLM planning loop that turns a
// conversation into either a workflow graph or a conversational answer.
package planner

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opkey-ai/reasoning-engine/internal/engine"
	"github.com/opkey-ai/reasoning-engine/internal/llm"
	"github.com/opkey-ai/reasoning-engine/internal/observability"
	"github.com/opkey-ai/reasoning-engine/internal/prompts"
	"github.com/opkey-ai/reasoning-engine/internal/tools"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

const (
	// DefaultMaxIterations bounds the tool loop.
	DefaultMaxIterations = 10

	planningTemperature = 0.7
)

// Options configures a Planner.
type Options struct {
	Provider llm.Provider
	Model    string

	Registry *tools.Registry
	Executor *tools.Executor

	// Summarizer compacts history when the token estimate crosses
	// TokenLimit. Optional.
	Summarizer *Summarizer
	TokenLimit int

	// FewShot supplies example workflows for the system prompt. Optional.
	FewShot *FewShotRetriever

	Emitter engine.EventEmitter
	Logger  *observability.Logger
	Metrics *observability.Metrics

	MaxIterations int
}

// Planner runs the iterative plan/act loop against the planner model.
type Planner struct {
	opts Options
}

// NewPlanner creates a planner. Emitter defaults to a no-op sink.
func NewPlanner(opts Options) *Planner {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.TokenLimit <= 0 {
		opts.TokenLimit = llm.DefaultSummarizationLimit
	}
	if opts.Emitter == nil {
		opts.Emitter = engine.NopEmitter{}
	}
	if opts.Executor == nil {
		opts.Executor = tools.NewExecutor(opts.Registry, nil)
	}
	return &Planner{opts: opts}
}

// Request is one planning turn.
type Request struct {
	ConversationID string
	MessageID      string

	// Messages is the conversation history, newest last.
	Messages []models.ChatMessage

	UserInfo *models.UserInfo
}

// Outcome is the result of a completed planning turn. Workflow is nil
// for purely conversational answers.
type Outcome struct {
	Response string
	Workflow *models.Workflow
}

// Run executes the planning loop. It streams text to the emitter as it
// arrives and returns when the model produces a final answer or
// workflow, or the iteration limit is reached.
//
// When the model calls the clarify tool, Run stops with an
// *engine.ClarificationRequiredError; the orchestrator parks the
// conversation until the user responds.
func (p *Planner) Run(ctx context.Context, req *Request) (*Outcome, error) {
	logger := p.opts.Logger
	if logger != nil {
		logger.Info(ctx, "starting planning",
			"conversation_id", req.ConversationID,
			"message_count", len(req.Messages),
		)
	}

	fewShot := ""
	if p.opts.FewShot != nil {
		examples, err := p.opts.FewShot.Examples(ctx, lastUserMessage(req.Messages), DefaultMaxExamples)
		if err == nil {
			fewShot = FormatExamples(examples)
		} else if logger != nil {
			logger.Warn(ctx, "few-shot retrieval failed", "error", err)
		}
	}
	system := prompts.PlannerSystem(req.UserInfo, fewShot)

	history := append([]models.ChatMessage(nil), req.Messages...)
	toolDefs := p.opts.Registry.Definitions()

	var accumulated string
	var submitted *models.Workflow

	for iteration := 1; iteration <= p.opts.MaxIterations; iteration++ {
		if logger != nil {
			logger.Debug(ctx, "planner iteration",
				"conversation_id", req.ConversationID,
				"iteration", iteration,
			)
		}

		if p.opts.Summarizer != nil && llm.ShouldSummarize(history, p.opts.TokenLimit) {
			if logger != nil {
				logger.Info(ctx, "summarizing history before llm call",
					"conversation_id", req.ConversationID,
					"message_count", len(history),
				)
			}
			history = p.opts.Summarizer.Summarize(ctx, history)
		}

		start := time.Now()
		chunks, err := p.opts.Provider.Complete(ctx, &llm.CompletionRequest{
			Model:       p.opts.Model,
			System:      system,
			Messages:    history,
			Tools:       toolDefs,
			Temperature: planningTemperature,
		})
		if err != nil {
			return nil, err
		}

		var content string
		var toolCalls []models.ToolCall
		for chunk := range chunks {
			if chunk.Error != nil {
				return nil, chunk.Error
			}
			if chunk.Text != "" {
				content += chunk.Text
				accumulated += chunk.Text
				p.opts.Emitter.Emit(ctx, models.Event{
					Event: models.EventStreamResponse,
					Payload: map[string]any{
						"chat_id":     req.ConversationID,
						"message_id":  req.MessageID,
						"content":     chunk.Text,
						"is_complete": false,
						"timestamp":   time.Now().UTC().Format(time.RFC3339),
					},
				})
			}
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}
		}
		if p.opts.Metrics != nil {
			p.opts.Metrics.RecordLLMRequest("planner", p.opts.Model, "ok", time.Since(start).Seconds(), llm.EstimateTokens(history), 0)
		}

		if len(toolCalls) == 0 {
			workflow := submitted
			if workflow == nil {
				workflow = ParseWorkflowFromText(accumulated)
			}
			return &Outcome{Response: accumulated, Workflow: workflow}, nil
		}

		history = append(history, models.ChatMessage{
			Role:      models.RoleAssistant,
			Content:   content,
			ToolCalls: toolCalls,
		})

		toolMessages, workflow, err := p.handleToolCalls(ctx, req, toolCalls)
		if err != nil {
			return nil, err
		}
		if workflow != nil {
			submitted = workflow
		}
		history = append(history, toolMessages...)
	}

	workflow := submitted
	if workflow == nil {
		workflow = ParseWorkflowFromText(accumulated)
	}
	return &Outcome{Response: accumulated, Workflow: workflow}, nil
}

// handleToolCalls executes one batch of tool calls: output tools are
// intercepted inline, action tools run on the parallel executor. The
// returned messages preserve call order.
func (p *Planner) handleToolCalls(ctx context.Context, req *Request, calls []models.ToolCall) ([]models.ChatMessage, *models.Workflow, error) {
	var submitted *models.Workflow

	actionCalls := make([]models.ToolCall, 0, len(calls))
	for _, call := range calls {
		if !tools.IsOutputTool(call.Name) {
			actionCalls = append(actionCalls, call)
			p.emitToolStarted(ctx, req, call.Name)
		}
	}

	actionResults := make(map[string]*tools.ExecutionResult, len(actionCalls))
	for _, result := range p.opts.Executor.ExecuteAll(ctx, actionCalls) {
		actionResults[result.ToolCallID] = result
		p.emitToolResults(ctx, req, result)
	}

	messages := make([]models.ChatMessage, 0, len(calls))
	for _, call := range calls {
		if tools.IsOutputTool(call.Name) {
			msg, workflow, err := p.handleOutputTool(ctx, req, call)
			if err != nil {
				return nil, nil, err
			}
			if workflow != nil {
				submitted = workflow
			}
			messages = append(messages, msg)
			continue
		}
		if result, ok := actionResults[call.ID]; ok {
			messages = append(messages, tools.ResultsToMessages([]*tools.ExecutionResult{result})...)
		}
	}
	return messages, submitted, nil
}

func (p *Planner) handleOutputTool(ctx context.Context, req *Request, call models.ToolCall) (models.ChatMessage, *models.Workflow, error) {
	result, err := p.opts.Registry.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		return models.ChatMessage{}, nil, err
	}

	msg := models.ChatMessage{
		Role:       models.RoleTool,
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    result.Content,
	}

	switch call.Name {
	case tools.ToolClarify:
		if result.IsError {
			return msg, nil, nil
		}
		var payload struct {
			ClarificationID string   `json:"clarification_id"`
			Questions       []string `json:"questions"`
		}
		if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
			return msg, nil, nil
		}
		return msg, nil, &engine.ClarificationRequiredError{
			ClarificationID: payload.ClarificationID,
			Questions:       payload.Questions,
		}

	case tools.ToolThinkApproach:
		var args tools.ThinkApproachArgs
		if err := json.Unmarshal(call.Arguments, &args); err == nil && args.Approach != "" {
			p.opts.Emitter.Emit(ctx, models.Event{
				Event: models.EventThinkApproach,
				Payload: map[string]any{
					"chat_id":        req.ConversationID,
					"message_id":     req.MessageID,
					"think_approach": args.Approach,
				},
			})
		}

	case tools.ToolPresentAnswer:
		var args tools.PresentAnswerArgs
		if err := json.Unmarshal(call.Arguments, &args); err == nil && args.Answer != "" {
			p.opts.Emitter.Emit(ctx, models.Event{
				Event: models.EventFinalAnswer,
				Payload: map[string]any{
					"chat_id":             req.ConversationID,
					"message_id":          req.MessageID,
					"answer_content":      args.Answer,
					"answer_json_content": "",
				},
			})
		}

	case tools.ToolSubmitWorkflow:
		if !result.IsError {
			if workflow, err := tools.ParseWorkflowArgs(call.Arguments); err == nil {
				return msg, workflow, nil
			}
		}
	}

	return msg, nil, nil
}

func (p *Planner) emitToolStarted(ctx context.Context, req *Request, toolName string) {
	event := models.EventProcessingStarted
	switch toolName {
	case tools.ToolWebSearch:
		event = models.EventWebSearchStarted
	case tools.ToolTaskBlockSearch:
		event = models.EventTaskBlockSearchStarted
	}
	p.opts.Emitter.Emit(ctx, models.Event{
		Event: event,
		Payload: map[string]any{
			"chat_id":    req.ConversationID,
			"message_id": req.MessageID,
			"tool_name":  toolName,
		},
	})
}

func (p *Planner) emitToolResults(ctx context.Context, req *Request, result *tools.ExecutionResult) {
	var event models.EventType
	switch result.ToolName {
	case tools.ToolWebSearch:
		event = models.EventWebSearchResults
	case tools.ToolTaskBlockSearch:
		event = models.EventTaskBlockSearchResults
	default:
		return
	}
	if result.Err != nil || result.Result == nil || result.Result.IsError {
		return
	}

	var payload struct {
		Results      []any `json:"results"`
		QueryCount   int   `json:"query_count"`
		TotalResults int   `json:"total_results"`
	}
	if err := json.Unmarshal([]byte(result.Result.Content), &payload); err != nil {
		return
	}
	p.opts.Emitter.Emit(ctx, models.Event{
		Event: event,
		Payload: map[string]any{
			"chat_id":       req.ConversationID,
			"message_id":    req.MessageID,
			"results":       payload.Results,
			"query_count":   payload.QueryCount,
			"total_results": payload.TotalResults,
		},
	})
}

func lastUserMessage(messages []models.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
