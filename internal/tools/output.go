package tools

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

const clarifySchema = `{
  "type": "object",
  "properties": {
    "questions": {
      "type": "array",
      "items": {"type": "string"},
      "minItems": 1,
      "maxItems": 5,
      "description": "Questions the user must answer before planning can continue"
    }
  },
  "required": ["questions"],
  "additionalProperties": false
}`

const thinkApproachSchema = `{
  "type": "object",
  "properties": {
    "approach": {
      "type": "string",
      "description": "A short plan of attack to share with the user before building the workflow"
    }
  },
  "required": ["approach"],
  "additionalProperties": false
}`

const presentAnswerSchema = `{
  "type": "object",
  "properties": {
    "answer": {
      "type": "string",
      "description": "Final conversational answer when no workflow is needed"
    }
  },
  "required": ["answer"],
  "additionalProperties": false
}`

const submitWorkflowSchema = `{
  "type": "object",
  "properties": {
    "workflow_json": {
      "type": "array",
      "items": {"type": "object"},
      "description": "Workflow blocks"
    },
    "edges": {
      "type": "array",
      "items": {"type": "object"},
      "description": "Directed edges between blocks"
    },
    "job_name": {
      "type": "string",
      "description": "Optional human-readable job name"
    }
  },
  "required": ["workflow_json", "edges"],
  "additionalProperties": false
}`

// ClarifyArgs are the parsed clarify tool arguments.
type ClarifyArgs struct {
	Questions []string `json:"questions"`
}

// ClarifyTool signals that planning is blocked on user input.
type ClarifyTool struct{}

func (ClarifyTool) Name() string { return ToolClarify }

func (ClarifyTool) Description() string {
	return "Ask the user clarifying questions when the request is ambiguous. Planning pauses until the user answers."
}

func (ClarifyTool) Schema() json.RawMessage { return json.RawMessage(clarifySchema) }

func (ClarifyTool) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var parsed ClarifyArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return &Result{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
	}
	return encodeResult(map[string]any{
		"clarification_id": uuid.NewString(),
		"status":           "awaiting_response",
		"questions":        parsed.Questions,
	})
}

// ThinkApproachArgs are the parsed think_approach tool arguments.
type ThinkApproachArgs struct {
	Approach string `json:"approach"`
}

// ThinkApproachTool shares the planner's plan of attack with the user.
type ThinkApproachTool struct{}

func (ThinkApproachTool) Name() string { return ToolThinkApproach }

func (ThinkApproachTool) Description() string {
	return "Share a concise plan of attack with the user before constructing the workflow."
}

func (ThinkApproachTool) Schema() json.RawMessage { return json.RawMessage(thinkApproachSchema) }

func (ThinkApproachTool) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	return encodeResult(map[string]any{"acknowledged": true})
}

// PresentAnswerArgs are the parsed present_answer tool arguments.
type PresentAnswerArgs struct {
	Answer string `json:"answer"`
}

// PresentAnswerTool delivers a conversational final answer.
type PresentAnswerTool struct{}

func (PresentAnswerTool) Name() string { return ToolPresentAnswer }

func (PresentAnswerTool) Description() string {
	return "Deliver a final conversational answer when the request does not call for a workflow."
}

func (PresentAnswerTool) Schema() json.RawMessage { return json.RawMessage(presentAnswerSchema) }

func (PresentAnswerTool) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	return encodeResult(map[string]any{"delivered": true})
}

// SubmitWorkflowTool accepts the planner's finished workflow. The
// structural check runs immediately so an invalid graph bounces back to
// the model as a revision request instead of entering the pipeline.
type SubmitWorkflowTool struct{}

func (SubmitWorkflowTool) Name() string { return ToolSubmitWorkflow }

func (SubmitWorkflowTool) Description() string {
	return "Submit the completed workflow graph (blocks and edges) for validation and delivery."
}

func (SubmitWorkflowTool) Schema() json.RawMessage { return json.RawMessage(submitWorkflowSchema) }

func (SubmitWorkflowTool) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	workflow, err := ParseWorkflowArgs(args)
	if err != nil {
		return &Result{Content: "invalid workflow: " + err.Error(), IsError: true}, nil
	}
	if errs := workflow.ValidateStructure(); len(errs) > 0 {
		res, encErr := encodeResult(map[string]any{
			"status": "needs_revision",
			"errors": errs,
		})
		if encErr != nil {
			return nil, encErr
		}
		res.IsError = true
		return res, nil
	}
	return encodeResult(map[string]any{"status": "accepted"})
}

// ParseWorkflowArgs decodes submit_workflow arguments into a workflow.
func ParseWorkflowArgs(args json.RawMessage) (*models.Workflow, error) {
	var workflow models.Workflow
	if err := json.Unmarshal(args, &workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

var (
	_ Tool = ClarifyTool{}
	_ Tool = ThinkApproachTool{}
	_ Tool = PresentAnswerTool{}
	_ Tool = SubmitWorkflowTool{}
)
