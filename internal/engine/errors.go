// Package engine defines the shared error taxonomy for the workflow
// planning engine and the mapping from internal errors to client-safe
// responses.
package engine

import "fmt"

// LLMProviderError indicates a failure talking to an LLM backend.
type LLMProviderError struct {
	Message string
	Err     error
}

func (e *LLMProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm provider: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("llm provider: %s", e.Message)
}

func (e *LLMProviderError) Unwrap() error { return e.Err }

// ToolExecutionError indicates a tool failed to execute.
type ToolExecutionError struct {
	ToolName string
	Message  string
	Err      error
}

func (e *ToolExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %s: %s: %v", e.ToolName, e.Message, e.Err)
	}
	return fmt.Sprintf("tool %s: %s", e.ToolName, e.Message)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// StorageError wraps conversation store failures.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ValidationError carries the error list produced by the validation
// pipeline when a blocking stage fails.
type ValidationError struct {
	Message string
	Errors  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s (%d errors)", e.Message, len(e.Errors))
}

// WorkflowParseError indicates workflow JSON could not be recovered from
// an LLM response.
type WorkflowParseError struct {
	Message string
}

func (e *WorkflowParseError) Error() string {
	return fmt.Sprintf("workflow parse: %s", e.Message)
}

// ConversationNotFoundError indicates an operation referenced a
// conversation that does not exist (or has expired).
type ConversationNotFoundError struct {
	ConversationID string
}

func (e *ConversationNotFoundError) Error() string {
	return fmt.Sprintf("conversation not found: %s", e.ConversationID)
}

// ClarificationRequiredError is raised out of the planner loop when the
// model invokes the clarify tool. The orchestrator catches it and parks
// the conversation until the user responds.
type ClarificationRequiredError struct {
	ClarificationID string
	Questions       []string
}

func (e *ClarificationRequiredError) Error() string {
	return fmt.Sprintf("clarification required (%s): %d questions", e.ClarificationID, len(e.Questions))
}

// MaxConnectionsExceededError indicates the gateway refused a connection
// because it is at capacity.
type MaxConnectionsExceededError struct {
	MaxConnections int
}

func (e *MaxConnectionsExceededError) Error() string {
	return fmt.Sprintf("maximum concurrent connections (%d) exceeded", e.MaxConnections)
}
