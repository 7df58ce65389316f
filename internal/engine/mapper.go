package engine

import "errors"

// Client-safe error codes.
const (
	CodeLLMUnavailable        = "LLM_UNAVAILABLE"
	CodeToolError             = "TOOL_ERROR"
	CodeStorageError          = "STORAGE_ERROR"
	CodeValidationError       = "VALIDATION_ERROR"
	CodeParseError            = "PARSE_ERROR"
	CodeNotFound              = "NOT_FOUND"
	CodeClarificationRequired = "CLARIFICATION_REQUIRED"
	CodeMaxConnections        = "MAX_CONNECTIONS"
	CodeInternalError         = "INTERNAL_ERROR"
)

// MapError converts an internal error to a (code, message) pair safe to
// send to clients. Raw error text, stack traces, and backend detail never
// cross this boundary; unmapped errors collapse to INTERNAL_ERROR.
func MapError(err error) (code, message string) {
	var (
		llmErr     *LLMProviderError
		toolErr    *ToolExecutionError
		storeErr   *StorageError
		valErr     *ValidationError
		parseErr   *WorkflowParseError
		notFound   *ConversationNotFoundError
		clarifyErr *ClarificationRequiredError
		maxConn    *MaxConnectionsExceededError
	)

	switch {
	case errors.As(err, &llmErr):
		return CodeLLMUnavailable, "The AI service is temporarily unavailable. Please try again."
	case errors.As(err, &toolErr):
		return CodeToolError, "A search service is temporarily unavailable."
	case errors.As(err, &storeErr):
		return CodeStorageError, "A temporary storage issue occurred. Please try again."
	case errors.As(err, &valErr):
		return CodeValidationError, "We encountered an issue processing your workflow."
	case errors.As(err, &parseErr):
		return CodeParseError, "We had trouble generating the workflow. Please try rephrasing your request."
	case errors.As(err, &notFound):
		return CodeNotFound, "Conversation not found."
	case errors.As(err, &clarifyErr):
		return CodeClarificationRequired, "Additional information is needed to proceed."
	case errors.As(err, &maxConn):
		return CodeMaxConnections, "Server is at capacity. Please try again later."
	default:
		return CodeInternalError, "An unexpected error occurred. Please try again."
	}
}
