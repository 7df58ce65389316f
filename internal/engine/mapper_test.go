package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapErrorKnownTypes(t *testing.T) {
	cases := []struct {
		err      error
		wantCode string
	}{
		{&LLMProviderError{Message: "connection refused"}, CodeLLMUnavailable},
		{&ToolExecutionError{ToolName: "web_search", Message: "timeout"}, CodeToolError},
		{&StorageError{Op: "save state", Err: errors.New("redis down")}, CodeStorageError},
		{&ValidationError{Message: "pipeline failed", Errors: []string{"no Start block"}}, CodeValidationError},
		{&WorkflowParseError{Message: "no json found"}, CodeParseError},
		{&ConversationNotFoundError{ConversationID: "c-1"}, CodeNotFound},
		{&ClarificationRequiredError{ClarificationID: "cl-1", Questions: []string{"which env?"}}, CodeClarificationRequired},
		{&MaxConnectionsExceededError{MaxConnections: 50}, CodeMaxConnections},
	}

	for _, tc := range cases {
		code, msg := MapError(tc.err)
		if code != tc.wantCode {
			t.Errorf("MapError(%T) code = %q, want %q", tc.err, code, tc.wantCode)
		}
		if msg == "" {
			t.Errorf("MapError(%T) returned empty message", tc.err)
		}
	}
}

func TestMapErrorWrapped(t *testing.T) {
	wrapped := fmt.Errorf("planner: %w", &StorageError{Op: "get history", Err: errors.New("timeout")})
	code, _ := MapError(wrapped)
	if code != CodeStorageError {
		t.Errorf("MapError(wrapped) code = %q, want %q", code, CodeStorageError)
	}
}

func TestMapErrorUnknown(t *testing.T) {
	code, msg := MapError(errors.New("secret internal detail"))
	if code != CodeInternalError {
		t.Errorf("code = %q, want %q", code, CodeInternalError)
	}
	if msg == "" || msg == "secret internal detail" {
		t.Errorf("unexpected client message: %q", msg)
	}
}
