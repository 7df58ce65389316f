package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatMessage is the unified message format stored in conversation history
// and exchanged with the LLM gateway.
type ChatMessage struct {
	Role        Role       `json:"role"`
	Content     string     `json:"content"`
	ToolCalls   []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID  string     `json:"tool_call_id,omitempty"`
	Name        string     `json:"name,omitempty"`
	Attachments []string   `json:"attachments,omitempty"`
	Timestamp   time.Time  `json:"timestamp,omitempty"`
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// UserInfo carries the requesting user's identity through planning and
// prompt construction.
type UserInfo struct {
	UserID     string `json:"user_id,omitempty"`
	Username   string `json:"username,omitempty"`
	Email      string `json:"email,omitempty"`
	Domain     string `json:"domain,omitempty"`
	ProjectKey string `json:"project_key,omitempty"`
}

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive                ConversationStatus = "active"
	StatusAwaitingClarification ConversationStatus = "awaiting_clarification"
	StatusCompleted             ConversationStatus = "completed"
	StatusError                 ConversationStatus = "error"
)

// ClarificationState records an outstanding (or answered) clarification
// rendezvous between the planner and the user.
type ClarificationState struct {
	ClarificationID string     `json:"clarification_id"`
	Questions       []string   `json:"questions"`
	CreatedAt       time.Time  `json:"created_at"`
	Response        string     `json:"response,omitempty"`
	RespondedAt     *time.Time `json:"responded_at,omitempty"`
}

// ConversationState is the persisted per-conversation record.
type ConversationState struct {
	ConversationID       string              `json:"conversation_id"`
	Status               ConversationStatus  `json:"status"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
	UserInfo             *UserInfo           `json:"user_info,omitempty"`
	PendingClarification *ClarificationState `json:"pending_clarification,omitempty"`
	DraftResponse        string              `json:"draft_response,omitempty"`
	Metadata             map[string]any      `json:"metadata,omitempty"`
}

// Touch bumps the updated timestamp.
func (s *ConversationState) Touch() {
	s.UpdatedAt = time.Now().UTC()
}
