package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

// sseServer streams pre-baked chat-completion chunks in SSE format.
func sseServer(t *testing.T, payloads []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func newTestClient(url string) *OpenAIClient {
	return NewOpenAIClient(ClientConfig{
		BaseURL:      url + "/v1",
		APIKey:       "test-key",
		DefaultModel: "test-model",
		Timeout:      5 * time.Second,
	})
}

func TestCompleteStreamsText(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"Hello"}}]}`,
		`{"choices":[{"delta":{"content":" world"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	})
	defer srv.Close()

	client := newTestClient(srv.URL)
	resp, err := Generate(context.Background(), client, &CompletionRequest{
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("content = %q, want %q", resp.Content, "Hello world")
	}
	if len(resp.ToolCalls) != 0 {
		t.Errorf("unexpected tool calls: %v", resp.ToolCalls)
	}
}

func TestCompleteReassemblesToolCallFragments(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"web_search","arguments":"{\"que"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ries\":[\"hcm export\"]}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	})
	defer srv.Close()

	client := newTestClient(srv.URL)
	resp, err := Generate(context.Background(), client, &CompletionRequest{
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "export hcm"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "web_search" {
		t.Errorf("tool call = %+v", tc)
	}

	var args struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal(tc.Arguments, &args); err != nil {
		t.Fatalf("reassembled arguments are not valid JSON: %v (%s)", err, tc.Arguments)
	}
	if len(args.Queries) != 1 || args.Queries[0] != "hcm export" {
		t.Errorf("arguments = %+v", args)
	}
}

func TestCompleteMultipleParallelToolCalls(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"web_search","arguments":"{}"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_b","function":{"name":"task_block_search","arguments":"{}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	})
	defer srv.Close()

	client := newTestClient(srv.URL)
	resp, err := Generate(context.Background(), client, &CompletionRequest{
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "go"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Name != "web_search" || resp.ToolCalls[1].Name != "task_block_search" {
		t.Errorf("tool call order = %s, %s", resp.ToolCalls[0].Name, resp.ToolCalls[1].Name)
	}
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewOpenAIClient(ClientConfig{
		BaseURL:      srv.URL + "/v1",
		APIKey:       "test-key",
		DefaultModel: "test-model",
		Timeout:      50 * time.Millisecond,
	})
	client.maxRetries = 1

	start := time.Now()
	_, err := client.Complete(context.Background(), &CompletionRequest{
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected a timeout error from the hung server")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("request took %v, configured timeout not applied", elapsed)
	}
}

func TestConvertMessages(t *testing.T) {
	msgs := []models.ChatMessage{
		{Role: models.RoleUser, Content: "build a workflow"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "call_1", Name: "clarify", Arguments: json.RawMessage(`{"questions":["which env?"]}`)},
		}},
		{Role: models.RoleTool, ToolCallID: "call_1", Name: "clarify", Content: `{"status":"awaiting_response"}`},
	}

	out := convertMessages(msgs, "you are a planner")
	if len(out) != 4 {
		t.Fatalf("got %d messages, want 4", len(out))
	}
	if out[0].Role != "system" || out[0].Content != "you are a planner" {
		t.Errorf("system message not injected first: %+v", out[0])
	}
	if len(out[2].ToolCalls) != 1 || out[2].ToolCalls[0].Function.Name != "clarify" {
		t.Errorf("assistant tool calls not converted: %+v", out[2])
	}
	if out[3].ToolCallID != "call_1" {
		t.Errorf("tool result missing tool_call_id: %+v", out[3])
	}
}

func TestConvertToolsBadSchemaDegrades(t *testing.T) {
	tools := convertTools([]ToolDefinition{
		{Name: "broken", Description: "bad schema", Parameters: json.RawMessage(`{not json`)},
	})
	if len(tools) != 1 {
		t.Fatalf("got %d tools, want 1", len(tools))
	}
	params, ok := tools[0].Function.Parameters.(map[string]any)
	if !ok || params["type"] != "object" {
		t.Errorf("bad schema should degrade to empty object schema, got %v", tools[0].Function.Parameters)
	}
}
