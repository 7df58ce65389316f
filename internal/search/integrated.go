package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opkey-ai/reasoning-engine/internal/config"
	"github.com/opkey-ai/reasoning-engine/internal/engine"
	"github.com/opkey-ai/reasoning-engine/internal/observability"
)

// IntegratedClient talks to the combined search endpoint that serves
// both web and task block queries behind one URL. The endpoint selects
// work by boolean flags in the request body, and its response key names
// vary by deployment, so parsing tries the known shapes in order.
type IntegratedClient struct {
	cfg    config.IntegratedConfig
	client *http.Client
	logger *observability.Logger
}

// NewIntegratedClient builds a client for the combined endpoint.
func NewIntegratedClient(cfg config.IntegratedConfig, logger *observability.Logger) *IntegratedClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &IntegratedClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type integratedRequest struct {
	Query           string `json:"query"`
	WebSearch       bool   `json:"web_search"`
	TaskBlockSearch bool   `json:"task_block_search"`

	WebMaxResults int    `json:"web_max_results,omitempty"`
	WebModelType  string `json:"web_model_type,omitempty"`

	TaskBlockSearchType  string `json:"task_block_search_type,omitempty"`
	IsReasonRequired     bool   `json:"is_reason_required"`
	ElasticTaskBlockSize int    `json:"elastic_task_block_size,omitempty"`
}

func (c *IntegratedClient) post(ctx context.Context, toolName string, reqBody integratedRequest) (map[string]any, error) {
	if c.logger != nil {
		c.logger.Debug(ctx, "integrated search request",
			"web_search", reqBody.WebSearch,
			"task_block_search", reqBody.TaskBlockSearch,
		)
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &engine.ToolExecutionError{ToolName: toolName, Message: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return nil, &engine.ToolExecutionError{ToolName: toolName, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		// The combined endpoint expects the bare key, not a Bearer scheme.
		req.Header.Set("Authorization", c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &engine.ToolExecutionError{ToolName: toolName, Message: "search request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &engine.ToolExecutionError{
			ToolName: toolName,
			Message:  fmt.Sprintf("search API returned status %d", resp.StatusCode),
		}
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &engine.ToolExecutionError{ToolName: toolName, Message: "decode response", Err: err}
	}
	return raw, nil
}

func (c *IntegratedClient) SearchWeb(ctx context.Context, query string) ([]WebResult, error) {
	raw, err := c.post(ctx, "web_search", integratedRequest{
		Query:         query,
		WebSearch:     true,
		WebMaxResults: c.cfg.WebMaxResults,
		WebModelType:  c.cfg.WebModelType,
	})
	if err != nil {
		return nil, err
	}
	return parseWebResults(raw), nil
}

func (c *IntegratedClient) SearchTaskBlocks(ctx context.Context, query string) ([]TaskBlockResult, error) {
	raw, err := c.post(ctx, "task_block_search", integratedRequest{
		Query:                query,
		TaskBlockSearch:      true,
		TaskBlockSearchType:  c.cfg.TaskBlockSearchType,
		IsReasonRequired:     c.cfg.TaskBlockReason,
		ElasticTaskBlockSize: c.cfg.ElasticTaskBlockSize,
	})
	if err != nil {
		return nil, err
	}
	return parseTaskBlockResults(raw, c.cfg.TaskBlockSearchType), nil
}

// parseWebResults tries the response shapes deployments have been seen
// to return, in order of specificity. A response with none of the known
// keys degrades to a single summary result when possible.
func parseWebResults(raw map[string]any) []WebResult {
	for _, key := range []string{"web_search_results", "results"} {
		if list, ok := raw[key].([]any); ok {
			return decodeWebList(list)
		}
	}
	if nested, ok := raw["web_search"].(map[string]any); ok {
		if list, ok := nested["results"].([]any); ok {
			return decodeWebList(list)
		}
	}
	for _, key := range []string{"summary", "content"} {
		if text, ok := raw[key].(string); ok && text != "" {
			return []WebResult{{Title: "Search Summary", Snippet: text}}
		}
	}
	return []WebResult{}
}

func decodeWebList(list []any) []WebResult {
	results := make([]WebResult, 0, len(list))
	for _, item := range list {
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		var result WebResult
		if err := json.Unmarshal(data, &result); err != nil {
			continue
		}
		results = append(results, result)
	}
	return results
}

// parseTaskBlockResults handles the per-search-type key names the
// combined endpoint uses ("llm_task_block_search_results",
// "plain_elastic_task_block_search_results") plus the generic
// fallbacks. Unparseable responses yield an empty list rather than an
// error so one bad deployment cannot stall the planner.
func parseTaskBlockResults(raw map[string]any, searchType string) []TaskBlockResult {
	keys := []string{
		searchType + "_task_block_search_results",
		"plain_elastic_task_block_search_results",
		"task_block_results",
		"results",
	}
	for _, key := range keys {
		if list, ok := raw[key].([]any); ok {
			return decodeTaskBlockList(list)
		}
	}
	if nested, ok := raw["task_block_search"].(map[string]any); ok {
		if list, ok := nested["results"].([]any); ok {
			return decodeTaskBlockList(list)
		}
	}
	return []TaskBlockResult{}
}

func decodeTaskBlockList(list []any) []TaskBlockResult {
	results := make([]TaskBlockResult, 0, len(list))
	for _, item := range list {
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		var result TaskBlockResult
		if err := json.Unmarshal(data, &result); err != nil {
			continue
		}
		results = append(results, result)
	}
	return results
}

var (
	_ WebSearcher       = (*IntegratedClient)(nil)
	_ TaskBlockSearcher = (*IntegratedClient)(nil)
)
