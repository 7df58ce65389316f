package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opkey-ai/reasoning-engine/internal/config"
	"github.com/opkey-ai/reasoning-engine/internal/engine"
)

// TaskBlockClient implements TaskBlockSearcher against the task block
// catalog API.
type TaskBlockClient struct {
	baseURL    string
	apiKey     string
	maxResults int
	client     *http.Client
}

// NewTaskBlockClient builds a catalog client.
func NewTaskBlockClient(cfg config.TaskBlockSearchConfig) *TaskBlockClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	return &TaskBlockClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxResults: maxResults,
		client:     &http.Client{Timeout: timeout},
	}
}

type taskBlockSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type taskBlockSearchResponse struct {
	Results []TaskBlockResult `json:"results"`
}

// SearchTaskBlocks queries the catalog for blocks matching query.
func (c *TaskBlockClient) SearchTaskBlocks(ctx context.Context, query string) ([]TaskBlockResult, error) {
	data, err := json.Marshal(taskBlockSearchRequest{Query: query, Limit: c.maxResults})
	if err != nil {
		return nil, &engine.ToolExecutionError{ToolName: "task_block_search", Message: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(data))
	if err != nil {
		return nil, &engine.ToolExecutionError{ToolName: "task_block_search", Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &engine.ToolExecutionError{ToolName: "task_block_search", Message: "search request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &engine.ToolExecutionError{
			ToolName: "task_block_search",
			Message:  fmt.Sprintf("catalog API returned status %d", resp.StatusCode),
		}
	}

	var parsed taskBlockSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &engine.ToolExecutionError{ToolName: "task_block_search", Message: "decode response", Err: err}
	}
	return parsed.Results, nil
}

// BlockDetails fetches one block by id. Returns nil when the catalog
// has no such block.
func (c *TaskBlockClient) BlockDetails(ctx context.Context, blockID string) (*TaskBlockResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/blocks/"+blockID, nil)
	if err != nil {
		return nil, &engine.ToolExecutionError{ToolName: "task_block_search", Message: "build request", Err: err}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &engine.ToolExecutionError{ToolName: "task_block_search", Message: "details request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &engine.ToolExecutionError{
			ToolName: "task_block_search",
			Message:  fmt.Sprintf("catalog API returned status %d", resp.StatusCode),
		}
	}

	var block TaskBlockResult
	if err := json.NewDecoder(resp.Body).Decode(&block); err != nil {
		return nil, &engine.ToolExecutionError{ToolName: "task_block_search", Message: "decode response", Err: err}
	}
	return &block, nil
}

var _ TaskBlockSearcher = (*TaskBlockClient)(nil)
