package tools

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/opkey-ai/reasoning-engine/internal/search"
)

const webSearchSchema = `{
  "type": "object",
  "properties": {
    "queries": {
      "type": "array",
      "items": {"type": "string"},
      "minItems": 1,
      "maxItems": 10,
      "description": "Search queries to run"
    }
  },
  "required": ["queries"],
  "additionalProperties": false
}`

const taskBlockSearchSchema = `{
  "type": "object",
  "properties": {
    "queries": {
      "type": "array",
      "items": {"type": "string"},
      "minItems": 1,
      "maxItems": 10,
      "description": "Task block catalog queries to run"
    }
  },
  "required": ["queries"],
  "additionalProperties": false
}`

type searchArgs struct {
	Queries []string `json:"queries"`
}

// WebSearchTool answers planner queries via the configured web search
// backend.
type WebSearchTool struct {
	searcher search.WebSearcher
}

// NewWebSearchTool builds the web_search tool.
func NewWebSearchTool(searcher search.WebSearcher) *WebSearchTool {
	return &WebSearchTool{searcher: searcher}
}

func (t *WebSearchTool) Name() string { return ToolWebSearch }

func (t *WebSearchTool) Description() string {
	return "Search the web for current information about applications, configuration procedures, and business processes. Accepts multiple queries."
}

func (t *WebSearchTool) Schema() json.RawMessage { return json.RawMessage(webSearchSchema) }

func (t *WebSearchTool) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var parsed searchArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return &Result{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
	}

	results := make([]search.WebResult, 0)
	for _, query := range parsed.Queries {
		hits, err := t.searcher.SearchWeb(ctx, query)
		if err != nil {
			return nil, err
		}
		results = append(results, hits...)
	}

	return encodeResult(map[string]any{
		"results":       results,
		"query_count":   len(parsed.Queries),
		"total_results": len(results),
	})
}

// TaskBlockSearchTool queries the task block catalog. Results from
// multiple queries are deduplicated by block id, keeping the highest
// relevance score, and sorted by relevance.
type TaskBlockSearchTool struct {
	searcher search.TaskBlockSearcher
}

// NewTaskBlockSearchTool builds the task_block_search tool.
func NewTaskBlockSearchTool(searcher search.TaskBlockSearcher) *TaskBlockSearchTool {
	return &TaskBlockSearchTool{searcher: searcher}
}

func (t *TaskBlockSearchTool) Name() string { return ToolTaskBlockSearch }

func (t *TaskBlockSearchTool) Description() string {
	return "Search the task block catalog for pre-built automation blocks matching a capability. Accepts multiple queries."
}

func (t *TaskBlockSearchTool) Schema() json.RawMessage { return json.RawMessage(taskBlockSearchSchema) }

func (t *TaskBlockSearchTool) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var parsed searchArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return &Result{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
	}

	best := make(map[string]search.TaskBlockResult)
	for _, query := range parsed.Queries {
		hits, err := t.searcher.SearchTaskBlocks(ctx, query)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			existing, seen := best[hit.BlockID]
			if !seen || hit.RelevanceScore > existing.RelevanceScore {
				best[hit.BlockID] = hit
			}
		}
	}

	results := make([]search.TaskBlockResult, 0, len(best))
	for _, hit := range best {
		results = append(results, hit)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})

	return encodeResult(map[string]any{
		"results":       results,
		"query_count":   len(parsed.Queries),
		"total_results": len(results),
	})
}

var (
	_ Tool = (*WebSearchTool)(nil)
	_ Tool = (*TaskBlockSearchTool)(nil)
)
