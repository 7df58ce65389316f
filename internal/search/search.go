// Package search provides the web and task-block search backends used
// by the planner's information-gathering tools.
package search

import (
	"context"
	"fmt"

	"github.com/opkey-ai/reasoning-engine/internal/config"
	"github.com/opkey-ai/reasoning-engine/internal/observability"
)

// WebResult is one web search hit.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source,omitempty"`
}

// TaskBlockResult is one entry from the task block catalog.
type TaskBlockResult struct {
	BlockID        string   `json:"block_id"`
	Name           string   `json:"name"`
	ActionCode     string   `json:"action_code"`
	Description    string   `json:"description"`
	Inputs         []string `json:"inputs,omitempty"`
	Outputs        []string `json:"outputs,omitempty"`
	RelevanceScore float64  `json:"relevance_score"`
}

// WebSearcher answers free-text web queries.
type WebSearcher interface {
	SearchWeb(ctx context.Context, query string) ([]WebResult, error)
}

// TaskBlockSearcher answers task block catalog queries.
type TaskBlockSearcher interface {
	SearchTaskBlocks(ctx context.Context, query string) ([]TaskBlockResult, error)
}

// NewWebSearcher builds the configured web search backend.
func NewWebSearcher(cfg config.SearchConfig, logger *observability.Logger) (WebSearcher, error) {
	switch cfg.WebBackend {
	case "perplexity":
		return NewPerplexityClient(cfg.Perplexity), nil
	case "integrated":
		return NewIntegratedClient(cfg.Integrated, logger), nil
	default:
		return nil, fmt.Errorf("unknown web search backend %q", cfg.WebBackend)
	}
}

// NewTaskBlockSearcher builds the configured task block backend.
func NewTaskBlockSearcher(cfg config.SearchConfig, logger *observability.Logger) (TaskBlockSearcher, error) {
	switch cfg.TaskBlockBackend {
	case "legacy":
		return NewTaskBlockClient(cfg.TaskBlock), nil
	case "integrated":
		return NewIntegratedClient(cfg.Integrated, logger), nil
	default:
		return nil, fmt.Errorf("unknown task block search backend %q", cfg.TaskBlockBackend)
	}
}
