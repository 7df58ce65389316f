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

const (
	perplexitySystemPrompt = "You are a helpful search assistant. Provide concise, factual information with sources."

	// maxCitationResults bounds how many citation links become results.
	maxCitationResults = 3

	// snippetLimit truncates the summary attached to the first result.
	snippetLimit = 500
)

// PerplexityClient implements WebSearcher against the Perplexity
// chat-completions search API (or any API with the same shape).
type PerplexityClient struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
}

// NewPerplexityClient builds a Perplexity web search client.
func NewPerplexityClient(cfg config.PerplexityConfig) *PerplexityClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PerplexityClient{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    &http.Client{Timeout: timeout},
	}
}

type perplexityRequest struct {
	Model           string              `json:"model"`
	Messages        []perplexityMessage `json:"messages"`
	MaxTokens       int                 `json:"max_tokens,omitempty"`
	ReturnCitations bool                `json:"return_citations"`
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// SearchWeb runs one query. Citation URLs become individual results
// with the answer text attached to the first; without citations the
// answer itself is returned as a single result.
func (c *PerplexityClient) SearchWeb(ctx context.Context, query string) ([]WebResult, error) {
	reqBody := perplexityRequest{
		Model: c.model,
		Messages: []perplexityMessage{
			{Role: "system", Content: perplexitySystemPrompt},
			{Role: "user", Content: query},
		},
		MaxTokens:       c.maxTokens,
		ReturnCitations: true,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &engine.ToolExecutionError{ToolName: "web_search", Message: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, &engine.ToolExecutionError{ToolName: "web_search", Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &engine.ToolExecutionError{ToolName: "web_search", Message: "search request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &engine.ToolExecutionError{
			ToolName: "web_search",
			Message:  fmt.Sprintf("search API returned status %d", resp.StatusCode),
		}
	}

	var parsed perplexityResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &engine.ToolExecutionError{ToolName: "web_search", Message: "decode response", Err: err}
	}
	if len(parsed.Choices) == 0 {
		return nil, &engine.ToolExecutionError{ToolName: "web_search", Message: "empty response"}
	}

	content := parsed.Choices[0].Message.Content

	if len(parsed.Citations) > 0 {
		citations := parsed.Citations
		if len(citations) > maxCitationResults {
			citations = citations[:maxCitationResults]
		}
		results := make([]WebResult, 0, len(citations))
		for i, url := range citations {
			result := WebResult{
				Title:  fmt.Sprintf("Source %d", i+1),
				URL:    url,
				Source: "perplexity",
			}
			if i == 0 {
				result.Snippet = truncate(content, snippetLimit)
			}
			results = append(results, result)
		}
		return results, nil
	}

	return []WebResult{{
		Title:   "Search Summary",
		Snippet: content,
		Source:  "perplexity",
	}}, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

var _ WebSearcher = (*PerplexityClient)(nil)
