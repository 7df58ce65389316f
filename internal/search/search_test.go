package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opkey-ai/reasoning-engine/internal/config"
)

func TestPerplexitySearchWithCitations(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "HCM configuration export uses FSM."}},
			},
			"citations": []string{
				"https://docs.example.com/a",
				"https://docs.example.com/b",
				"https://docs.example.com/c",
				"https://docs.example.com/d",
			},
		})
	}))
	defer srv.Close()

	client := NewPerplexityClient(config.PerplexityConfig{
		BaseURL: srv.URL,
		APIKey:  "pk-test",
		Model:   "sonar",
	})
	results, err := client.SearchWeb(context.Background(), "hcm export")
	if err != nil {
		t.Fatalf("SearchWeb: %v", err)
	}
	if gotAuth != "Bearer pk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if len(results) != maxCitationResults {
		t.Fatalf("got %d results, want %d", len(results), maxCitationResults)
	}
	if results[0].Snippet == "" {
		t.Error("first result should carry the answer snippet")
	}
	if results[1].Snippet != "" {
		t.Error("only the first result carries the snippet")
	}
	if results[1].URL != "https://docs.example.com/b" {
		t.Errorf("citation url = %q", results[1].URL)
	}
}

func TestPerplexitySearchWithoutCitations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "plain answer"}},
			},
		})
	}))
	defer srv.Close()

	client := NewPerplexityClient(config.PerplexityConfig{BaseURL: srv.URL})
	results, err := client.SearchWeb(context.Background(), "q")
	if err != nil {
		t.Fatalf("SearchWeb: %v", err)
	}
	if len(results) != 1 || results[0].Snippet != "plain answer" {
		t.Errorf("results = %+v", results)
	}
}

func TestPerplexitySearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewPerplexityClient(config.PerplexityConfig{BaseURL: srv.URL})
	if _, err := client.SearchWeb(context.Background(), "q"); err == nil {
		t.Fatal("SearchWeb should fail on 502")
	}
}

func TestTaskBlockSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body taskBlockSearchRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.Query != "export hcm" || body.Limit != 5 {
			t.Errorf("request body = %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"block_id": "tb-1", "name": "Export HCM", "action_code": "ExportConfigurations", "relevance_score": 0.9},
			},
		})
	}))
	defer srv.Close()

	client := NewTaskBlockClient(config.TaskBlockSearchConfig{BaseURL: srv.URL, MaxResults: 5})
	results, err := client.SearchTaskBlocks(context.Background(), "export hcm")
	if err != nil {
		t.Fatalf("SearchTaskBlocks: %v", err)
	}
	if len(results) != 1 || results[0].ActionCode != "ExportConfigurations" {
		t.Errorf("results = %+v", results)
	}
}

func TestTaskBlockDetailsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewTaskBlockClient(config.TaskBlockSearchConfig{BaseURL: srv.URL})
	block, err := client.BlockDetails(context.Background(), "missing")
	if err != nil {
		t.Fatalf("BlockDetails: %v", err)
	}
	if block != nil {
		t.Errorf("block = %+v, want nil", block)
	}
}

func TestIntegratedAuthAndFlags(t *testing.T) {
	var gotAuth string
	var gotBody integratedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer srv.Close()

	client := NewIntegratedClient(config.IntegratedConfig{
		URL:                  srv.URL,
		APIKey:               "raw-key",
		TaskBlockSearchType:  "llm",
		TaskBlockReason:      true,
		ElasticTaskBlockSize: 5,
	}, nil)

	if _, err := client.SearchTaskBlocks(context.Background(), "q"); err != nil {
		t.Fatalf("SearchTaskBlocks: %v", err)
	}
	if gotAuth != "raw-key" {
		t.Errorf("auth header = %q, want bare key", gotAuth)
	}
	if !gotBody.TaskBlockSearch || gotBody.WebSearch {
		t.Errorf("flags = %+v", gotBody)
	}
	if gotBody.TaskBlockSearchType != "llm" || !gotBody.IsReasonRequired {
		t.Errorf("task block options = %+v", gotBody)
	}
}

func TestParseWebResultsShapes(t *testing.T) {
	hit := map[string]any{"title": "T", "url": "https://x", "snippet": "S"}

	cases := []struct {
		name string
		raw  map[string]any
		want int
	}{
		{"flat key", map[string]any{"web_search_results": []any{hit}}, 1},
		{"generic results", map[string]any{"results": []any{hit, hit}}, 2},
		{"nested", map[string]any{"web_search": map[string]any{"results": []any{hit}}}, 1},
		{"summary fallback", map[string]any{"summary": "just text"}, 1},
		{"unknown shape", map[string]any{"weird": 1}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseWebResults(tc.raw)
			if len(got) != tc.want {
				t.Errorf("got %d results, want %d", len(got), tc.want)
			}
		})
	}
}

func TestParseTaskBlockResultsShapes(t *testing.T) {
	hit := map[string]any{"block_id": "tb-1", "name": "Export", "action_code": "ExportConfigurations"}

	cases := []struct {
		name       string
		raw        map[string]any
		searchType string
		want       int
	}{
		{"typed key", map[string]any{"llm_task_block_search_results": []any{hit}}, "llm", 1},
		{"plain elastic", map[string]any{"plain_elastic_task_block_search_results": []any{hit}}, "elastic", 1},
		{"task_block_results", map[string]any{"task_block_results": []any{hit}}, "llm", 1},
		{"generic results", map[string]any{"results": []any{hit}}, "llm", 1},
		{"nested", map[string]any{"task_block_search": map[string]any{"results": []any{hit}}}, "llm", 1},
		{"unparseable", map[string]any{"nothing": "here"}, "llm", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseTaskBlockResults(tc.raw, tc.searchType)
			if len(got) != tc.want {
				t.Errorf("got %d results, want %d", len(got), tc.want)
			}
		})
	}
}
