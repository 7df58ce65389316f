package validation

import (
	"context"
	"strings"
	"sync"

	"github.com/opkey-ai/reasoning-engine/internal/llm"
	"github.com/opkey-ai/reasoning-engine/internal/search"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

// recordingEmitter captures emitted events for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingEmitter) Emit(_ context.Context, event models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) byType(t models.EventType) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []models.Event
	for _, e := range r.events {
		if e.Event == t {
			matched = append(matched, e)
		}
	}
	return matched
}

// substringProvider returns canned responses keyed by a substring of
// the last user message; fallback otherwise.
type substringProvider struct {
	mu        sync.Mutex
	responses map[string]string
	fallback  string
	err       error
	calls     []*llm.CompletionRequest
}

func (p *substringProvider) Complete(_ context.Context, req *llm.CompletionRequest) (<-chan *llm.CompletionChunk, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()

	if p.err != nil {
		return nil, p.err
	}

	content := p.fallback
	if len(req.Messages) > 0 {
		last := req.Messages[len(req.Messages)-1].Content
		for key, resp := range p.responses {
			if strings.Contains(last, key) {
				content = resp
				break
			}
		}
	}

	ch := make(chan *llm.CompletionChunk, 2)
	ch <- &llm.CompletionChunk{Text: content}
	ch <- &llm.CompletionChunk{Done: true}
	close(ch)
	return ch, nil
}

// fakeCatalog serves fixed task block search results.
type fakeCatalog struct {
	results []search.TaskBlockResult
	err     error
}

func (f *fakeCatalog) SearchTaskBlocks(_ context.Context, _ string) ([]search.TaskBlockResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func startBlock(id string) models.Block {
	return models.Block{
		BlockID:    id,
		Name:       "Start",
		ActionCode: "Start",
		Inputs:     []models.Input{},
		Outputs:    []models.Output{},
	}
}

func exportWorkflow() *models.Workflow {
	return &models.Workflow{
		Blocks: []models.Block{
			startBlock("B001"),
			{
				BlockID:    "B002",
				Name:       "Export HCM Config",
				ActionCode: "ExportConfigurations",
				Inputs: []models.Input{
					{Name: "Module", StaticValue: "HCM"},
				},
				Outputs: []models.Output{
					{Name: "ConfigFile", OutputVariableName: "op-B002-ConfigFile"},
				},
			},
		},
		Edges: []models.Edge{
			{EdgeID: "E001", From: "B001", To: "B002"},
		},
	}
}
