package gateway

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

// referencePattern matches output-variable references like op-B001-File.
var referencePattern = regexp.MustCompile(`op-[A-Z]\d{3}-\w+`)

// analysisModules are the product modules recognized in user input.
var analysisModules = []string{"hcm", "erp", "scm", "fin", "crm", "procurement"}

// analysisActions maps input keywords to the action type they signal.
var analysisActions = []struct {
	pattern string
	action  string
}{
	{"export", "export"},
	{"import", "import"},
	{"migrate", "migration"},
	{"validate", "validation"},
	{"transform", "transformation"},
	{"configure", "configuration"},
}

// EntityReference is one recognized entity with its span in the input.
type EntityReference struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// InputAnalysis is the result of the lightweight entity/intent pass
// over a user message.
type InputAnalysis struct {
	ChatID     string            `json:"chat_id"`
	Message    string            `json:"message"`
	Analysis   map[string]any    `json:"analysis"`
	Entities   []EntityReference `json:"entities"`
	References []string          `json:"references"`
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
}

func (a *InputAnalysis) payload() map[string]any {
	return map[string]any{
		"chat_id":    a.ChatID,
		"message":    a.Message,
		"analysis":   a.Analysis,
		"entities":   a.Entities,
		"references": a.References,
		"intent":     a.Intent,
		"confidence": a.Confidence,
	}
}

// AnalyzeInput extracts module and action entities, output-variable
// references, and a coarse intent from a user message. Keyword matching
// only; no model call.
func AnalyzeInput(chatID, message string) *InputAnalysis {
	lower := strings.ToLower(message)

	entities := []EntityReference{}
	for _, module := range analysisModules {
		if start := strings.Index(lower, module); start >= 0 {
			entities = append(entities, EntityReference{
				Type:       "module",
				Value:      strings.ToUpper(module),
				Start:      start,
				End:        start + len(module),
				Confidence: 1.0,
			})
		}
	}
	for _, action := range analysisActions {
		if start := strings.Index(lower, action.pattern); start >= 0 {
			entities = append(entities, EntityReference{
				Type:       "action",
				Value:      action.action,
				Start:      start,
				End:        start + len(action.pattern),
				Confidence: 1.0,
			})
		}
	}

	references := referencePattern.FindAllString(message, -1)
	if references == nil {
		references = []string{}
	}

	intent, confidence := classifyIntent(lower)

	return &InputAnalysis{
		ChatID:  chatID,
		Message: message,
		Analysis: map[string]any{
			"word_count":     len(strings.Fields(message)),
			"has_entities":   len(entities) > 0,
			"has_references": len(references) > 0,
		},
		Entities:   entities,
		References: references,
		Intent:     intent,
		Confidence: confidence,
	}
}

func classifyIntent(lower string) (string, float64) {
	switch {
	case strings.Contains(lower, "create") || strings.Contains(lower, "build"):
		return "workflow_creation", 0.9
	case strings.Contains(lower, "modify") || strings.Contains(lower, "update"):
		return "workflow_modification", 0.85
	case strings.Contains(lower, "explain") || strings.Contains(lower, "what"):
		return "information_request", 0.75
	case strings.Contains(lower, "help"):
		return "help_request", 0.9
	default:
		return "workflow_creation", 0.8
	}
}

// inputAnalysisRequest is the REST request body.
type inputAnalysisRequest struct {
	ChatID  string         `json:"chat_id"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// handleInputAnalysis serves the planner dashboard's input analysis
// endpoint.
func (s *Server) handleInputAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req inputAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}
	if req.ChatID == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "chat_id and message are required"})
		return
	}

	writeJSON(w, http.StatusOK, AnalyzeInput(req.ChatID, req.Message))
}
