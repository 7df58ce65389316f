package planner

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

var jsonFencePattern = regexp.MustCompile("```(?:json)?\\s*(\\{[\\s\\S]*?\\})\\s*```")

// ParseWorkflowFromText recovers a workflow from free-form model text.
// Used as a fallback when the model writes the workflow inline instead
// of calling submit_workflow: fenced JSON blocks are tried first, then
// a balanced-brace scan from the first `{"workflow_json"` occurrence.
func ParseWorkflowFromText(text string) *models.Workflow {
	for _, match := range jsonFencePattern.FindAllStringSubmatch(text, -1) {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal([]byte(match[1]), &probe); err != nil {
			continue
		}
		if _, ok := probe["workflow_json"]; !ok {
			continue
		}
		if _, ok := probe["edges"]; !ok {
			continue
		}
		var workflow models.Workflow
		if err := json.Unmarshal([]byte(match[1]), &workflow); err == nil {
			return &workflow
		}
	}

	start := strings.Index(text, `{"workflow_json"`)
	if start == -1 {
		return nil
	}
	end := balancedBraceEnd(text, start)
	if end <= start {
		return nil
	}

	var workflow models.Workflow
	if err := json.Unmarshal([]byte(text[start:end]), &workflow); err != nil {
		return nil
	}
	return &workflow
}

// balancedBraceEnd returns the index one past the brace that closes the
// object opening at start, or -1.
func balancedBraceEnd(text string, start int) int {
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
