package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultMaxExamples is how many examples are injected into the prompt.
const DefaultMaxExamples = 3

// Example is one few-shot workflow example.
type Example struct {
	Description string          `json:"description"`
	Workflow    json.RawMessage `json:"workflow"`
}

// Built-in examples used when no example API is configured or it fails.
var defaultExamples = []Example{
	{
		Description: "Export HCM configuration",
		Workflow: json.RawMessage(`{
  "workflow_json": [
    {"BlockId": "B001", "Name": "Start", "ActionCode": "Start", "Inputs": [], "Outputs": []},
    {"BlockId": "B002", "Name": "Export HCM Config", "ActionCode": "ExportConfigurations",
     "Inputs": [
       {"Name": "Module", "StaticValue": "HCM"},
       {"Name": "Format", "StaticValue": "JSON"}
     ],
     "Outputs": [{"Name": "ConfigFile", "OutputVariableName": "op-B002-ConfigFile"}]}
  ],
  "edges": [{"EdgeID": "E001", "From": "B001", "To": "B002"}]
}`),
	},
	{
		Description: "Import data with validation",
		Workflow: json.RawMessage(`{
  "workflow_json": [
    {"BlockId": "B001", "Name": "Start", "ActionCode": "Start", "Inputs": [], "Outputs": []},
    {"BlockId": "B002", "Name": "Validate Input", "ActionCode": "ValidateData",
     "Inputs": [{"Name": "DataFile", "StaticValue": "input.csv"}],
     "Outputs": [
       {"Name": "ValidationResult", "OutputVariableName": "op-B002-ValidationResult"},
       {"Name": "IsValid", "OutputVariableName": "op-B002-IsValid"}
     ]},
    {"BlockId": "B003", "Name": "Import Data", "ActionCode": "ImportData",
     "Inputs": [
       {"Name": "DataFile", "StaticValue": "input.csv"},
       {"Name": "Validation", "ReferencedOutputVariableName": "op-B002-ValidationResult"}
     ],
     "Outputs": [{"Name": "ImportResult", "OutputVariableName": "op-B003-ImportResult"}]}
  ],
  "edges": [
    {"EdgeID": "E001", "From": "B001", "To": "B002"},
    {"EdgeID": "E002", "From": "B002", "To": "B003", "EdgeCondition": "true"}
  ]
}`),
	},
}

// FewShotRetriever fetches example workflows, from a remote example API
// when configured, with built-in defaults otherwise.
type FewShotRetriever struct {
	apiURL string
	apiKey string
	client *http.Client
}

// NewFewShotRetriever creates a retriever. Empty apiURL means built-in
// examples only.
func NewFewShotRetriever(apiURL, apiKey string) *FewShotRetriever {
	return &FewShotRetriever{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Examples returns up to max examples relevant to query. API failures
// fall back to the defaults silently.
func (r *FewShotRetriever) Examples(ctx context.Context, query string, max int) ([]Example, error) {
	if max <= 0 {
		max = DefaultMaxExamples
	}
	if r.apiURL != "" && r.apiKey != "" {
		if examples, err := r.fetchFromAPI(ctx, query, max); err == nil {
			return examples, nil
		}
	}
	if max > len(defaultExamples) {
		max = len(defaultExamples)
	}
	return defaultExamples[:max], nil
}

func (r *FewShotRetriever) fetchFromAPI(ctx context.Context, query string, max int) ([]Example, error) {
	body, err := json.Marshal(map[string]any{"query": query, "limit": max})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.apiURL+"/examples/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("example API returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Examples []Example `json:"examples"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.Examples, nil
}

// FormatExamples renders examples for the system prompt.
func FormatExamples(examples []Example) string {
	sections := make([]string, 0, len(examples))
	for i, example := range examples {
		desc := example.Description
		if desc == "" {
			desc = fmt.Sprintf("Example %d", i+1)
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, example.Workflow, "", "  "); err != nil {
			pretty.Write(example.Workflow)
		}
		sections = append(sections, fmt.Sprintf("### Example %d: %s\n```json\n%s\n```", i+1, desc, pretty.String()))
	}
	return strings.Join(sections, "\n\n")
}
