package validation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opkey-ai/reasoning-engine/internal/prompts"
	"github.com/opkey-ai/reasoning-engine/internal/search"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

func sendEmailCatalog() *fakeCatalog {
	return &fakeCatalog{
		results: []search.TaskBlockResult{
			{
				BlockID:        "tb-1",
				Name:           "Send Email",
				ActionCode:     "SendEmail",
				Inputs:         []string{"Subject", "Body", "Email IDs", "Attachment"},
				Outputs:        []string{"Sent"},
				RelevanceScore: 0.9,
			},
		},
	}
}

func TestLLMBlockNoChangesMapsToCatalog(t *testing.T) {
	provider := &substringProvider{fallback: prompts.NoChangesNeeded}
	v := NewLLMBlockValidator(provider, "validator-model", sendEmailCatalog(), 0, nil)

	workflow := &models.Workflow{
		Blocks: []models.Block{
			startBlock("B001"),
			{
				BlockID:    "B002",
				Name:       "Notify Team",
				ActionCode: "SendEmail",
				Inputs: []models.Input{
					{Name: "Subject", StaticValue: "Export done"},
					{Name: "Body", ReferencedOutputVariableName: "op-B001-Report"},
				},
				Outputs: []models.Output{
					{Name: "Sent", OutputVariableName: "op-B002-Sent"},
				},
			},
		},
		Edges: []models.Edge{{EdgeID: "E001", From: "B001", To: "B002"}},
	}

	result, err := v.Validate(context.Background(), workflow, &Context{UserQuery: "notify the team"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.Valid() {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}

	block := result.Corrected.Blocks[1]
	if block.ActionCode != "SendEmail" || block.BlockID != "B002" {
		t.Fatalf("unexpected block: %+v", block)
	}
	// Catalog dictates the full input set; planner values survive.
	if len(block.Inputs) != 4 {
		t.Fatalf("expected 4 catalog inputs, got %+v", block.Inputs)
	}
	if block.Inputs[0].StaticValue != "Export done" {
		t.Errorf("Subject value lost: %+v", block.Inputs[0])
	}
	if block.Inputs[1].ReferencedOutputVariableName != "op-B001-Report" {
		t.Errorf("Body reference lost: %+v", block.Inputs[1])
	}
	if block.Inputs[2].StaticValue != "" {
		t.Errorf("Email IDs should be empty: %+v", block.Inputs[2])
	}
	if block.Outputs[0].OutputVariableName != "op-B002-Sent" {
		t.Errorf("output variable lost: %+v", block.Outputs[0])
	}
}

func TestLLMBlockStartBlockSkipsLLM(t *testing.T) {
	provider := &substringProvider{fallback: prompts.NoChangesNeeded}
	v := NewLLMBlockValidator(provider, "validator-model", sendEmailCatalog(), 0, nil)

	workflow := &models.Workflow{Blocks: []models.Block{startBlock("B001")}}
	if _, err := v.Validate(context.Background(), workflow, &Context{}); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(provider.calls) != 0 {
		t.Errorf("Start block must not hit the LLM, got %d calls", len(provider.calls))
	}
}

func TestLLMBlockCustomBlockTemplate(t *testing.T) {
	provider := &substringProvider{fallback: prompts.NoMatchCustomBlock}
	v := NewLLMBlockValidator(provider, "validator-model", &fakeCatalog{}, 0, nil)

	workflow := &models.Workflow{
		Blocks: []models.Block{
			{
				BlockID:    "B004",
				Name:       "Ask about totals",
				ActionCode: "AskWilfred",
				Inputs: []models.Input{
					{Name: "Prompt", StaticValue: "Summarize the export"},
					{Name: "Attachment", ReferencedOutputVariableName: "op-B002-ConfigFile"},
				},
				Outputs: []models.Output{
					{Name: "Answer", OutputVariableName: "op-B004-Answer"},
				},
			},
		},
	}

	result, err := v.Validate(context.Background(), workflow, &Context{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	block := result.Corrected.Blocks[0]
	if block.KeywordID != AIBlockTemplate.KeywordID {
		t.Errorf("AskWilfred template KeywordId missing: %+v", block)
	}
	if block.Name != "Ask about totals" {
		t.Errorf("planner name lost: %q", block.Name)
	}
	if block.Inputs[0].Name != "Prompt" || block.Inputs[0].StaticValue != "Summarize the export" {
		t.Errorf("prompt input lost: %+v", block.Inputs[0])
	}
	if block.Inputs[1].ReferencedOutputVariableName != "op-B002-ConfigFile" {
		t.Errorf("attachment reference lost: %+v", block.Inputs[1])
	}
	if block.Outputs[0].Name != "Answer" || block.Outputs[0].OutputVariableName != "op-B004-Answer" {
		t.Errorf("planner output lost: %+v", block.Outputs[0])
	}
}

func TestLLMBlockCorrectionWithEdgeChanges(t *testing.T) {
	response := "The block name was wrong.\n" +
		"Add: [{\"From\": \"B002\", \"To\": \"B003\"}]\n" +
		"```json\n" +
		`{"BlockId": "B002", "Name": "Send Email", "ActionCode": "SendEmail", "Inputs": [], "Outputs": []}` +
		"\n```\n"
	provider := &substringProvider{fallback: response}
	v := NewLLMBlockValidator(provider, "validator-model", sendEmailCatalog(), 0, nil)

	workflow := &models.Workflow{
		Blocks: []models.Block{
			startBlock("B001"),
			{BlockID: "B002", Name: "Email the team", ActionCode: "NotifyTeam"},
			{BlockID: "B003", Name: "Archive", ActionCode: "ArchiveFile"},
		},
		Edges: []models.Edge{
			{EdgeID: "E001", From: "B001", To: "B002"},
			{EdgeID: "E005", From: "B003", To: "B003"},
		},
	}

	result, err := v.Validate(context.Background(), workflow, &Context{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if got := result.Corrected.Blocks[1].ActionCode; got != "SendEmail" {
		t.Errorf("corrected ActionCode = %s", got)
	}

	// Self-loop dropped, added edge gets a fresh sequential ID.
	var added *models.Edge
	for i := range result.Corrected.Edges {
		edge := &result.Corrected.Edges[i]
		if edge.From == edge.To {
			t.Errorf("self-loop survived: %+v", edge)
		}
		if edge.From == "B002" && edge.To == "B003" {
			added = edge
		}
	}
	if added == nil {
		t.Fatalf("added edge missing: %v", result.Corrected.Edges)
	}
	if added.EdgeID != "E002" {
		t.Errorf("added edge id = %s", added.EdgeID)
	}
}

func TestLLMBlockProviderFailureBecomesWarning(t *testing.T) {
	provider := &substringProvider{err: errors.New("rate limited")}
	v := NewLLMBlockValidator(provider, "validator-model", sendEmailCatalog(), 0, nil)

	workflow := &models.Workflow{
		Blocks: []models.Block{
			{BlockID: "B002", Name: "Notify", ActionCode: "SendEmail"},
		},
	}

	result, err := v.Validate(context.Background(), workflow, &Context{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.Valid() {
		t.Fatalf("failures must degrade to warnings, got errors %v", result.Errors)
	}
	if len(result.Warnings) != 1 || !strings.HasPrefix(result.Warnings[0], "Block validation failed:") {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
	// The original block survives untouched.
	if result.Corrected.Blocks[0].ActionCode != "SendEmail" {
		t.Errorf("block lost on failure: %+v", result.Corrected.Blocks[0])
	}
}

func TestLLMBlockEmitsProgressPerBlock(t *testing.T) {
	emitter := &recordingEmitter{}
	provider := &substringProvider{fallback: prompts.NoChangesNeeded}
	v := NewLLMBlockValidator(provider, "validator-model", sendEmailCatalog(), 0, nil)

	workflow := &models.Workflow{
		Blocks: []models.Block{
			startBlock("B001"),
			{BlockID: "B002", Name: "Notify", ActionCode: "SendEmail"},
		},
	}
	vctx := &Context{ConversationID: "conv-9", Emitter: emitter}
	if _, err := v.Validate(context.Background(), workflow, vctx); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	events := emitter.byType(models.EventValidatorProgress)
	if len(events) != 1 {
		t.Fatalf("expected 1 progress event (Start skipped), got %d", len(events))
	}
	if events[0].Payload["message"] != "Validated block B002: Notify" {
		t.Errorf("unexpected message: %v", events[0].Payload)
	}
}

func TestLLMBlockDiscoveryDefaultsApplied(t *testing.T) {
	catalog := &fakeCatalog{
		results: []search.TaskBlockResult{
			{
				Name:       "Create Discovery Snapshot",
				ActionCode: "CreateDiscoverySnapshot",
				Inputs:     []string{"Application", "Start Date", "End Date", "Timezone", "Should use client utility"},
				Outputs:    []string{"Snapshot"},
			},
		},
	}
	provider := &substringProvider{fallback: prompts.NoChangesNeeded}
	v := NewLLMBlockValidator(provider, "validator-model", catalog, 0, nil)
	v.now = func() time.Time { return time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC) }

	workflow := &models.Workflow{
		Blocks: []models.Block{
			{BlockID: "B002", Name: "Snapshot", ActionCode: "CreateDiscoverySnapshot"},
		},
	}

	result, err := v.Validate(context.Background(), workflow, &Context{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	values := make(map[string]string)
	for _, in := range result.Corrected.Blocks[0].Inputs {
		values[in.Name] = in.StaticValue
	}
	if values["Application"] != "OracleFusion" {
		t.Errorf("Application = %q", values["Application"])
	}
	if values["End Date"] != "3/5/2026 11:59:59 PM" {
		t.Errorf("End Date = %q", values["End Date"])
	}
	if values["Timezone"] != "UTC" {
		t.Errorf("Timezone = %q", values["Timezone"])
	}
}

func TestParseValidationResponse(t *testing.T) {
	original := models.Block{BlockID: "B002", Name: "Notify", ActionCode: "SendEmail"}

	t.Run("sentinel with edge changes", func(t *testing.T) {
		parsed := parseValidationResponse(
			"Add: [{\"From\": \"B001\", \"To\": \"B002\"}]\n"+prompts.NoChangesNeeded,
			original,
		)
		if parsed.modified {
			t.Error("sentinel response must not be modified")
		}
		if len(parsed.edgesToAdd) != 1 || parsed.edgesToAdd[0].To != "B002" {
			t.Errorf("edge add missing: %+v", parsed.edgesToAdd)
		}
	})

	t.Run("last fence wins", func(t *testing.T) {
		response := "```json\n{\"BlockId\": \"B002\", \"Name\": \"Draft\", \"ActionCode\": \"SendEmail\"}\n```\n" +
			"```json\n{\"BlockId\": \"B002\", \"Name\": \"Final\", \"ActionCode\": \"SendEmail\"}\n```"
		parsed := parseValidationResponse(response, original)
		if !parsed.modified || parsed.block.Name != "Final" {
			t.Errorf("expected last fence, got %+v", parsed)
		}
	})

	t.Run("identical block is not a modification", func(t *testing.T) {
		parsed := parseValidationResponse(
			"```json\n{\"BlockId\": \"B002\", \"Name\": \"Notify\", \"ActionCode\": \"SendEmail\"}\n```",
			original,
		)
		if parsed.modified {
			t.Errorf("unchanged block flagged as modified: %+v", parsed)
		}
	})

	t.Run("invalid json ignored", func(t *testing.T) {
		parsed := parseValidationResponse("```json\n{not json}\n```", original)
		if parsed.modified {
			t.Error("invalid fence must not modify")
		}
	})
}
