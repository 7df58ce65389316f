package validation

import (
	"time"

	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

// TemplateInput is one default input slot on a block template.
type TemplateInput struct {
	Name        string
	Description string
	StaticValue string
}

// TemplateOutput is one default output slot on a block template.
type TemplateOutput struct {
	Name        string
	Description string
}

// BlockTemplate generates concrete workflow blocks for the predefined
// block types the catalog knows about.
type BlockTemplate struct {
	ActionCode     string
	Name           string
	KeywordID      string
	GroupName      string
	SubGroup       string
	DefaultInputs  []TemplateInput
	DefaultOutputs []TemplateOutput
}

// CreateBlock instantiates the template with the given BlockId. Output
// variable names follow the op-{BlockId}-{Name} convention.
func (t *BlockTemplate) CreateBlock(blockID string) models.Block {
	inputs := make([]models.Input, 0, len(t.DefaultInputs))
	for _, in := range t.DefaultInputs {
		inputs = append(inputs, models.Input{
			Name:        in.Name,
			Description: in.Description,
			StaticValue: in.StaticValue,
		})
	}

	outputs := make([]models.Output, 0, len(t.DefaultOutputs))
	for _, out := range t.DefaultOutputs {
		outputs = append(outputs, models.Output{
			Name:               out.Name,
			OutputVariableName: models.OutputVariableName(blockID, out.Name),
			Description:        out.Description,
		})
	}

	return models.Block{
		BlockID:    blockID,
		Name:       t.Name,
		ActionCode: t.ActionCode,
		Inputs:     inputs,
		Outputs:    outputs,
		KeywordID:  t.KeywordID,
	}
}

// AIBlockTemplate is the AskWilfred block: an LLM-powered step that
// answers a prompt during workflow execution.
var AIBlockTemplate = BlockTemplate{
	ActionCode: "AskWilfred",
	Name:       "Ask Wilfred",
	KeywordID:  "67a4e14d-8da2-4179-a0aa-f23a561f5f3a",
	GroupName:  "AskWilfred",
	SubGroup:   "AskWilfred",
	DefaultInputs: []TemplateInput{
		{
			Name:        "Prompt",
			StaticValue: "prompt",
			Description: "Prompt to be asked by wilfred, this can contain the question to be asked, the output format that you need to give, please make sure to provide your own output format",
		},
		{
			Name:        "Attachment",
			StaticValue: "input value",
			Description: "Attachment to be provided by the user that will support the prompt, in case your wilfred requires an attachment to process the given prompt, that attachment can be provided here",
		},
		{
			Name:        "Output Format",
			StaticValue: "<output format>",
			Description: "Output Format to be asked by wilfred, Make sure to provide as detailed output format as possible to get correct output format",
		},
	},
	DefaultOutputs: []TemplateOutput{
		{Name: "Output"},
	},
}

// ManualBlockTemplate is the HumanDependent block: pauses the workflow
// until a person completes a task.
var ManualBlockTemplate = BlockTemplate{
	ActionCode: "HumanDependent",
	Name:       "Human Dependable Manual Task",
	KeywordID:  "62ddb2ce-1bad-48df-9e49-4eac80feb2f4",
	GroupName:  "Opkey",
	SubGroup:   "Manual_Process",
	DefaultInputs: []TemplateInput{
		{Name: "Task Recipients", StaticValue: "<user>"},
		{Name: "Task", StaticValue: "<to be used if input is static>"},
		{Name: "Attachment", StaticValue: "<to be used if input is static>"},
	},
	DefaultOutputs: []TemplateOutput{
		{Name: "IsHumanDepenedable", Description: "Is the given task human dependable"},
	},
}

// TaskBlockTemplate is the generic catalog-backed template; its fields
// are overwritten from the matching catalog entry.
var TaskBlockTemplate = BlockTemplate{
	ActionCode: "SendEmail",
	Name:       "Send Email",
	GroupName:  "Opkey",
	SubGroup:   "Notify",
	DefaultInputs: []TemplateInput{
		{Name: "Subject"},
		{Name: "Body"},
		{Name: "Email IDs"},
		{Name: "Attachment"},
	},
	DefaultOutputs: []TemplateOutput{
		{Name: "Sent"},
	},
}

// TemplateForAction returns the predefined template for an ActionCode,
// or nil.
func TemplateForAction(actionCode string) *BlockTemplate {
	switch actionCode {
	case "AskWilfred":
		return &AIBlockTemplate
	case "HumanDependent":
		return &ManualBlockTemplate
	}
	return nil
}

// discoveryDateLayout renders dates as M/D/YYYY with a fixed
// end-of-day time component.
const discoveryDateLayout = "1/2/2006"

// ApplyDiscoveryDefaults fills in the CreateDiscoverySnapshot block's
// defaults: a 30-day date window, UTC timezone, and the OracleFusion
// application. Dates and the client utility flag are only set when
// empty or "null"; Application and Timezone are always normalized.
func ApplyDiscoveryDefaults(block models.Block, now time.Time) models.Block {
	endDate := now
	startDate := endDate.AddDate(0, 0, -30)

	for i := range block.Inputs {
		in := &block.Inputs[i]
		isEmpty := in.StaticValue == "" || in.StaticValue == "null"

		switch {
		case in.Name == "Should use client utility" && isEmpty:
			in.StaticValue = "False"
		case in.Name == "Application":
			in.StaticValue = "OracleFusion"
		case in.Name == "Start Date" && isEmpty:
			in.StaticValue = startDate.Format(discoveryDateLayout) + " 11:59:59 PM"
		case in.Name == "End Date" && isEmpty:
			in.StaticValue = endDate.Format(discoveryDateLayout) + " 11:59:59 PM"
		case in.Name == "Timezone":
			in.StaticValue = "UTC"
		}
	}
	return block
}
