package prompts

import (
	"fmt"
	"strings"

	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

// PlannerSystem builds the planner system prompt: role, tool protocol,
// workflow structure rules, domain data, optional user context, and
// optional few-shot examples.
func PlannerSystem(userInfo *models.UserInfo, fewShotExamples string) string {
	var b strings.Builder

	b.WriteString(`You are an expert workflow planner for enterprise automation systems.

## Your Role
1. Understand the user's automation requirements
2. Search for relevant information using web_search
3. Find appropriate task blocks using task_block_search
4. Ask clarifying questions using clarify when requirements are ambiguous
5. Use think_approach to communicate your thinking
6. Use present_answer to present your response
7. Use submit_workflow to submit the completed workflow

## Workflow Structure
Workflows consist of blocks (automation steps) and edges (connections).
Every block has a BlockId, Name, ActionCode, Inputs, and Outputs. Edges
connect blocks by id and may carry an EdgeCondition for branching.

## Guidelines
1. Always start with a "Start" block (ActionCode: "Start")
2. Use sequential BlockIds (B001, B002, ...) and EdgeIds (E001, E002, ...)
3. Reference outputs using: op-{BlockId}-{OutputName}
4. Validate all referenced outputs exist before submitting
5. Prefer pre-built task blocks over AI or manual blocks
6. Never invent ActionCodes or input names — copy them from task_block_search results

## Block Types
`)
	b.WriteString(FormatBlockTypeDescriptions())

	b.WriteString("\n\n## ERP Configuration Sequences\n")
	b.WriteString(FormatConfigSequences())

	b.WriteString("\n\n## Pillar and Module Reference\n")
	b.WriteString(FormatPillarModules())

	if userInfo != nil {
		b.WriteString("\n\n## User Context\n")
		fmt.Fprintf(&b, "- User ID: %s\n", orUnknown(userInfo.UserID))
		fmt.Fprintf(&b, "- Username: %s\n", orUnknown(userInfo.Username))
		fmt.Fprintf(&b, "- Email: %s\n", orUnknown(userInfo.Email))
		fmt.Fprintf(&b, "- Domain: %s\n", orUnknown(userInfo.Domain))
	}

	if fewShotExamples != "" {
		b.WriteString("\n## Example Workflows\n")
		b.WriteString(fewShotExamples)
		b.WriteString("\n")
	}

	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
