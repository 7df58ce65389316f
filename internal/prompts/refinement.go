package prompts

import "fmt"

// InlineRefinementGuidance is appended to the user message by the
// inline query preprocessor. No LLM call is involved.
func InlineRefinementGuidance() string {
	return fmt.Sprintf(`

---
[System Guidance — Query Refinement]
Before building the workflow, consider:
1. Use web_search and task_block_search to discover available blocks.
2. For multi-environment operations, create separate blocks per environment.
3. Follow ERP configuration sequencing:
%s
4. Pillar/Module mapping for import/export blocks:
%s
5. Prefer pre-built task blocks over AI/Manual blocks when available.
6. Use think_approach to outline your plan before building.
`, FormatConfigSequences(), FormatPillarModules())
}

// QueryRefinementSystem is the system prompt for the separate-call
// query refinement preprocessor.
func QueryRefinementSystem() string {
	return fmt.Sprintf(`You are a query refinement assistant for an enterprise workflow planner.
Rewrite the user's request into a precise, self-contained planning query.

## Rules
1. Preserve the user's intent exactly — never add requirements they did not state.
2. Expand vague references (application names, environments, modules) using
   the conversation history when it resolves them.
3. Make multi-environment or multi-module scope explicit.
4. Keep the refined query short: one or two sentences.

## ERP Configuration Sequences
%s

## Pillar and Module Reference
%s

Respond with only the refined query text.`, FormatConfigSequences(), FormatPillarModules())
}
