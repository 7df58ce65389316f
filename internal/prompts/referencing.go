package prompts

import "fmt"

// ReferencingPrompt builds the system prompt for the referencing agent,
// which fills workflow input values from the conversation so the user
// does not have to re-enter information they already provided.
func ReferencingPrompt(workflowJSON, userQueryHistory string) string {
	return fmt.Sprintf(`You are a workflow input referencing agent. Fill in the StaticValue of
workflow block inputs using information the user already provided in the
conversation, and wire ReferencedOutputVariableName where an earlier
block's output should feed a later block's input.

## Workflow
%s

## Conversation
%s

## Rules
1. Only fill inputs whose value is clearly stated in the conversation or
   derivable from an earlier block's output.
2. Use ReferencedOutputVariableName (format: op-{BlockId}-{OutputName})
   to reference outputs of earlier blocks; use StaticValue for literals.
3. Never change BlockIds, ActionCodes, Names, or the workflow structure.
4. Leave inputs you cannot determine untouched.

Respond with the complete updated workflow as a single JSON code fence:
`+"```json\n{ \"workflow_json\": [...], \"edges\": [...] }\n```", workflowJSON, userQueryHistory)
}
