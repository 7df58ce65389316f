package prompts

import "fmt"

// Sentinel responses the block validator recognizes.
const (
	// NoMatchCustomBlock means the catalog has no equivalent block and
	// the custom block should be kept as-is.
	NoMatchCustomBlock = "NO MATCH - CUSTOM BLOCK"

	// NoChangesNeeded means the block already matches its catalog entry.
	NoChangesNeeded = "NO_CHANGES_NEEDED"
)

// ValidationPrompt builds the per-block validation prompt. The model
// compares a block against task block catalog results and either
// confirms it, replaces it with a corrected block, or flags it as a
// custom block with no catalog match.
func ValidationPrompt(blockJSON, taskBlockResults, fullWorkflow, userQuery, edgesJSON string) string {
	return fmt.Sprintf(`You are a workflow block validator. Compare the block below against the
task block catalog results and decide whether it is correct.

## Block Under Validation
%s

## Task Block Catalog Results
%s

## Full Workflow (context)
%s

## Edges
%s

## Original User Request
%s

## Pillar and Module Reference
%s

## Decision Rules
1. If the block's ActionCode, input Names, and output Names exactly match a
   catalog entry, respond with exactly: %s
2. If the catalog has no entry that could serve this block's purpose,
   respond with exactly: %s
3. Otherwise, correct the block, then output the corrected block as the
   final JSON code fence:
   `+"```json\n   { ...corrected block... }\n   ```"+`

If the correction requires edge changes, list them as JSON arrays on their
own lines (these are honored even alongside %s):
   Add: [{"From": "B001", "To": "B002"}]
   Remove: [{"From": "B002", "To": "B003"}]

Only the last JSON code fence in your response is used as the correction.
Never change the BlockId. Copy input and output Names exactly from the catalog.`,
		blockJSON, taskBlockResults, fullWorkflow, edgesJSON, userQuery, FormatPillarModules(),
		NoChangesNeeded, NoMatchCustomBlock, NoChangesNeeded)
}
