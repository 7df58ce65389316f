package validation

import (
	"context"
	"fmt"

	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

// actionSpec lists the recommended inputs for a known action code.
type actionSpec struct {
	requiredInputs []string
}

// knownActions maps core action codes to their expected inputs. Blocks
// with other action codes are checked structurally only.
var knownActions = map[string]actionSpec{
	"Start":                {},
	"ExportConfigurations": {requiredInputs: []string{"Module"}},
	"ImportData":           {requiredInputs: []string{"DataFile"}},
	"ValidateData":         {requiredInputs: []string{"DataFile"}},
	"AskWilfred":           {requiredInputs: []string{"Question"}},
	"TransformData":        {requiredInputs: []string{"Input"}},
	"ConditionalBranch":    {requiredInputs: []string{"Condition"}},
}

// StructuralValidator is the first pipeline stage: fast, deterministic,
// no LLM calls. Checks block IDs, edges, references, and flow
// connectivity.
type StructuralValidator struct {
	strict bool
}

// NewStructuralValidator creates the stage. In strict mode warnings are
// promoted to errors.
func NewStructuralValidator(strict bool) *StructuralValidator {
	return &StructuralValidator{strict: strict}
}

func (v *StructuralValidator) Name() string   { return "structural" }
func (v *StructuralValidator) Blocking() bool { return true }

// Validate runs the structural checks, emitting progress after each
// step.
func (v *StructuralValidator) Validate(ctx context.Context, workflow *models.Workflow, vctx *Context) (*Result, error) {
	result := &Result{}

	const totalSteps = 5
	step := 0
	progress := func(stage, message string) {
		vctx.EmitProgress(ctx, stage, float64(step)/totalSteps*100, message, result.Errors)
	}

	progress("structure", "Validating workflow structure...")
	v.checkStructure(workflow, result)
	step++

	progress("blocks", "Validating blocks...")
	v.checkBlocks(workflow, result)
	step++

	progress("edges", "Validating edges...")
	v.checkEdges(workflow, result)
	step++

	progress("references", "Validating output references...")
	v.checkReferences(workflow, result)
	step++

	progress("flow", "Validating execution flow...")
	v.checkFlow(workflow, result)
	step++

	if v.strict {
		for _, w := range result.Warnings {
			result.AddError(fmt.Sprintf("Warning (strict): %s", w))
		}
	}

	progress("complete", "Validation complete")
	return result, nil
}

func (v *StructuralValidator) checkStructure(workflow *models.Workflow, result *Result) {
	if len(workflow.Blocks) == 0 {
		result.AddError("Workflow must have at least one block")
		return
	}
	if len(workflow.Edges) == 0 && len(workflow.Blocks) > 1 {
		result.AddWarning("Workflow has multiple blocks but no edges")
	}
}

func (v *StructuralValidator) checkBlocks(workflow *models.Workflow, result *Result) {
	blockIDs := make(map[string]bool, len(workflow.Blocks))
	hasStart := false

	for _, block := range workflow.Blocks {
		if blockIDs[block.BlockID] {
			result.AddError(fmt.Sprintf("Duplicate BlockId: %s", block.BlockID))
		}
		blockIDs[block.BlockID] = true

		if !models.BlockIDPattern.MatchString(block.BlockID) {
			result.AddWarning(fmt.Sprintf("BlockId %q doesn't follow B### pattern", block.BlockID))
		}

		if block.ActionCode == "Start" {
			if hasStart {
				result.AddError("Multiple Start blocks found")
			}
			hasStart = true
		}

		if trimmed := block.Name; trimmed == "" || isBlank(trimmed) {
			result.AddError(fmt.Sprintf("Block %s has empty name", block.BlockID))
		}
		if block.ActionCode == "" {
			result.AddError(fmt.Sprintf("Block %s has no ActionCode", block.BlockID))
		}

		v.checkBlockIO(block, result)
	}

	if !hasStart {
		result.AddError("Workflow must have a Start block")
	}
}

func (v *StructuralValidator) checkBlockIO(block models.Block, result *Result) {
	spec, ok := knownActions[block.ActionCode]
	if !ok {
		return
	}

	inputNames := make(map[string]bool, len(block.Inputs))
	for _, input := range block.Inputs {
		inputNames[input.Name] = true
	}
	for _, required := range spec.requiredInputs {
		if !inputNames[required] {
			result.AddWarning(fmt.Sprintf(
				"Block %s (%s) missing recommended input: %s",
				block.BlockID, block.ActionCode, required,
			))
		}
	}
}

func (v *StructuralValidator) checkEdges(workflow *models.Workflow, result *Result) {
	edgeIDs := make(map[string]bool, len(workflow.Edges))
	blockIDs := make(map[string]bool, len(workflow.Blocks))
	for _, block := range workflow.Blocks {
		blockIDs[block.BlockID] = true
	}

	for _, edge := range workflow.Edges {
		if edgeIDs[edge.EdgeID] {
			result.AddError(fmt.Sprintf("Duplicate EdgeID: %s", edge.EdgeID))
		}
		edgeIDs[edge.EdgeID] = true

		if !models.EdgeIDPattern.MatchString(edge.EdgeID) {
			result.AddWarning(fmt.Sprintf("EdgeID %q doesn't follow E### pattern", edge.EdgeID))
		}

		if !blockIDs[edge.From] {
			result.AddError(fmt.Sprintf("Edge %s references non-existent From block: %s", edge.EdgeID, edge.From))
		}
		if !blockIDs[edge.To] {
			result.AddError(fmt.Sprintf("Edge %s references non-existent To block: %s", edge.EdgeID, edge.To))
		}
		if edge.From == edge.To {
			result.AddWarning(fmt.Sprintf("Edge %s is a self-loop", edge.EdgeID))
		}
		if edge.EdgeCondition != "" && edge.EdgeCondition != "true" && edge.EdgeCondition != "false" {
			result.AddWarning(fmt.Sprintf("Edge %s has unusual condition: %s", edge.EdgeID, edge.EdgeCondition))
		}
	}
}

func (v *StructuralValidator) checkReferences(workflow *models.Workflow, result *Result) {
	available := workflow.OutputVariables()

	for _, block := range workflow.Blocks {
		for _, input := range block.Inputs {
			if input.ReferencedOutputVariableName == "" {
				continue
			}
			if !available[input.ReferencedOutputVariableName] {
				result.AddError(fmt.Sprintf(
					"Block %s references non-existent output: %s",
					block.BlockID, input.ReferencedOutputVariableName,
				))
			}
		}
	}
}

func (v *StructuralValidator) checkFlow(workflow *models.Workflow, result *Result) {
	if len(workflow.Blocks) == 0 {
		return
	}

	blockIDs := make(map[string]bool, len(workflow.Blocks))
	for _, block := range workflow.Blocks {
		blockIDs[block.BlockID] = true
	}

	outgoing := make(map[string][]string, len(blockIDs))
	incoming := make(map[string][]string, len(blockIDs))
	for _, edge := range workflow.Edges {
		if blockIDs[edge.From] {
			outgoing[edge.From] = append(outgoing[edge.From], edge.To)
		}
		if blockIDs[edge.To] {
			incoming[edge.To] = append(incoming[edge.To], edge.From)
		}
	}

	var start *models.Block
	for i := range workflow.Blocks {
		if workflow.Blocks[i].ActionCode == "Start" {
			start = &workflow.Blocks[i]
			break
		}
	}
	if start == nil {
		return
	}

	if len(incoming[start.BlockID]) > 0 {
		result.AddError("Start block should not have incoming edges")
	}

	reachable := map[string]bool{start.BlockID: true}
	queue := []string{start.BlockID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range outgoing[current] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, block := range workflow.Blocks {
		id := block.BlockID
		if reachable[id] {
			continue
		}
		result.AddWarning(fmt.Sprintf("Block %s may be unreachable from Start", id))
	}

	for _, block := range workflow.Blocks {
		id := block.BlockID
		if id == start.BlockID {
			continue
		}
		if len(outgoing[id]) == 0 && len(incoming[id]) == 0 {
			result.AddWarning(fmt.Sprintf("Block %s is isolated (no edges)", id))
		}
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
