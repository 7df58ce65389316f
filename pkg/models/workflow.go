package models

import (
	"fmt"
	"regexp"
	"strings"
)

// Workflow identifier formats. Blocks use B001..B999, edges E001..E999.
var (
	BlockIDPattern = regexp.MustCompile(`^B\d{3}$`)
	EdgeIDPattern  = regexp.MustCompile(`^E\d{3}$`)
)

// Input is a single input slot on a workflow block. A populated
// ReferencedOutputVariableName wires the input to another block's output;
// a StaticValue fixes it at authoring time.
type Input struct {
	Name                         string `json:"Name"`
	ReferencedOutputVariableName string `json:"ReferencedOutputVariableName,omitempty"`
	StaticValue                  string `json:"StaticValue,omitempty"`
	Description                  string `json:"Description,omitempty"`
}

// Output is a named output slot on a workflow block.
type Output struct {
	Name               string `json:"Name"`
	OutputVariableName string `json:"OutputVariableName,omitempty"`
	Description        string `json:"Description,omitempty"`
}

// Block is a single automation step in a workflow.
type Block struct {
	BlockID    string   `json:"BlockId"`
	Name       string   `json:"Name"`
	ActionCode string   `json:"ActionCode"`
	Inputs     []Input  `json:"Inputs"`
	Outputs    []Output `json:"Outputs"`
	KeywordID  string   `json:"KeywordId,omitempty"`
}

// Edge connects two blocks. EdgeCondition carries "true"/"false" for
// conditional branches.
type Edge struct {
	EdgeID        string `json:"EdgeID"`
	From          string `json:"From"`
	To            string `json:"To"`
	EdgeCondition string `json:"EdgeCondition,omitempty"`
}

// Workflow is the planner's output artifact: a block list plus the edge
// graph connecting them.
type Workflow struct {
	Blocks  []Block `json:"workflow_json"`
	Edges   []Edge  `json:"edges"`
	JobName string  `json:"job_name,omitempty"`
}

// OutputVariableName derives the canonical variable name for a block
// output: op-{BlockId}-{OutputName} with spaces stripped from the name.
func OutputVariableName(blockID, outputName string) string {
	return fmt.Sprintf("op-%s-%s", blockID, strings.ReplaceAll(outputName, " ", ""))
}

// BlockByID returns the block with the given id, or nil.
func (w *Workflow) BlockByID(id string) *Block {
	for i := range w.Blocks {
		if w.Blocks[i].BlockID == id {
			return &w.Blocks[i]
		}
	}
	return nil
}

// ValidateStructure performs basic structural checks and returns a list of
// error strings. It does not apply domain heuristics; those belong to the
// validation pipeline.
func (w *Workflow) ValidateStructure() []string {
	var errs []string

	if len(w.Blocks) == 0 {
		errs = append(errs, "workflow has no blocks")
		return errs
	}

	blockIDs := make(map[string]bool, len(w.Blocks))
	startCount := 0
	for _, b := range w.Blocks {
		if b.ActionCode == "Start" {
			startCount++
		}
		if b.BlockID == "" {
			errs = append(errs, fmt.Sprintf("block %q has empty BlockId", b.Name))
			continue
		}
		if blockIDs[b.BlockID] {
			errs = append(errs, fmt.Sprintf("duplicate BlockId: %s", b.BlockID))
		}
		blockIDs[b.BlockID] = true
		if b.ActionCode == "" {
			errs = append(errs, fmt.Sprintf("block %s has empty ActionCode", b.BlockID))
		}
	}
	switch {
	case startCount == 0:
		errs = append(errs, "workflow must have a Start block")
	case startCount > 1:
		errs = append(errs, "workflow must have exactly one Start block")
	}

	edgeIDs := make(map[string]bool, len(w.Edges))
	for _, e := range w.Edges {
		if e.EdgeID != "" {
			if edgeIDs[e.EdgeID] {
				errs = append(errs, fmt.Sprintf("duplicate EdgeID: %s", e.EdgeID))
			}
			edgeIDs[e.EdgeID] = true
		}
		if !blockIDs[e.From] {
			errs = append(errs, fmt.Sprintf("edge %s references unknown From block: %s", e.EdgeID, e.From))
		}
		if !blockIDs[e.To] {
			errs = append(errs, fmt.Sprintf("edge %s references unknown To block: %s", e.EdgeID, e.To))
		}
	}

	declared := w.OutputVariables()
	for _, b := range w.Blocks {
		for _, in := range b.Inputs {
			if in.ReferencedOutputVariableName == "" {
				continue
			}
			if !declared[in.ReferencedOutputVariableName] {
				errs = append(errs, fmt.Sprintf(
					"block %s references non-existent output: %s",
					b.BlockID, in.ReferencedOutputVariableName,
				))
			}
		}
	}

	return errs
}

// OutputVariables collects every declared OutputVariableName in the
// workflow, used to check input references resolve.
func (w *Workflow) OutputVariables() map[string]bool {
	vars := make(map[string]bool)
	for _, b := range w.Blocks {
		for _, out := range b.Outputs {
			if out.OutputVariableName != "" {
				vars[out.OutputVariableName] = true
			}
		}
	}
	return vars
}

// Clone returns a deep copy of the workflow. Pipeline stages mutate their
// own copy so callers keep the original.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	cp := &Workflow{JobName: w.JobName}
	cp.Blocks = make([]Block, len(w.Blocks))
	for i, b := range w.Blocks {
		nb := b
		nb.Inputs = append([]Input(nil), b.Inputs...)
		nb.Outputs = append([]Output(nil), b.Outputs...)
		cp.Blocks[i] = nb
	}
	cp.Edges = append([]Edge(nil), w.Edges...)
	return cp
}
