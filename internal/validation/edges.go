package validation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

// EdgeConnectionValidator repairs workflow graph connectivity.
// Non-blocking: it produces warnings only. Fixes applied:
//
//   - missing Start block (one is inserted and wired to entry points)
//   - duplicate edges (deduplicated, first occurrence kept)
//   - self-loops (removed)
type EdgeConnectionValidator struct{}

// NewEdgeConnectionValidator creates the stage.
func NewEdgeConnectionValidator() *EdgeConnectionValidator {
	return &EdgeConnectionValidator{}
}

func (v *EdgeConnectionValidator) Name() string   { return "edge_connection" }
func (v *EdgeConnectionValidator) Blocking() bool { return false }

// Validate repairs the graph and returns a corrected workflow.
func (v *EdgeConnectionValidator) Validate(ctx context.Context, workflow *models.Workflow, vctx *Context) (*Result, error) {
	result := &Result{}

	corrected := workflow.Clone()
	v.ensureStartBlock(corrected, result)
	corrected.Edges = v.deduplicateEdges(corrected.Edges, result)
	corrected.Edges = v.removeSelfLoops(corrected.Edges, result)
	v.checkDisconnected(corrected, result)

	result.Corrected = corrected
	return result, nil
}

// ensureStartBlock inserts a Start block when the workflow has none and
// connects it to every block without an incoming edge.
func (v *EdgeConnectionValidator) ensureStartBlock(workflow *models.Workflow, result *Result) {
	for _, block := range workflow.Blocks {
		if block.ActionCode == "Start" {
			return
		}
	}

	result.AddWarning("Start block was missing — added automatically")

	blockIDs := make(map[string]bool, len(workflow.Blocks))
	for _, block := range workflow.Blocks {
		blockIDs[block.BlockID] = true
	}
	startID := "B000"
	if blockIDs[startID] {
		startID = "B999"
	}

	start := models.Block{
		BlockID:    startID,
		Name:       "Start",
		ActionCode: "Start",
		Inputs:     []models.Input{},
		Outputs:    []models.Output{},
	}
	workflow.Blocks = append([]models.Block{start}, workflow.Blocks...)

	hasIncoming := make(map[string]bool, len(workflow.Edges))
	for _, edge := range workflow.Edges {
		hasIncoming[edge.To] = true
	}

	next := maxEdgeNum(workflow.Edges)
	for _, block := range workflow.Blocks {
		if block.BlockID == startID || hasIncoming[block.BlockID] {
			continue
		}
		next++
		workflow.Edges = append(workflow.Edges, models.Edge{
			EdgeID: fmt.Sprintf("E%03d", next),
			From:   startID,
			To:     block.BlockID,
		})
	}
}

func (v *EdgeConnectionValidator) deduplicateEdges(edges []models.Edge, result *Result) []models.Edge {
	type pair struct{ from, to string }
	seen := make(map[pair]bool, len(edges))
	unique := make([]models.Edge, 0, len(edges))

	for _, edge := range edges {
		p := pair{edge.From, edge.To}
		if seen[p] {
			result.AddWarning(fmt.Sprintf("Duplicate edge removed: %s -> %s", edge.From, edge.To))
			continue
		}
		seen[p] = true
		unique = append(unique, edge)
	}
	return unique
}

func (v *EdgeConnectionValidator) removeSelfLoops(edges []models.Edge, result *Result) []models.Edge {
	clean := make([]models.Edge, 0, len(edges))
	for _, edge := range edges {
		if edge.From == edge.To {
			result.AddWarning(fmt.Sprintf("Self-loop removed: %s", edge.EdgeID))
			continue
		}
		clean = append(clean, edge)
	}
	return clean
}

func (v *EdgeConnectionValidator) checkDisconnected(workflow *models.Workflow, result *Result) {
	connected := make(map[string]bool, len(workflow.Edges)*2)
	for _, edge := range workflow.Edges {
		connected[edge.From] = true
		connected[edge.To] = true
	}

	for _, block := range workflow.Blocks {
		if block.ActionCode == "Start" {
			continue
		}
		if !connected[block.BlockID] {
			result.AddWarning(fmt.Sprintf("Block %s (%s) has no edge connections", block.BlockID, block.Name))
		}
	}
}

// maxEdgeNum returns the highest numeric suffix among E-prefixed edge
// IDs.
func maxEdgeNum(edges []models.Edge) int {
	max := 0
	for _, edge := range edges {
		if !strings.HasPrefix(edge.EdgeID, "E") {
			continue
		}
		if n, err := strconv.Atoi(edge.EdgeID[1:]); err == nil && n > max {
			max = n
		}
	}
	return max
}
