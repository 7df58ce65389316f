package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/opkey-ai/reasoning-engine/internal/llm"
	"github.com/opkey-ai/reasoning-engine/internal/observability"
	"github.com/opkey-ai/reasoning-engine/internal/prompts"
	"github.com/opkey-ai/reasoning-engine/internal/search"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

const (
	// DefaultMaxParallel bounds concurrent per-block LLM calls.
	DefaultMaxParallel = 5

	blockValidationTemperature = 0.3
)

// Action codes handled by the custom block templates rather than the
// task block catalog.
var customActionCodes = map[string]bool{
	"HumanDependent":  true,
	"HumanDependable": true,
	"AskWilfred":      true,
}

var (
	edgesToAddPattern    = regexp.MustCompile(`(?s)Add:\s*(\[.*?\])`)
	edgesToRemovePattern = regexp.MustCompile(`(?s)Remove:\s*(\[.*?\])`)
	validationFence      = regexp.MustCompile("```json\\s*([\\s\\S]*?)\\s*```")
)

// edgeRef is an edge endpoint pair the validator LLM asked to add or
// remove.
type edgeRef struct {
	From string `json:"From"`
	To   string `json:"To"`
}

// LLMBlockValidator checks every non-Start block against the task block
// catalog with a validator LLM, in parallel. Matched blocks are
// rewritten onto catalog templates; AskWilfred and HumanDependent
// blocks onto their custom templates. Per-block failures degrade to
// warnings so one bad block never sinks the workflow.
type LLMBlockValidator struct {
	provider    llm.Provider
	model       string
	search      search.TaskBlockSearcher
	maxParallel int
	logger      *observability.Logger

	// now is swapped in tests.
	now func() time.Time
}

// NewLLMBlockValidator creates the stage. maxParallel <= 0 uses the
// default.
func NewLLMBlockValidator(provider llm.Provider, model string, searcher search.TaskBlockSearcher, maxParallel int, logger *observability.Logger) *LLMBlockValidator {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	return &LLMBlockValidator{
		provider:    provider,
		model:       model,
		search:      searcher,
		maxParallel: maxParallel,
		logger:      logger,
		now:         time.Now,
	}
}

func (v *LLMBlockValidator) Name() string   { return "llm_block" }
func (v *LLMBlockValidator) Blocking() bool { return true }

type blockOutcome struct {
	block         models.Block
	edgesToAdd    []edgeRef
	edgesToRemove []edgeRef
	err           error
}

// Validate runs all blocks through the validator LLM and assembles a
// corrected workflow with post-processed edges.
func (v *LLMBlockValidator) Validate(ctx context.Context, workflow *models.Workflow, vctx *Context) (*Result, error) {
	result := &Result{}
	if len(workflow.Blocks) == 0 {
		return result, nil
	}

	blocksJSON, err := json.MarshalIndent(workflow.Blocks, "", "  ")
	if err != nil {
		return nil, err
	}
	edgesJSON, err := json.MarshalIndent(workflow.Edges, "", "  ")
	if err != nil {
		return nil, err
	}

	outcomes := make([]blockOutcome, len(workflow.Blocks))
	sem := make(chan struct{}, v.maxParallel)
	var wg sync.WaitGroup

	for i := range workflow.Blocks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = v.validateBlock(ctx, workflow.Blocks[i], string(blocksJSON), string(edgesJSON), vctx)
		}(i)
	}
	wg.Wait()

	correctedBlocks := make([]models.Block, len(workflow.Blocks))
	var edgesToAdd, edgesToRemove []edgeRef

	for i, outcome := range outcomes {
		if outcome.err != nil {
			if v.logger != nil {
				v.logger.Error(ctx, "block validation error",
					"block_id", workflow.Blocks[i].BlockID,
					"error", outcome.err,
				)
			}
			result.AddWarning(fmt.Sprintf("Block validation failed: %v", outcome.err))
			correctedBlocks[i] = workflow.Blocks[i]
			continue
		}
		correctedBlocks[i] = outcome.block
		edgesToAdd = append(edgesToAdd, outcome.edgesToAdd...)
		edgesToRemove = append(edgesToRemove, outcome.edgesToRemove...)
	}

	result.Corrected = &models.Workflow{
		Blocks:  correctedBlocks,
		Edges:   postProcessEdges(workflow.Edges, edgesToAdd, edgesToRemove),
		JobName: workflow.JobName,
	}
	return result, nil
}

func (v *LLMBlockValidator) validateBlock(ctx context.Context, block models.Block, blocksJSON, edgesJSON string, vctx *Context) (out blockOutcome) {
	out.block = block
	defer func() {
		if r := recover(); r != nil {
			out = blockOutcome{block: block, err: fmt.Errorf("block validator panicked: %v", r)}
		}
	}()

	if block.ActionCode == "Start" {
		return out
	}

	catalog := v.searchTaskBlocks(ctx, block)
	exact := matchByActionCode(catalog, block.ActionCode)

	blockJSON, err := json.MarshalIndent(block, "", "  ")
	if err != nil {
		out.err = err
		return out
	}
	catalogJSON, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		out.err = err
		return out
	}

	prompt := prompts.ValidationPrompt(string(blockJSON), string(catalogJSON), blocksJSON, vctx.UserQuery, edgesJSON)
	resp, err := llm.Generate(ctx, v.provider, &llm.CompletionRequest{
		Model: v.model,
		Messages: []models.ChatMessage{
			{Role: models.RoleUser, Content: prompt},
		},
		Temperature: blockValidationTemperature,
	})
	if err != nil {
		out.err = err
		return out
	}

	parsed := parseValidationResponse(resp.Content, block)
	out.edgesToAdd = parsed.edgesToAdd
	out.edgesToRemove = parsed.edgesToRemove

	if parsed.modified {
		corrected := parsed.block
		if tb := matchByActionCode(catalog, corrected.ActionCode); tb != nil {
			out.block = v.processTaskBlock(corrected, *tb, block.BlockID)
		} else if customActionCodes[corrected.ActionCode] {
			out.block = processCustomBlock(corrected, block.BlockID)
		} else if exact != nil {
			// The model proposed an unknown ActionCode. Fall back to the
			// catalog entry matching the original block.
			out.block = v.processTaskBlock(block, *exact, block.BlockID)
		} else {
			out.block = ensureBlockStructure(corrected, block.BlockID)
		}
	} else {
		if customActionCodes[block.ActionCode] {
			out.block = processCustomBlock(block, block.BlockID)
		} else if exact != nil {
			out.block = v.processTaskBlock(block, *exact, block.BlockID)
		}
	}

	vctx.EmitProgress(ctx, "llm_validation", 0, fmt.Sprintf("Validated block %s: %s", block.BlockID, block.Name), nil)
	return out
}

func (v *LLMBlockValidator) searchTaskBlocks(ctx context.Context, block models.Block) []search.TaskBlockResult {
	query := block.Name
	if query == "" {
		query = block.ActionCode
	}
	results, err := v.search.SearchTaskBlocks(ctx, query)
	if err != nil {
		if v.logger != nil {
			v.logger.Warn(ctx, "task block search failed",
				"block_id", block.BlockID,
				"error", err,
			)
		}
		return nil
	}
	return results
}

func matchByActionCode(catalog []search.TaskBlockResult, actionCode string) *search.TaskBlockResult {
	if actionCode == "" {
		return nil
	}
	for i := range catalog {
		if catalog[i].ActionCode == actionCode {
			return &catalog[i]
		}
	}
	return nil
}

type parsedValidation struct {
	modified      bool
	block         models.Block
	edgesToAdd    []edgeRef
	edgesToRemove []edgeRef
}

// parseValidationResponse extracts edge changes and an optionally
// corrected block from the validator LLM's reply. Edge changes are
// honored even when the block itself is unchanged.
func parseValidationResponse(response string, original models.Block) parsedValidation {
	var parsed parsedValidation

	if m := edgesToAddPattern.FindStringSubmatch(response); m != nil {
		var refs []edgeRef
		if err := json.Unmarshal([]byte(m[1]), &refs); err == nil {
			parsed.edgesToAdd = refs
		}
	}
	if m := edgesToRemovePattern.FindStringSubmatch(response); m != nil {
		var refs []edgeRef
		if err := json.Unmarshal([]byte(m[1]), &refs); err == nil {
			parsed.edgesToRemove = refs
		}
	}

	if strings.Contains(response, prompts.NoMatchCustomBlock) || strings.Contains(response, prompts.NoChangesNeeded) {
		return parsed
	}

	fences := validationFence.FindAllStringSubmatch(response, -1)
	if len(fences) == 0 {
		return parsed
	}

	var corrected models.Block
	if err := json.Unmarshal([]byte(fences[len(fences)-1][1]), &corrected); err != nil {
		return parsed
	}
	if !reflect.DeepEqual(corrected, original) {
		parsed.modified = true
		parsed.block = corrected
	}
	return parsed
}

// processTaskBlock rewrites a block onto its catalog entry: the catalog
// dictates input and output names, the planner's values survive where
// names line up.
func (v *LLMBlockValidator) processTaskBlock(block models.Block, tb search.TaskBlockResult, blockID string) models.Block {
	name := block.Name
	if name == "" {
		name = tb.Name
	}

	inputs := make([]models.Input, 0, len(tb.Inputs))
	for _, inputName := range tb.Inputs {
		mapped := models.Input{Name: inputName}
		for _, orig := range block.Inputs {
			if orig.Name == inputName {
				mapped.StaticValue = orig.StaticValue
				mapped.ReferencedOutputVariableName = orig.ReferencedOutputVariableName
				break
			}
		}
		inputs = append(inputs, mapped)
	}

	outputs := make([]models.Output, 0, len(tb.Outputs))
	for _, outputName := range tb.Outputs {
		variable := ""
		for _, orig := range block.Outputs {
			if orig.Name == outputName {
				variable = orig.OutputVariableName
				break
			}
		}
		if variable == "" && len(block.Outputs) > 0 {
			variable = block.Outputs[0].OutputVariableName
		}
		if variable == "" {
			variable = models.OutputVariableName(blockID, outputName)
		}
		outputs = append(outputs, models.Output{
			Name:               outputName,
			OutputVariableName: variable,
		})
	}

	result := models.Block{
		BlockID:    blockID,
		Name:       name,
		ActionCode: tb.ActionCode,
		Inputs:     inputs,
		Outputs:    outputs,
	}

	if result.ActionCode == "CreateDiscoverySnapshot" {
		result = ApplyDiscoveryDefaults(result, v.now())
	}
	return result
}

// processCustomBlock rewrites an AI or manual block onto its template,
// preserving the planner's input values and outputs.
func processCustomBlock(block models.Block, blockID string) models.Block {
	inputValue := func(name string) string {
		for _, in := range block.Inputs {
			if in.Name == name {
				return in.StaticValue
			}
		}
		return ""
	}
	inputRef := func(name string) string {
		for _, in := range block.Inputs {
			if in.Name == name {
				return in.ReferencedOutputVariableName
			}
		}
		return ""
	}

	var template models.Block
	switch block.ActionCode {
	case "HumanDependent", "HumanDependable":
		template = ManualBlockTemplate.CreateBlock(blockID)
		template.ActionCode = "HumanDependent"
		if block.Name != "" {
			template.Name = block.Name
		} else {
			template.Name = "Manual Task"
		}
		template.Inputs = []models.Input{
			{Name: "Task Recipients", StaticValue: inputValue("Task Recipients")},
			{Name: "Task", StaticValue: inputValue("Task")},
			{Name: "Attachment", StaticValue: inputValue("Attachment")},
		}
	case "AskWilfred":
		template = AIBlockTemplate.CreateBlock(blockID)
		if block.Name != "" {
			template.Name = block.Name
		}
		template.Inputs = []models.Input{
			{Name: "Prompt", StaticValue: inputValue("Prompt")},
			{
				Name:                         "Attachment",
				StaticValue:                  inputValue("Attachment"),
				ReferencedOutputVariableName: inputRef("Attachment"),
			},
			{
				Name:                         "Output Format",
				StaticValue:                  inputValue("Output Format"),
				ReferencedOutputVariableName: inputRef("Output Format"),
			},
		}
	default:
		return ensureBlockStructure(block, blockID)
	}

	outputs := make([]models.Output, 0, len(block.Outputs))
	for _, out := range block.Outputs {
		name := out.Name
		if name == "" {
			name = "Output"
		}
		variable := out.OutputVariableName
		if variable == "" {
			variable = models.OutputVariableName(blockID, "Output")
		}
		outputs = append(outputs, models.Output{
			Name:               name,
			OutputVariableName: variable,
			Description:        out.Description,
		})
	}
	if len(outputs) == 0 {
		outputs = []models.Output{{Name: "Output", OutputVariableName: models.OutputVariableName(blockID, "Output")}}
	}
	template.Outputs = outputs
	return template
}

// ensureBlockStructure normalizes a block the LLM produced outside any
// template: missing names and output variables get defaults, a missing
// ActionCode falls back to an AI block.
func ensureBlockStructure(block models.Block, blockID string) models.Block {
	if block.ActionCode == "" {
		return AIBlockTemplate.CreateBlock(blockID)
	}

	block.BlockID = blockID
	if block.Name == "" {
		block.Name = "Unnamed Block"
	}
	for i := range block.Inputs {
		if block.Inputs[i].Name == "" {
			block.Inputs[i].Name = "Input"
		}
	}
	for i := range block.Outputs {
		if block.Outputs[i].Name == "" {
			block.Outputs[i].Name = "Output"
		}
		if block.Outputs[i].OutputVariableName == "" {
			block.Outputs[i].OutputVariableName = models.OutputVariableName(blockID, "Output")
		}
	}
	return block
}

// postProcessEdges applies the LLM's edge additions and removals on top
// of the original edges, dropping self-loops and duplicates. Added
// edges get fresh sequential IDs.
func postProcessEdges(original []models.Edge, toAdd, toRemove []edgeRef) []models.Edge {
	type pair struct{ from, to string }

	removeSet := make(map[pair]bool, len(toRemove))
	for _, ref := range toRemove {
		removeSet[pair{ref.From, ref.To}] = true
	}

	edges := make([]models.Edge, 0, len(original)+len(toAdd))
	existing := make(map[pair]bool, len(original))
	for _, edge := range original {
		if edge.From == edge.To {
			continue
		}
		p := pair{edge.From, edge.To}
		if removeSet[p] {
			continue
		}
		edges = append(edges, edge)
		existing[p] = true
	}

	next := maxEdgeNum(edges)
	for _, ref := range toAdd {
		p := pair{ref.From, ref.To}
		if existing[p] || ref.From == ref.To {
			continue
		}
		next++
		edges = append(edges, models.Edge{
			EdgeID: fmt.Sprintf("E%03d", next),
			From:   ref.From,
			To:     ref.To,
		})
		existing[p] = true
	}
	return edges
}
