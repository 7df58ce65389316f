package planner

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/opkey-ai/reasoning-engine/internal/llm"
	"github.com/opkey-ai/reasoning-engine/internal/observability"
	"github.com/opkey-ai/reasoning-engine/internal/prompts"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

const (
	// DefaultJobNameMaxLength bounds generated job names.
	DefaultJobNameMaxLength = 64

	jobNameTemperature = 0.3
)

// actionDescriptions maps action codes to job-name fragments.
var actionDescriptions = map[string]string{
	"Start":                "start",
	"ExportConfigurations": "export-config",
	"ImportData":           "import-data",
	"ValidateData":         "validate",
	"AskWilfred":           "ask-wilfred",
	"TransformData":        "transform",
	"NotifyUser":           "notify",
	"ConditionalBranch":    "condition",
	"LoopBlock":            "loop",
	"EndLoop":              "end-loop",
	"ErrorHandler":         "error-handler",
}

var (
	whitespaceRun    = regexp.MustCompile(`[\s_]+`)
	invalidNameChars = regexp.MustCompile(`[^a-z0-9-]`)
	hyphenRun        = regexp.MustCompile(`-+`)
	leadingJunk      = regexp.MustCompile(`^[^a-z0-9]+`)
	llmOutputFilter  = regexp.MustCompile(`[^a-zA-Z0-9\s-]`)
)

// JobNameGenerator produces human-readable job names for workflows. An
// LLM pass runs first when a provider is set; the deterministic path
// always works.
type JobNameGenerator struct {
	provider  llm.Provider
	model     string
	maxLength int
	logger    *observability.Logger

	// now is swapped in tests.
	now func() time.Time
}

// NewJobNameGenerator creates a generator. provider may be nil.
func NewJobNameGenerator(provider llm.Provider, model string, logger *observability.Logger) *JobNameGenerator {
	return &JobNameGenerator{
		provider:  provider,
		model:     model,
		maxLength: DefaultJobNameMaxLength,
		logger:    logger,
		now:       time.Now,
	}
}

// Generate returns a job name for the workflow. Tries the LLM when a
// provider is configured and a user description exists; otherwise (or on
// any failure) falls back to deterministic extraction.
func (g *JobNameGenerator) Generate(ctx context.Context, workflow *models.Workflow, userDescription string) string {
	if g.provider != nil && userDescription != "" {
		if name := g.generateLLM(ctx, userDescription); name != "" {
			return name
		}
	}
	return g.generateDeterministic(workflow, userDescription, true)
}

func (g *JobNameGenerator) generateLLM(ctx context.Context, userDescription string) string {
	resp, err := llm.Generate(ctx, g.provider, &llm.CompletionRequest{
		Model:  g.model,
		System: prompts.JobNameSystem,
		Messages: []models.ChatMessage{
			{Role: models.RoleUser, Content: userDescription},
		},
		Temperature: jobNameTemperature,
	})
	if err != nil {
		if g.logger != nil {
			g.logger.Warn(ctx, "llm job name generation failed", "error", err)
		}
		return ""
	}

	name := strings.TrimSpace(resp.Content)
	name = strings.Trim(name, "\"'`")
	if name == "" || strings.HasPrefix(strings.ToLower(name), "error") {
		return ""
	}

	name = strings.TrimSpace(llmOutputFilter.ReplaceAllString(name, ""))
	if len(name) > 80 {
		name = name[:77] + "..."
	}
	return name
}

func (g *JobNameGenerator) generateDeterministic(workflow *models.Workflow, userDescription string, includeTimestamp bool) string {
	var parts []string

	if clean := cleanNameText(userDescription); clean != "" {
		if len(clean) > 30 {
			clean = clean[:30]
		}
		parts = append(parts, clean)
	}

	if len(parts) == 0 && workflow != nil {
		actions := extractKeyActions(workflow)
		if len(actions) > 3 {
			actions = actions[:3]
		}
		if len(actions) > 0 {
			parts = append(parts, strings.Join(actions, "-"))
		}
	}

	if len(parts) == 0 {
		parts = append(parts, "workflow")
	}

	if includeTimestamp {
		parts = append(parts, g.now().UTC().Format("20060102-150405"))
	}

	name := sanitizeJobName(strings.Join(parts, "-"))
	if len(name) > g.maxLength {
		name = name[:g.maxLength-3] + "..."
	}
	return name
}

func extractKeyActions(workflow *models.Workflow) []string {
	var actions []string
	seen := make(map[string]bool)
	for _, block := range workflow.Blocks {
		if block.ActionCode == "Start" {
			continue
		}
		desc, ok := actionDescriptions[block.ActionCode]
		if !ok {
			desc = cleanNameText(block.ActionCode)
		}
		if desc != "" && !seen[desc] {
			seen[desc] = true
			actions = append(actions, desc)
		}
	}
	return actions
}

func cleanNameText(text string) string {
	text = strings.ToLower(text)
	text = whitespaceRun.ReplaceAllString(text, "-")
	text = invalidNameChars.ReplaceAllString(text, "")
	text = hyphenRun.ReplaceAllString(text, "-")
	return strings.Trim(text, "-")
}

func sanitizeJobName(name string) string {
	name = leadingJunk.ReplaceAllString(name, "")
	name = invalidNameChars.ReplaceAllString(name, "")
	name = hyphenRun.ReplaceAllString(name, "-")
	if name == "" {
		return "workflow"
	}
	return name
}
