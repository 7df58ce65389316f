// Package validation implements the multi-stage workflow validation
// pipeline: a deterministic structural pass, a graph connectivity repair
// pass, and a parallel per-block LLM pass against the task block catalog.
package validation

import (
	"context"
	"time"

	"github.com/opkey-ai/reasoning-engine/internal/engine"
	"github.com/opkey-ai/reasoning-engine/internal/observability"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

// Context carries per-conversation state through the pipeline stages.
type Context struct {
	ConversationID string
	MessageID      string
	UserQuery      string
	Emitter        engine.EventEmitter
}

func (c *Context) emitter() engine.EventEmitter {
	if c == nil || c.Emitter == nil {
		return engine.NopEmitter{}
	}
	return c.Emitter
}

// EmitProgress publishes a validator progress update for the client UI.
func (c *Context) EmitProgress(ctx context.Context, stage string, progress float64, message string, errors []string) {
	if errors == nil {
		errors = []string{}
	}
	c.emitter().Emit(ctx, models.Event{
		Event: models.EventValidatorProgress,
		Payload: map[string]any{
			"chat_id":    c.conversationID(),
			"message_id": c.messageID(),
			"stage":      stage,
			"progress":   progress,
			"message":    message,
			"errors":     errors,
		},
	})
}

func (c *Context) conversationID() string {
	if c == nil {
		return ""
	}
	return c.ConversationID
}

func (c *Context) messageID() string {
	if c == nil {
		return ""
	}
	return c.MessageID
}

// Result aggregates findings from one or more stages. Corrected, when
// set, replaces the input workflow for downstream stages.
type Result struct {
	Errors    []string
	Warnings  []string
	Corrected *models.Workflow
}

// Valid reports whether the result carries no errors.
func (r *Result) Valid() bool { return len(r.Errors) == 0 }

// AddError records a validation error.
func (r *Result) AddError(msg string) { r.Errors = append(r.Errors, msg) }

// AddWarning records a non-fatal finding.
func (r *Result) AddWarning(msg string) { r.Warnings = append(r.Warnings, msg) }

// Merge folds another result into this one. A later corrected workflow
// wins.
func (r *Result) Merge(other *Result) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	if other.Corrected != nil {
		r.Corrected = other.Corrected
	}
}

// Stage is one validation pass over a workflow.
type Stage interface {
	// Name identifies the stage in progress events and metrics.
	Name() string

	// Blocking stages stop the pipeline when they produce errors.
	Blocking() bool

	Validate(ctx context.Context, workflow *models.Workflow, vctx *Context) (*Result, error)
}

// Pipeline runs stages in order, threading corrected workflows between
// them.
type Pipeline struct {
	stages  []Stage
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewPipeline creates an empty pipeline. Logger and metrics may be nil.
func NewPipeline(logger *observability.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{logger: logger, metrics: metrics}
}

// Add appends a stage. Returns the pipeline for chaining.
func (p *Pipeline) Add(stage Stage) *Pipeline {
	p.stages = append(p.stages, stage)
	return p
}

// Stages returns the configured stages in run order.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Validate runs every stage. A blocking stage with errors stops the
// pipeline; its combined result is returned without a corrected
// workflow. Otherwise the final result carries the last corrected
// workflow (or the input when no stage corrected anything).
func (p *Pipeline) Validate(ctx context.Context, workflow *models.Workflow, vctx *Context) (*Result, error) {
	combined := &Result{}
	current := workflow

	for _, stage := range p.stages {
		if p.logger != nil {
			p.logger.Info(ctx, "running validation stage",
				"stage", stage.Name(),
				"conversation_id", vctx.conversationID(),
			)
		}

		start := time.Now()
		result, err := stage.Validate(ctx, current, vctx)
		if err != nil {
			if p.metrics != nil {
				p.metrics.RecordValidationStage(stage.Name(), "error", time.Since(start).Seconds())
			}
			return nil, err
		}
		combined.Merge(result)

		status := "ok"
		if !result.Valid() {
			status = "invalid"
		}
		if p.metrics != nil {
			p.metrics.RecordValidationStage(stage.Name(), status, time.Since(start).Seconds())
		}

		if stage.Blocking() && !result.Valid() {
			if p.logger != nil {
				p.logger.Info(ctx, "blocking stage failed, stopping pipeline",
					"stage", stage.Name(),
					"error_count", len(result.Errors),
				)
			}
			return combined, nil
		}

		if result.Corrected != nil {
			current = result.Corrected
		}
	}

	combined.Corrected = current
	return combined, nil
}
