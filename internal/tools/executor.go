package tools

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

// ExecutorConfig bounds parallel tool execution.
type ExecutorConfig struct {
	// MaxConcurrency limits parallel executions. Default 5.
	MaxConcurrency int

	// Timeout per tool call. Default 30s.
	Timeout time.Duration
}

// DefaultExecutorConfig returns the default executor configuration.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxConcurrency: 5,
		Timeout:        30 * time.Second,
	}
}

// ExecutionResult holds the result of a single tool execution.
type ExecutionResult struct {
	ToolCallID string
	ToolName   string
	Result     *Result
	Err        error
	Duration   time.Duration
}

// Executor runs tool calls in parallel with a semaphore for
// backpressure, a per-call timeout, and panic recovery.
type Executor struct {
	registry *Registry
	config   *ExecutorConfig
	sem      chan struct{}
}

// NewExecutor creates an executor over the registry. A nil config uses
// defaults.
func NewExecutor(registry *Registry, config *ExecutorConfig) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Executor{
		registry: registry,
		config:   config,
		sem:      make(chan struct{}, config.MaxConcurrency),
	}
}

// ExecuteAll runs the calls in parallel. Results keep the input order.
func (e *Executor) ExecuteAll(ctx context.Context, calls []models.ToolCall) []*ExecutionResult {
	if len(calls) == 0 {
		return nil
	}

	results := make([]*ExecutionResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()
			results[idx] = e.Execute(ctx, tc)
		}(i, call)
	}
	wg.Wait()
	return results
}

// Execute runs one call, blocking on the semaphore first.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall) *ExecutionResult {
	start := time.Now()
	result := &ExecutionResult{ToolCallID: call.ID, ToolName: call.Name}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		result.Err = ctx.Err()
		result.Duration = time.Since(start)
		return result
	}

	execCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool %s panicked: %v\n%s", call.Name, r, debug.Stack())}
			}
		}()
		res, err := e.registry.Execute(execCtx, call.Name, call.Arguments)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		result.Result = out.result
		result.Err = out.err
	case <-execCtx.Done():
		if ctx.Err() != nil {
			result.Err = ctx.Err()
		} else {
			result.Err = fmt.Errorf("tool %s timed out after %s", call.Name, e.config.Timeout)
		}
	}
	result.Duration = time.Since(start)
	return result
}

// ResultsToMessages converts execution results into tool-role messages
// for the conversation history. Failures become `{"error": ...}` results
// so the model can react instead of the loop aborting.
func ResultsToMessages(results []*ExecutionResult) []models.ChatMessage {
	messages := make([]models.ChatMessage, 0, len(results))
	for _, r := range results {
		content := ""
		switch {
		case r.Err != nil:
			content = fmt.Sprintf(`{"error": %q}`, r.Err.Error())
		case r.Result != nil && r.Result.IsError:
			content = fmt.Sprintf(`{"error": %q}`, r.Result.Content)
		case r.Result != nil:
			content = r.Result.Content
		}
		messages = append(messages, models.ChatMessage{
			Role:       models.RoleTool,
			ToolCallID: r.ToolCallID,
			Name:       r.ToolName,
			Content:    content,
		})
	}
	return messages
}
