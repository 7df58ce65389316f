package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the central Prometheus metric set for the engine.
//
// Tracked concerns:
//   - LLM request performance and token consumption per model role
//   - Tool execution patterns and latencies
//   - Validation pipeline stage outcomes
//   - Active conversations and websocket connections
//   - Error rates by component and mapped error code
type Metrics struct {
	// LLMRequestDuration measures LLM call latency in seconds.
	// Labels: role (planner|validator), model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests.
	// Labels: role, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: role, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ValidationStageCounter counts validation stage runs.
	// Labels: stage, status (passed|failed)
	ValidationStageCounter *prometheus.CounterVec

	// ValidationStageDuration measures per-stage validation latency.
	// Labels: stage
	ValidationStageDuration *prometheus.HistogramVec

	// ActiveConversations gauges conversations currently being processed.
	ActiveConversations prometheus.Gauge

	// ActiveConnections gauges live websocket connections.
	ActiveConnections prometheus.Gauge

	// ConversationCounter counts conversation outcomes.
	// Labels: outcome (completed|clarification|error|ended)
	ConversationCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by component and mapped code.
	// Labels: component (planner|validation|store|gateway|tool), code
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the default
// registry. Call once at startup; metrics surface on /metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reasoning_engine_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"role", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reasoning_engine_llm_requests_total",
				Help: "Total number of LLM requests by role, model, and status",
			},
			[]string{"role", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reasoning_engine_llm_tokens_total",
				Help: "Total number of tokens used by role, model, and type",
			},
			[]string{"role", "model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reasoning_engine_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reasoning_engine_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ValidationStageCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reasoning_engine_validation_stages_total",
				Help: "Total number of validation stage runs by stage and status",
			},
			[]string{"stage", "status"},
		),

		ValidationStageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reasoning_engine_validation_stage_duration_seconds",
				Help:    "Duration of validation stages in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"stage"},
		),

		ActiveConversations: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "reasoning_engine_active_conversations",
				Help: "Current number of conversations being processed",
			},
		),

		ActiveConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "reasoning_engine_active_connections",
				Help: "Current number of live websocket connections",
			},
		),

		ConversationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reasoning_engine_conversations_total",
				Help: "Total number of conversation outcomes",
			},
			[]string{"outcome"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reasoning_engine_errors_total",
				Help: "Total number of errors by component and mapped code",
			},
			[]string{"component", "code"},
		),
	}
}

// RecordLLMRequest records metrics for one LLM call.
func (m *Metrics) RecordLLMRequest(role, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(role, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(role, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(role, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(role, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records metrics for one tool execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordValidationStage records one validation stage run.
func (m *Metrics) RecordValidationStage(stage, status string, durationSeconds float64) {
	m.ValidationStageCounter.WithLabelValues(stage, status).Inc()
	m.ValidationStageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordError increments the error counter for a component and code.
func (m *Metrics) RecordError(component, code string) {
	m.ErrorCounter.WithLabelValues(component, code).Inc()
}

// ConversationStarted increments the active conversation gauge.
func (m *Metrics) ConversationStarted() {
	m.ActiveConversations.Inc()
}

// ConversationFinished decrements the gauge and records the outcome.
func (m *Metrics) ConversationFinished(outcome string) {
	m.ActiveConversations.Dec()
	m.ConversationCounter.WithLabelValues(outcome).Inc()
}

// ConnectionOpened increments the websocket connection gauge.
func (m *Metrics) ConnectionOpened() {
	m.ActiveConnections.Inc()
}

// ConnectionClosed decrements the websocket connection gauge.
func (m *Metrics) ConnectionClosed() {
	m.ActiveConnections.Dec()
}
