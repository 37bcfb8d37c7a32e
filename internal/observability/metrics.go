package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	workflowRunsTotal   *prometheus.CounterVec
	workflowRunDuration prometheus.Histogram
	stepRunsTotal       *prometheus.CounterVec
	stepDuration        prometheus.Histogram

	agentRunsTotal  *prometheus.CounterVec
	agentIterations prometheus.Histogram

	modelCallsTotal    *prometheus.CounterVec
	modelCallDuration  *prometheus.HistogramVec
	modelTokensTotal   *prometheus.CounterVec
	modelCostUSDTotal  *prometheus.CounterVec
	modelRetriesTotal  *prometheus.CounterVec
	modelFallbackTotal *prometheus.CounterVec

	toolExecutionsTotal   *prometheus.CounterVec
	toolDuration          *prometheus.HistogramVec
	guardrailDenialsTotal *prometheus.CounterVec

	memoryOpsTotal *prometheus.CounterVec
	approvalsTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			workflowRunsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentforge_workflow_runs_total",
					Help: "Total workflow runs by status.",
				},
				[]string{"status"},
			),
			workflowRunDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agentforge_workflow_run_duration_seconds",
					Help:    "Workflow run duration in seconds.",
					Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
				},
			),
			stepRunsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentforge_step_runs_total",
					Help: "Total workflow step executions by status.",
				},
				[]string{"status"},
			),
			stepDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agentforge_step_duration_seconds",
					Help:    "Workflow step duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			agentRunsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentforge_agent_runs_total",
					Help: "Total agent loop executions by agent and status.",
				},
				[]string{"agent", "status"},
			),
			agentIterations: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agentforge_agent_iterations",
					Help:    "Reasoning iterations used per agent execution.",
					Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20},
				},
			),
			modelCallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentforge_model_calls_total",
					Help: "Total model call attempts by model and status.",
				},
				[]string{"model", "status"},
			),
			modelCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agentforge_model_call_duration_seconds",
					Help:    "Model call latency in seconds by model.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"model"},
			),
			modelTokensTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentforge_model_tokens_total",
					Help: "Total tokens by model and direction (input/output).",
				},
				[]string{"model", "direction"},
			),
			modelCostUSDTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentforge_model_cost_usd_total",
					Help: "Total estimated model cost in USD by model.",
				},
				[]string{"model"},
			),
			modelRetriesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentforge_model_retries_total",
					Help: "Total backoff retries by model.",
				},
				[]string{"model"},
			),
			modelFallbackTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentforge_model_fallbacks_total",
					Help: "Total times a model was abandoned for the next candidate.",
				},
				[]string{"model"},
			),
			toolExecutionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentforge_tool_executions_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agentforge_tool_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			guardrailDenialsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentforge_guardrail_denials_total",
					Help: "Total tool calls denied by guardrails by tool.",
				},
				[]string{"tool"},
			),
			memoryOpsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentforge_memory_ops_total",
					Help: "Total memory operations by op and status.",
				},
				[]string{"op", "status"},
			),
			approvalsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentforge_approvals_total",
					Help: "Total approval gate decisions.",
				},
				[]string{"decision"},
			),
		}

		prometheus.MustRegister(
			m.workflowRunsTotal,
			m.workflowRunDuration,
			m.stepRunsTotal,
			m.stepDuration,
			m.agentRunsTotal,
			m.agentIterations,
			m.modelCallsTotal,
			m.modelCallDuration,
			m.modelTokensTotal,
			m.modelCostUSDTotal,
			m.modelRetriesTotal,
			m.modelFallbackTotal,
			m.toolExecutionsTotal,
			m.toolDuration,
			m.guardrailDenialsTotal,
			m.memoryOpsTotal,
			m.approvalsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordWorkflowRun(duration time.Duration, success bool) {
	m := getMetrics()
	m.workflowRunsTotal.WithLabelValues(statusLabel(success)).Inc()
	m.workflowRunDuration.Observe(duration.Seconds())
}

// RecordStepRun counts one step outcome. status is success, error or skipped.
func RecordStepRun(status string, duration time.Duration) {
	m := getMetrics()
	m.stepRunsTotal.WithLabelValues(status).Inc()
	if status != "skipped" {
		m.stepDuration.Observe(duration.Seconds())
	}
}

func RecordAgentRun(agent string, iterations int, success bool) {
	m := getMetrics()
	m.agentRunsTotal.WithLabelValues(agent, statusLabel(success)).Inc()
	m.agentIterations.Observe(float64(iterations))
}

func RecordModelCall(model string, duration time.Duration, inputTokens, outputTokens int, cost float64, success bool) {
	m := getMetrics()
	m.modelCallsTotal.WithLabelValues(model, statusLabel(success)).Inc()
	m.modelCallDuration.WithLabelValues(model).Observe(duration.Seconds())
	if !success {
		return
	}
	m.modelTokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.modelTokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	if cost > 0 {
		m.modelCostUSDTotal.WithLabelValues(model).Add(cost)
	}
}

func RecordModelRetry(model string) {
	getMetrics().modelRetriesTotal.WithLabelValues(model).Inc()
}

func RecordModelFallback(model string) {
	getMetrics().modelFallbackTotal.WithLabelValues(model).Inc()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionsTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordGuardrailDenial(tool string) {
	getMetrics().guardrailDenialsTotal.WithLabelValues(tool).Inc()
}

func RecordMemoryOp(op string, success bool) {
	getMetrics().memoryOpsTotal.WithLabelValues(op, statusLabel(success)).Inc()
}

// RecordApproval counts an approval decision: approved, rejected or edited.
func RecordApproval(decision string) {
	getMetrics().approvalsTotal.WithLabelValues(decision).Inc()
}
