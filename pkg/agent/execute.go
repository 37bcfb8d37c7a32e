package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/agentforge/internal/observability"
	"github.com/harun/agentforge/internal/tracing"
	"github.com/harun/agentforge/pkg/control"
	"github.com/harun/agentforge/pkg/events"
	"github.com/harun/agentforge/pkg/llm"
	"github.com/harun/agentforge/pkg/toolexecutor"
	"go.opentelemetry.io/otel/attribute"
)

// RunOptions are the per-run collaborators of Execute
type RunOptions struct {
	Router llm.Completer
	Sink   events.Sink
	// DryRun simulates every tool call instead of executing it.
	DryRun bool
	// StepID tags emitted events.
	StepID string
}

// run holds the mutable state of one Execute call.
type run struct {
	a        *Agent
	opts     RunOptions
	task     string
	start    time.Time
	messages []llm.Message
	result   Result
}

// Execute runs the reasoning loop on task. It always returns a Result.
func (a *Agent) Execute(ctx context.Context, task string, opts RunOptions) Result {
	if opts.Sink == nil {
		opts.Sink = events.Discard
	}

	ctx = tracing.WithAgent(ctx, a.cfg.Name)
	ctx, span := tracing.StartSpan(ctx, "agentforge.agent", "agent.execute",
		attribute.Int("agent.max_iterations", a.cfg.Control.MaxIterations),
		attribute.Bool("agent.dry_run", opts.DryRun),
	)
	defer span.End()

	r := &run{a: a, opts: opts, task: task, start: time.Now()}
	res := r.loop(ctx)
	res.Duration = time.Since(r.start)

	if !res.Success && res.Err != nil {
		tracing.FailSpan(span, res.Err)
	}
	span.SetAttributes(attribute.Int("agent.iterations", res.Iterations))
	observability.RecordAgentRun(a.cfg.Name, res.Iterations, res.Success)

	return res
}

func (r *run) emit(e events.Event) {
	e.StepID = r.opts.StepID
	e.AgentName = r.a.cfg.Name
	r.opts.Sink.Emit(e)
}

func (r *run) loop(ctx context.Context) Result {
	a := r.a
	logger := tracing.LoggerFromContext(ctx, a.logger)

	if r.opts.Router == nil {
		res := Failed(fmt.Errorf("agent %s: no model router", a.cfg.Name))
		return res
	}

	r.messages = []llm.Message{
		{Role: llm.RoleSystem, Content: a.SystemPrompt(r.recall(ctx))},
		{Role: llm.RoleUser, Content: r.task},
	}

	var toolSchemas []llm.ToolSchema
	if a.tools != nil {
		toolSchemas = a.tools.Schemas(a.allowedTools())
	}
	maxIterations := a.cfg.Control.MaxIterations
	checker := a.confidence()

	for iteration := 0; iteration < maxIterations; iteration++ {
		r.result.Iterations = iteration + 1

		model := a.cfg.Model
		r.emit(events.Event{
			Kind: events.KindAgentThinking,
			Data: map[string]interface{}{"iteration": iteration + 1, "model": model},
		})

		resp, err := a.callRouter(ctx, r.opts.Router, r.messages, toolSchemas)
		if err != nil {
			logger.Warn().Err(err).Int("iteration", iteration+1).Msg("Model call failed")
			r.emit(events.Event{
				Kind: events.KindError,
				Data: map[string]interface{}{"error": err.Error()},
			})
			r.result.Success = false
			r.result.Error = err.Error()
			r.result.Err = err
			return r.result
		}

		r.result.ModelUsed = resp.Model
		r.result.Usage = r.result.Usage.Add(resp.Usage)
		r.result.Cost += resp.Cost

		r.emit(events.Event{
			Kind: events.KindAgentResponse,
			Data: map[string]interface{}{
				"model":           resp.Model,
				"has_tool_calls":  len(resp.ToolCalls) > 0,
				"content_preview": truncate(resp.Content, 200),
			},
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			Cost:         resp.Cost,
			DurationMs:   float64(resp.Latency.Microseconds()) / 1000,
		})

		if len(resp.ToolCalls) > 0 {
			r.messages = append(r.messages, llm.Message{
				Role:      llm.RoleAssistant,
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			})
			for _, tc := range resp.ToolCalls {
				r.handleToolCall(ctx, tc)
			}
			continue
		}

		output := resp.Content

		if checker.Threshold > 0 {
			score := checker.Check(output)
			r.emit(events.Event{
				Kind: events.KindAgentResponse,
				Data: map[string]interface{}{
					"confidence_score": score,
					"threshold":        checker.Threshold,
				},
			})
			if score < checker.Threshold && iteration < maxIterations-1 {
				logger.Debug().Float64("score", score).Msg("Low confidence answer, asking for elaboration")
				r.messages = append(r.messages,
					llm.Message{Role: llm.RoleAssistant, Content: output},
					llm.Message{Role: llm.RoleUser, Content: control.ClarificationPrompt},
				)
				continue
			}
		}

		r.remember(ctx, output)

		r.result.Output = output
		r.result.Success = true
		return r.result
	}

	// out of iterations
	last := r.messages[len(r.messages)-1]
	r.result.Output = last.Content
	r.result.Success = false
	r.result.Err = fmt.Errorf("%w (%d)", ErrMaxIterations, maxIterations)
	r.result.Error = r.result.Err.Error()
	logger.Warn().Int("max_iterations", maxIterations).Msg("Agent exhausted iterations")
	return r.result
}

func (a *Agent) callRouter(ctx context.Context, router llm.Completer, messages []llm.Message, tools []llm.ToolSchema) (*llm.Response, error) {
	// the router may keep the slice; hand it a copy
	history := append([]llm.Message(nil), messages...)
	return router.Complete(ctx, llm.CompletionRequest{
		Messages:    history,
		Model:       a.cfg.Model,
		Fallbacks:   a.cfg.Fallbacks,
		Tools:       tools,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
}

func (r *run) handleToolCall(ctx context.Context, tc llm.ToolCall) {
	a := r.a
	args := tc.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}

	if !toolexecutor.Allowed(tc.Name, a.cfg.Control.AllowedActions, a.cfg.Control.BlockedActions) {
		denial := fmt.Sprintf("Tool '%s' is not allowed by guardrails.", tc.Name)
		observability.RecordGuardrailDenial(tc.Name)
		observability.RecordGuardrailAudit(ctx, tc.Name, a.cfg.Name)
		r.emit(events.Event{
			Kind: events.KindToolResult,
			Data: map[string]interface{}{"tool": tc.Name, "success": false, "denied": true},
		})
		r.messages = append(r.messages, llm.Message{
			Role:       llm.RoleTool,
			Content:    denial,
			ToolCallID: tc.ID,
			Name:       tc.Name,
		})
		return
	}

	r.emit(events.Event{
		Kind: events.KindToolCall,
		Data: map[string]interface{}{"tool": tc.Name, "args": args, "dry_run": r.opts.DryRun},
	})

	start := time.Now()
	record := ToolCallRecord{Name: tc.Name, Arguments: args, DryRun: r.opts.DryRun}

	switch {
	case r.opts.DryRun:
		record.Output = toolexecutor.Simulate(tc.Name, args)
		record.Success = true
	case !a.isBound(tc.Name) || a.tools == nil:
		record.Error = fmt.Sprintf("Tool '%s' not found", tc.Name)
	default:
		res := a.tools.Execute(ctx, tc.Name, args, &toolexecutor.CallOptions{Agent: a.cfg.Name})
		record.Output = res.Output
		record.Success = res.Success
		record.Error = res.Error
	}
	record.Duration = time.Since(start)
	r.result.ToolCalls = append(r.result.ToolCalls, record)

	r.emit(events.Event{
		Kind: events.KindToolResult,
		Data: map[string]interface{}{
			"tool":           tc.Name,
			"success":        record.Success,
			"output_preview": truncate(record.Output, 300),
		},
		DurationMs: float64(record.Duration.Microseconds()) / 1000,
	})

	content := record.Output
	if !record.Success {
		content = "Error: " + record.Error
	}
	r.messages = append(r.messages, llm.Message{
		Role:       llm.RoleTool,
		Content:    content,
		ToolCallID: tc.ID,
		Name:       tc.Name,
	})
}

// recall fetches memories for the task and renders them as a bullet list.
// Failures are reported as events and otherwise ignored.
func (r *run) recall(ctx context.Context) string {
	a := r.a
	if a.memory == nil {
		return ""
	}

	entries, err := a.memory.Recall(ctx, a.cfg.Name, r.task, a.cfg.Control.RecallLimit)
	if err != nil {
		logger := tracing.LoggerFromContext(ctx, a.logger)
		logger.Warn().Err(err).Msg("Memory recall failed")
		r.emit(events.Event{
			Kind: events.KindError,
			Data: map[string]interface{}{"error": fmt.Sprintf("memory recall failed: %v", err)},
		})
		return ""
	}
	if len(entries) == 0 {
		return ""
	}

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = "- " + e.Content
	}
	r.emit(events.Event{
		Kind: events.KindMemoryRecall,
		Data: map[string]interface{}{"memories_count": len(entries)},
	})
	return strings.Join(lines, "\n")
}

// remember stores a summary of the accepted answer. Failures are non-fatal.
func (r *run) remember(ctx context.Context, output string) {
	a := r.a
	if a.memory == nil {
		return
	}

	summary := truncate(output, memoryResultChars)
	content := fmt.Sprintf("Task: %s\nResult: %s", truncate(r.task, memoryTaskChars), summary)
	meta := map[string]interface{}{}
	if r.opts.StepID != "" {
		meta["step_id"] = r.opts.StepID
	}

	if _, err := a.memory.Store(ctx, a.cfg.Name, content, memoryImportance, meta); err != nil {
		logger := tracing.LoggerFromContext(ctx, a.logger)
		logger.Warn().Err(err).Msg("Memory store failed")
		r.emit(events.Event{
			Kind: events.KindError,
			Data: map[string]interface{}{"error": fmt.Sprintf("memory store failed: %v", err)},
		})
		return
	}
	r.emit(events.Event{
		Kind: events.KindMemoryStore,
		Data: map[string]interface{}{"stored_length": len([]rune(summary))},
	})
}
