package team

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harun/agentforge/internal/observability"
	"github.com/harun/agentforge/internal/tracing"
	"github.com/harun/agentforge/pkg/events"
	"github.com/harun/agentforge/pkg/workflow"
	"go.opentelemetry.io/otel/attribute"
)

// ErrSchedulerFault marks a run aborted by a failure in scheduling itself
var ErrSchedulerFault = errors.New("scheduler fault")

// RunResult is the outcome of one workflow run
type RunResult struct {
	RunID  string `json:"run_id"`
	Output string `json:"output"`
	// Steps holds one entry per executed step visit, in execution order.
	Steps    []workflow.StepResult `json:"steps"`
	Trace    []events.Event        `json:"trace"`
	Cost     events.CostBreakdown  `json:"cost"`
	Duration time.Duration         `json:"-"`
	Success  bool                  `json:"success"`
	DryRun   bool                  `json:"dry_run,omitempty"`
	Error    string                `json:"error,omitempty"`
	Err      error                 `json:"-"`
}

// JSON renders the result with the duration in seconds
func (r RunResult) JSON() ([]byte, error) {
	type alias RunResult
	return json.MarshalIndent(struct {
		alias
		Duration float64 `json:"duration"`
	}{alias: alias(r), Duration: r.Duration.Seconds()}, "", "  ")
}

// Step returns the last result recorded for stepID
func (r RunResult) Step(stepID string) (workflow.StepResult, bool) {
	for i := len(r.Steps) - 1; i >= 0; i-- {
		if r.Steps[i].StepID == stepID {
			return r.Steps[i], true
		}
	}
	return workflow.StepResult{}, false
}

// Run executes the workflow on task. Dry run follows team.control.dry_run.
func (t *Team) Run(ctx context.Context, task string) RunResult {
	return t.run(ctx, task, t.cfg.Team.Control.DryRun)
}

// RunDryRun executes the workflow with every tool call simulated
func (t *Team) RunDryRun(ctx context.Context, task string) RunResult {
	return t.run(ctx, task, true)
}

// RunAsync runs in a new goroutine. The channel yields exactly one result.
func (t *Team) RunAsync(ctx context.Context, task string) <-chan RunResult {
	ch := make(chan RunResult, 1)
	go func() {
		defer close(ch)
		ch <- t.Run(ctx, task)
	}()
	return ch
}

func (t *Team) run(ctx context.Context, task string, dryRun bool) RunResult {
	start := time.Now()
	ctx = tracing.NewRunContext(ctx)
	runID := tracing.GetRunID(ctx)
	logger := tracing.LoggerFromContext(ctx, t.logger)

	tracer := events.NewTracer(events.WithLogger(t.logger))
	tracer.Subscribe(events.LogSubscriber(logger))
	for _, fn := range t.subscribers {
		tracer.Subscribe(fn)
	}
	if t.hooks != nil {
		tracer.Subscribe(t.hooks.Subscriber(ctx))
	}
	tracer.Start()

	ctx, span := tracing.StartSpan(ctx, "agentforge.team", "workflow.run",
		attribute.String("team.name", t.cfg.Team.Name),
		attribute.String("run.id", runID),
		attribute.Bool("run.dry_run", dryRun),
	)
	defer span.End()

	logger.Info().Bool("dry_run", dryRun).Msg("Workflow started")
	tracer.Emit(events.Event{
		Kind: events.KindWorkflowStart,
		Data: map[string]interface{}{
			"team":    t.cfg.Team.Name,
			"task":    task,
			"run_id":  runID,
			"dry_run": dryRun,
			"steps":   t.cfg.StepCount(),
		},
	})

	steps, err := t.execute(ctx, task, dryRun, tracer)

	res := RunResult{
		RunID:   runID,
		Steps:   steps,
		Success: err == nil,
		DryRun:  dryRun,
		Err:     err,
	}
	if err != nil {
		res.Error = err.Error()
		tracing.FailSpan(span, err)
		tracer.Emit(events.Event{
			Kind: events.KindError,
			Data: map[string]interface{}{"error": err.Error()},
		})
	} else if len(steps) > 0 {
		res.Output = steps[len(steps)-1].Output
	}
	for _, s := range steps {
		if !s.Success {
			res.Success = false
		}
	}

	res.Cost = tracer.CostBreakdown()
	res.Duration = time.Since(start)

	tracer.Emit(events.Event{
		Kind: events.KindWorkflowEnd,
		Data: map[string]interface{}{
			"success":      res.Success,
			"steps_run":    len(steps),
			"total_cost":   res.Cost.TotalCost,
			"total_tokens": res.Cost.TotalTokens.Total(),
		},
		Cost:       res.Cost.TotalCost,
		DurationMs: float64(res.Duration.Microseconds()) / 1000,
	})
	res.Trace = tracer.Timeline()

	if path := t.cfg.Team.Observe.TraceFile; path != "" {
		if err := tracer.ExportJSON(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to write trace file")
		}
	}

	t.hooks.Wait()

	observability.RecordWorkflowRun(res.Duration, res.Success)
	logger.Info().
		Bool("success", res.Success).
		Int("steps", len(steps)).
		Float64("cost", res.Cost.TotalCost).
		Dur("duration", res.Duration).
		Msg("Workflow finished")

	return res
}

// execute runs the scheduler. A panic escaping it is a scheduler fault and
// discards any partial results.
func (t *Team) execute(ctx context.Context, task string, dryRun bool, sink events.Sink) (results []workflow.StepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = fmt.Errorf("%w: %v", ErrSchedulerFault, r)
		}
	}()

	executors := make(map[string]workflow.Executor, len(t.agents))
	for name, a := range t.agents {
		executors[name] = a
	}

	opts := []workflow.Option{
		workflow.WithSink(sink),
		workflow.WithLogger(t.logger),
	}
	if t.approver != nil {
		opts = append(opts, workflow.WithApprover(t.approver))
	}

	sched := workflow.NewScheduler(t.workflow, executors, t.router, opts...)
	return sched.Execute(ctx, task, dryRun)
}
