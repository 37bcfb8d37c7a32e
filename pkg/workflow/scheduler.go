package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/agentforge/internal/observability"
	"github.com/harun/agentforge/internal/tracing"
	"github.com/harun/agentforge/pkg/agent"
	"github.com/harun/agentforge/pkg/control"
	"github.com/harun/agentforge/pkg/events"
	"github.com/harun/agentforge/pkg/llm"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Executor runs one agent on one task. *agent.Agent implements it.
type Executor interface {
	Execute(ctx context.Context, task string, opts agent.RunOptions) agent.Result
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithSink sets the event sink. Defaults to events.Discard.
func WithSink(sink events.Sink) Option {
	return func(s *Scheduler) {
		s.sink = sink
	}
}

// WithApprover sets the approval handler. Without one, approval gates are skipped.
func WithApprover(approver control.Approver) Option {
	return func(s *Scheduler) {
		s.approver = approver
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// Scheduler executes a Workflow against a set of agents. It holds no per-run
// state, so one Scheduler may run several times.
type Scheduler struct {
	workflow Workflow
	agents   map[string]Executor
	router   llm.Completer
	sink     events.Sink
	approver control.Approver
	logger   zerolog.Logger
}

// NewScheduler creates a Scheduler
func NewScheduler(wf Workflow, agents map[string]Executor, router llm.Completer, opts ...Option) *Scheduler {
	observability.EnsureRegistered()

	s := &Scheduler{
		workflow: wf,
		agents:   agents,
		router:   router,
		sink:     events.Discard,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sink == nil {
		s.sink = events.Discard
	}
	return s
}

// Execute runs the workflow on input and returns one StepResult per executed
// step visit, in execution order. The error is non-nil only when ctx ends or
// the scheduler itself faults; results gathered so far are still returned.
func (s *Scheduler) Execute(ctx context.Context, input string, dryRun bool) ([]StepResult, error) {
	ex := &execution{
		s:      s,
		ec:     NewExecutionContext(input),
		dryRun: dryRun,
		visits: make(map[string]int),
		index:  s.workflow.index(),
	}
	err := ex.run(ctx)
	return ex.results, err
}

// execution is the state of one Execute call.
type execution struct {
	s       *Scheduler
	ec      *ExecutionContext
	dryRun  bool
	visits  map[string]int
	index   map[string]int
	results []StepResult
}

func (ex *execution) run(ctx context.Context) error {
	elements := ex.s.workflow.Elements
	pos := 0

	for pos < len(elements) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("workflow cancelled: %w", err)
		}

		switch el := elements[pos].(type) {
		case Step:
			pos = ex.runStep(ctx, el, pos)
		case ParallelGroup:
			results, err := ex.runParallel(ctx, el, pos)
			if err != nil {
				return err
			}
			ex.results = append(ex.results, results...)
			pos++
		default:
			return fmt.Errorf("unknown workflow element %T at position %d", el, pos)
		}
	}
	return nil
}

// runStep executes a sequential step and returns the next position.
func (ex *execution) runStep(ctx context.Context, step Step, pos int) int {
	logger := tracing.LoggerFromContext(ctx, ex.s.logger)

	ex.visits[step.ID]++
	if ex.visits[step.ID] > ex.s.workflow.maxVisits() {
		logger.Warn().Str("step_id", step.ID).Int("visits", ex.visits[step.ID]-1).Msg("Step visit cap reached, moving on")
		observability.RecordStepRun("skipped", 0)
		return pos + 1
	}

	res, ran := ex.visit(ctx, step, ex.ec, pos, false)
	if !ran {
		return pos + 1
	}
	ex.results = append(ex.results, res)

	if errors.Is(res.Err, ErrAgentNotFound) {
		return pos + 1
	}

	if res.Approval == ApprovalRejected {
		if target, ok := ex.target(step.OnFail); ok {
			return target
		}
	}

	var condErr *ConditionError
	if !res.Success && step.RetryOnFail > 0 && !errors.As(res.Err, &condErr) {
		retries := ex.visits[step.ID] - 1
		if retries < step.RetryOnFail {
			logger.Info().Str("step_id", step.ID).Int("retry", retries+1).Msg("Retrying failed step")
			ex.emit(events.Event{
				Kind:      events.KindRetry,
				StepID:    step.ID,
				AgentName: step.Agent,
				Data:      map[string]interface{}{"retry_number": retries + 1},
			})
			return pos
		}
	}

	if res.Success {
		if target, ok := ex.target(step.OnSuccess); ok {
			return target
		}
	} else if target, ok := ex.target(step.OnFail); ok {
		return target
	}
	if target, ok := ex.target(step.Next); ok {
		return target
	}
	return pos + 1
}

// target resolves a branch target. Unknown ids count as absent.
func (ex *execution) target(id string) (int, bool) {
	if id == "" {
		return 0, false
	}
	pos, ok := ex.index[id]
	return pos, ok
}

// visit runs one step once, reading templates from read and writing its
// record into the run context. It reports false when the condition skipped it.
func (ex *execution) visit(ctx context.Context, step Step, read *ExecutionContext, pos int, parallel bool) (StepResult, bool) {
	ctx = tracing.PropagateToStep(ctx, step.ID, step.Agent)
	logger := tracing.LoggerFromContext(ctx, ex.s.logger)

	if step.Condition != "" {
		resolved := Resolve(step.Condition, read)
		ok, err := EvaluateCondition(resolved, read)
		if err != nil {
			logger.Error().Err(err).Msg("Step condition is malformed")
			res := failedStep(step, err)
			ex.record(step, res)
			ex.emit(events.Event{
				Kind:      events.KindError,
				StepID:    step.ID,
				AgentName: step.Agent,
				Data:      map[string]interface{}{"error": err.Error()},
			})
			observability.RecordStepRun("error", 0)
			return res, true
		}
		if !ok {
			logger.Debug().Str("condition", resolved).Msg("Condition false, skipping step")
			observability.RecordStepRun("skipped", 0)
			return StepResult{}, false
		}
	}

	task := Resolve(step.Task, read)
	if missing := Unresolved(step.Task, read); len(missing) > 0 {
		logger.Debug().Strs("paths", missing).Msg("Task template has unresolved references")
	}
	if step.OutputFormat != "" && step.OutputFormat != FormatText {
		task += fmt.Sprintf("\n\n[Respond in %s format.]", step.OutputFormat)
	}

	executor, ok := ex.s.agents[step.Agent]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrAgentNotFound, step.Agent)
		logger.Error().Err(err).Msg("Step references an unknown agent")
		return failedStep(step, err), true
	}

	ctx, span := tracing.StartSpan(ctx, "agentforge.workflow", "workflow.step",
		attribute.String("step.id", step.ID),
		attribute.String("step.agent", step.Agent),
		attribute.Bool("step.parallel", parallel),
	)
	defer span.End()

	ex.emit(events.Event{
		Kind:      events.KindStepStart,
		StepID:    step.ID,
		AgentName: step.Agent,
		Data: map[string]interface{}{
			"task":        task,
			"step_num":    pos + 1,
			"total_steps": len(ex.s.workflow.Elements),
			"parallel":    parallel,
		},
	})

	start := time.Now()
	agentResult := ex.runAgent(ctx, step, executor, task)
	duration := time.Since(start)
	agentResult.Duration = duration

	res := StepResult{StepID: step.ID, AgentName: step.Agent, Result: agentResult}
	ex.record(step, res)

	ex.emit(events.Event{
		Kind:      events.KindStepEnd,
		StepID:    step.ID,
		AgentName: step.Agent,
		Data: map[string]interface{}{
			"success":        res.Success,
			"output_preview": preview(res.Output, 200),
			"model":          res.ModelUsed,
			"parallel":       parallel,
		},
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		Cost:         res.Cost,
		DurationMs:   float64(duration.Microseconds()) / 1000,
	})

	if step.ApprovalGate && ex.s.approver != nil {
		res = ex.gate(ctx, step, task, res)
	}

	if !res.Success {
		if res.Err != nil {
			tracing.FailSpan(span, res.Err)
		}
		logger.Warn().Str("error", res.Error).Dur("duration", duration).Msg("Step failed")
		observability.RecordStepRun("error", duration)
	} else {
		logger.Info().Dur("duration", duration).Int("iterations", res.Iterations).Msg("Step completed")
		observability.RecordStepRun("success", duration)
	}

	return res, true
}

// runAgent runs the agent in its own goroutine scoped by the step timeout.
// A timeout becomes a failed result and never touches sibling steps.
func (ex *execution) runAgent(ctx context.Context, step Step, executor Executor, task string) agent.Result {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = ex.s.workflow.DefaultTimeout
	}

	dryRun := ex.dryRun
	if step.DryRun != nil {
		dryRun = *step.DryRun
	}

	var (
		stepCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		stepCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan agent.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- agent.Failed(fmt.Errorf("agent %s panicked: %v", step.Agent, r))
			}
		}()
		done <- executor.Execute(stepCtx, task, agent.RunOptions{
			Router: ex.s.router,
			Sink:   ex.s.sink,
			DryRun: dryRun,
			StepID: step.ID,
		})
	}()

	timedOut := func() agent.Result {
		return agent.Failed(&StepTimeoutError{StepID: step.ID, Timeout: timeout})
	}

	select {
	case res := <-done:
		if !res.Success && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return timedOut()
		}
		return res
	case <-stepCtx.Done():
		if ctx.Err() != nil {
			return agent.Failed(ctx.Err())
		}
		return timedOut()
	}
}

// record writes the step's outcome into the run context.
func (ex *execution) record(step Step, res StepResult) {
	ex.ec.Set(step.ID, StepRecord{
		Output:  res.Output,
		Cost:    res.Cost,
		Tokens:  res.Usage.Total(),
		Success: res.Success,
	})
	if step.SaveAs != "" {
		ex.ec.Set(step.SaveAs, Scalar(res.Output))
	}
}

// gate asks the approver about the step output and applies the decision.
func (ex *execution) gate(ctx context.Context, step Step, task string, res StepResult) StepResult {
	logger := tracing.LoggerFromContext(ctx, ex.s.logger)

	ex.emit(events.Event{
		Kind:      events.KindApprovalRequested,
		StepID:    step.ID,
		AgentName: step.Agent,
		Data:      map[string]interface{}{"output_preview": preview(res.Output, 500)},
	})

	decision, err := ex.s.approver.RequestApproval(ctx, control.ApprovalRequest{
		StepID:    step.ID,
		AgentName: step.Agent,
		Task:      task,
		Output:    res.Output,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Approval request failed, treating as rejected")
		decision = control.ApprovalDecision{Approved: false, Reason: err.Error()}
	}

	ex.emit(events.Event{
		Kind:      events.KindApprovalReceived,
		StepID:    step.ID,
		AgentName: step.Agent,
		Data:      map[string]interface{}{"approved": decision.Approved, "reason": decision.Reason},
	})

	label := "rejected"
	switch {
	case decision.Approved && decision.EditedOutput != "":
		label = "edited"
	case decision.Approved:
		label = "approved"
	}
	observability.RecordApproval(label)
	observability.RecordApprovalAudit(ctx, step.ID, step.Agent, label, decision.Reason)

	if decision.EditedOutput != "" {
		res.Output = decision.EditedOutput
	}
	if decision.Approved {
		res.Approval = ApprovalApproved
	} else {
		res.Approval = ApprovalRejected
		res.Success = false
		if res.Err == nil {
			res.Err = fmt.Errorf("%w: %s", ErrApprovalRejected, decision.Reason)
			res.Error = res.Err.Error()
		}
	}
	ex.record(step, res)

	logger.Info().Str("decision", label).Msg("Approval received")
	return res
}

func (ex *execution) emit(e events.Event) {
	ex.s.sink.Emit(e)
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
