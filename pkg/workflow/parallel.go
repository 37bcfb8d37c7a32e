package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/agentforge/internal/tracing"
	"github.com/harun/agentforge/pkg/events"
	"golang.org/x/sync/errgroup"
)

// runParallel launches every member against a snapshot of the context taken
// before the group and joins them all. Results keep declared order. Members
// retry in place; their branch targets are not followed.
func (ex *execution) runParallel(ctx context.Context, group ParallelGroup, pos int) ([]StepResult, error) {
	logger := tracing.LoggerFromContext(ctx, ex.s.logger)
	snapshot := ex.ec.Snapshot()

	results := make([]StepResult, len(group.Steps))
	ran := make([]bool, len(group.Steps))
	retried := make([]int, len(group.Steps))

	var g errgroup.Group
	for i, step := range group.Steps {
		ex.visits[step.ID]++
		remaining := ex.s.workflow.maxVisits() - ex.visits[step.ID]
		if remaining < 0 {
			logger.Warn().Str("step_id", step.ID).Msg("Step visit cap reached, skipping parallel member")
			continue
		}
		retries := min(step.RetryOnFail, remaining)

		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("parallel step %s: scheduler fault: %v", step.ID, r)
				}
			}()
			results[i], ran[i], retried[i] = ex.runMember(ctx, step, snapshot, pos, retries)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, step := range group.Steps {
		ex.visits[step.ID] += retried[i]
	}

	ordered := make([]StepResult, 0, len(results))
	for i, res := range results {
		if ran[i] {
			ordered = append(ordered, res)
		}
	}

	logger.Debug().Int("members", len(group.Steps)).Int("executed", len(ordered)).Msg("Parallel group joined")
	return ordered, nil
}

// runMember runs a member and retries it up to maxRetries times. It returns
// the number of retries made.
func (ex *execution) runMember(ctx context.Context, step Step, snapshot *ExecutionContext, pos, maxRetries int) (StepResult, bool, int) {
	var condErr *ConditionError

	for attempt := 0; ; attempt++ {
		res, ran := ex.visit(ctx, step, snapshot, pos, true)
		if !ran || res.Success || attempt >= maxRetries {
			return res, ran, attempt
		}
		if errors.Is(res.Err, ErrAgentNotFound) || errors.As(res.Err, &condErr) || ctx.Err() != nil {
			return res, ran, attempt
		}

		ex.emit(events.Event{
			Kind:      events.KindRetry,
			StepID:    step.ID,
			AgentName: step.Agent,
			Data:      map[string]interface{}{"retry_number": attempt + 1, "parallel": true},
		})
	}
}
