// Package workflow sequences agent steps.
//
// A Workflow is an ordered list of elements, each either a single Step or a
// ParallelGroup of steps launched together and joined before the scheduler
// moves on. Steps read the shared ExecutionContext through {{path}} templates
// and write their own record back under their id (and optionally a save_as key).
//
// The Scheduler owns all control flow: conditions, retries, on_success/on_fail
// branching, next loops bounded by a per-step visit cap, per-step timeouts and
// approval gates.
//
//	s := workflow.NewScheduler(wf, agents, router,
//		workflow.WithSink(tracer),
//		workflow.WithApprover(control.AutoApprover{}),
//	)
//	results, err := s.Execute(ctx, "research Go generics", false)
//
// Failures below the scheduler (model, tool, timeout, rejection) are captured
// in StepResults. Execute returns an error only when the scheduler itself
// faults or ctx is cancelled.
package workflow
