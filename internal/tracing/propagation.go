package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToStep scopes a run context to one step executed by one agent.
func PropagateToStep(ctx context.Context, stepID, agent string) context.Context {
	return update(ctx, func(s *Scope) {
		s.StepID = stepID
		s.Agent = agent
	})
}

// LoggerFromContext returns base annotated with the run/step/agent of ctx.
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	s := FromContext(ctx)
	if s == (Scope{}) {
		return base
	}

	lc := base.With()
	if s.TraceID != "" && s.TraceID != s.RunID {
		lc = lc.Str("trace_id", s.TraceID)
	}
	if s.RunID != "" {
		lc = lc.Str("run_id", s.RunID)
	}
	if s.StepID != "" {
		lc = lc.Str("step_id", s.StepID)
	}
	if s.Agent != "" {
		lc = lc.Str("agent", s.Agent)
	}
	return lc.Logger()
}
