package tracing

import (
	"context"

	"github.com/google/uuid"
)

// Scope identifies where in a workflow run the current code is executing.
// Empty fields are unknown.
type Scope struct {
	TraceID string
	RunID   string
	StepID  string
	Agent   string
}

type scopeKey struct{}

// FromContext returns the scope carried by ctx, or the zero Scope.
func FromContext(ctx context.Context) Scope {
	if ctx == nil {
		return Scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}

// NewContext replaces the scope carried by ctx.
func NewContext(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

func update(ctx context.Context, fn func(*Scope)) context.Context {
	s := FromContext(ctx)
	fn(&s)
	return NewContext(ctx, s)
}

// NewRunID generates a new run ID
func NewRunID() string {
	return uuid.New().String()
}

// WithTraceID sets the trace ID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return update(ctx, func(s *Scope) { s.TraceID = traceID })
}

// WithRunID sets the run ID
func WithRunID(ctx context.Context, runID string) context.Context {
	return update(ctx, func(s *Scope) { s.RunID = runID })
}

// WithStepID sets the step ID
func WithStepID(ctx context.Context, stepID string) context.Context {
	return update(ctx, func(s *Scope) { s.StepID = stepID })
}

// WithAgent sets the agent name
func WithAgent(ctx context.Context, agent string) context.Context {
	return update(ctx, func(s *Scope) { s.Agent = agent })
}

func GetTraceID(ctx context.Context) string { return FromContext(ctx).TraceID }
func GetRunID(ctx context.Context) string   { return FromContext(ctx).RunID }
func GetStepID(ctx context.Context) string  { return FromContext(ctx).StepID }
func GetAgent(ctx context.Context) string   { return FromContext(ctx).Agent }

// NewRunContext starts a workflow run with a fresh run ID. Step and agent from
// an enclosing scope are cleared; the trace ID is kept so nested runs stay
// correlated, and the run ID doubles as trace ID when there is none.
func NewRunContext(ctx context.Context) context.Context {
	runID := NewRunID()
	return update(ctx, func(s *Scope) {
		if s.TraceID == "" {
			s.TraceID = runID
		}
		s.RunID = runID
		s.StepID = ""
		s.Agent = ""
	})
}
