package memory

import (
	"context"

	"github.com/harun/agentforge/internal/observability"
	"github.com/harun/agentforge/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// instrumented wraps a Store with spans and metrics.
type instrumented struct {
	inner Store
}

// Instrument wraps st so every operation is traced and counted.
func Instrument(st Store) Store {
	if _, ok := st.(*instrumented); ok {
		return st
	}
	observability.EnsureRegistered()
	return &instrumented{inner: st}
}

func (i *instrumented) Store(ctx context.Context, agentName, content string, importance float64, metadata map[string]interface{}) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "agentforge.memory", "memory.store",
		attribute.String("agent", agentName),
		attribute.Float64("importance", importance),
	)
	defer span.End()

	id, err := i.inner.Store(ctx, agentName, content, importance, metadata)
	observability.RecordMemoryOp("store", err == nil)
	if err != nil {
		tracing.FailSpan(span, err)
	}
	return id, err
}

func (i *instrumented) Recall(ctx context.Context, agentName, query string, limit int) ([]Entry, error) {
	ctx, span := tracing.StartSpan(ctx, "agentforge.memory", "memory.recall",
		attribute.String("agent", agentName),
		attribute.Int("limit", limit),
	)
	defer span.End()

	entries, err := i.inner.Recall(ctx, agentName, query, limit)
	observability.RecordMemoryOp("recall", err == nil)
	if err != nil {
		tracing.FailSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("results", len(entries)))
	return entries, nil
}

func (i *instrumented) Clear(ctx context.Context, agentName string) error {
	err := i.inner.Clear(ctx, agentName)
	observability.RecordMemoryOp("clear", err == nil)
	return err
}

func (i *instrumented) Close() error {
	return i.inner.Close()
}

// Unwrap returns the underlying store
func (i *instrumented) Unwrap() Store {
	return i.inner
}
