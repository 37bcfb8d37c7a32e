package tracing

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	providerOnce sync.Once
	providerMu   sync.RWMutex
	provider     *sdktrace.TracerProvider
	providerErr  error
)

// ExportOption adds a span exporter to the tracer provider.
type ExportOption func(context.Context) (sdktrace.TracerProviderOption, error)

// WithSpanWriter writes each finished span to w as JSON as soon as it ends.
func WithSpanWriter(w io.Writer) ExportOption {
	return func(context.Context) (sdktrace.TracerProviderOption, error) {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create span writer: %w", err)
		}
		return sdktrace.WithSyncer(exp), nil
	}
}

// WithOTLP batches spans to an OTLP/gRPC collector at endpoint (host:port).
func WithOTLP(endpoint string, insecure bool) ExportOption {
	return func(ctx context.Context) (sdktrace.TracerProviderOption, error) {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		return sdktrace.WithBatcher(exp), nil
	}
}

// InitOpenTelemetry installs a process-wide tracer provider. Without export
// options spans are sampled but dropped. Only the first call has effect.
func InitOpenTelemetry(serviceName string, exports ...ExportOption) error {
	providerOnce.Do(func() {
		ctx := context.Background()
		res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
		if err != nil {
			providerErr = err
			return
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
			sdktrace.WithResource(res),
		}
		for _, export := range exports {
			opt, err := export(ctx)
			if err != nil {
				providerErr = err
				return
			}
			opts = append(opts, opt)
		}
		tp := sdktrace.NewTracerProvider(opts...)

		providerMu.Lock()
		provider = tp
		providerMu.Unlock()

		otel.SetTracerProvider(tp)
	})

	return providerErr
}

// ShutdownOpenTelemetry flushes and shuts down the global tracer provider.
func ShutdownOpenTelemetry(ctx context.Context) error {
	providerMu.RLock()
	tp := provider
	providerMu.RUnlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan starts a span tagged with the run/step/agent carried by ctx.
// The span's trace ID is written back into ctx when ctx has none.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	tc := FromContext(ctx)
	if tc.RunID != "" {
		attrs = append(attrs, attribute.String("agentforge.run_id", tc.RunID))
	}
	if tc.StepID != "" {
		attrs = append(attrs, attribute.String("agentforge.step_id", tc.StepID))
	}
	if tc.Agent != "" {
		attrs = append(attrs, attribute.String("agentforge.agent", tc.Agent))
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))

	if tc.TraceID == "" {
		sc := span.SpanContext()
		if sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}

	return ctx, span
}

// FailSpan records err on span and marks it as failed. A nil err is a no-op.
func FailSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
