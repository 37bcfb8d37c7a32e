package observability

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/harun/agentforge/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Audit event types.
const (
	AuditTool     = "tool"
	AuditSecurity = "security"
	AuditApproval = "approval"
	AuditConfig   = "config"
)

// AuditEvent is one line of the audit log.
type AuditEvent struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor,omitempty"`  // agent name, or "cli"
	Action    string                 `json:"action"`           // e.g. "execute:calculator", "approve:review"
	Status    string                 `json:"status"`           // success, failure, denied, approved, ...
	RunID     string                 `json:"run_id,omitempty"` // filled from ctx
	StepID    string                 `json:"step_id,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// AuditLogger appends AuditEvents as JSON lines. The zero value discards.
type AuditLogger struct {
	mu     sync.Mutex
	logger zerolog.Logger
	file   *os.File
}

var (
	auditMu   sync.RWMutex
	auditInst *AuditLogger
)

// GetAuditLogger returns the process audit logger. Events are discarded until
// InitAuditLogger is called.
func GetAuditLogger() *AuditLogger {
	auditMu.RLock()
	inst := auditInst
	auditMu.RUnlock()
	if inst != nil {
		return inst
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditInst == nil {
		auditInst = &AuditLogger{logger: zerolog.Nop()}
	}
	return auditInst
}

// InitAuditLogger points the process audit logger at path, closing any
// previous file.
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditInst != nil {
		_ = auditInst.Close()
	}
	auditInst = &AuditLogger{
		logger: zerolog.New(file).With().Timestamp().Logger(),
		file:   file,
	}
	return nil
}

// Record writes event, tagging it with the run scope and span of ctx. The
// action is also added to the active span as an event.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	scope := tracing.FromContext(ctx)
	if event.RunID == "" {
		event.RunID = scope.RunID
	}
	if event.StepID == "" {
		event.StepID = scope.StepID
	}

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()
		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.actor", event.Actor),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}

	entry := a.logger.Log().
		Str("type", event.Type).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("status", event.Status)
	if event.RunID != "" {
		entry = entry.Str("run_id", event.RunID)
	}
	if event.StepID != "" {
		entry = entry.Str("step_id", event.StepID)
	}
	if event.TraceID != "" {
		entry = entry.Str("trace_id", event.TraceID)
	}
	if len(event.Metadata) > 0 {
		entry = entry.Interface("metadata", event.Metadata)
	}
	entry.Msg("")
}

// Close closes the file. Later events are discarded.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// RecordToolAudit records one tool execution.
func RecordToolAudit(ctx context.Context, toolName, actor, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     AuditTool,
		Actor:    actor,
		Action:   "execute:" + toolName,
		Status:   status,
		Metadata: metadata,
	})
}

// RecordGuardrailAudit records a tool call refused by an agent's allow/block lists.
func RecordGuardrailAudit(ctx context.Context, toolName, agent string) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:   AuditSecurity,
		Actor:  agent,
		Action: "deny:" + toolName,
		Status: "denied",
	})
}

// RecordApprovalAudit records the outcome of a human approval gate.
func RecordApprovalAudit(ctx context.Context, stepID, agent, decision, reason string) {
	var metadata map[string]interface{}
	if reason != "" {
		metadata = map[string]interface{}{"reason": reason}
	}
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     AuditApproval,
		Actor:    agent,
		Action:   "approve:" + stepID,
		Status:   decision,
		StepID:   stepID,
		Metadata: metadata,
	})
}

// RecordConfigAudit records a change to configuration files.
func RecordConfigAudit(ctx context.Context, action, actor string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     AuditConfig,
		Actor:    actor,
		Action:   action,
		Status:   "success",
		Metadata: metadata,
	})
}
