package events

import "time"

// Kind identifies a lifecycle transition
type Kind string

const (
	KindWorkflowStart     Kind = "workflow_start"
	KindWorkflowEnd       Kind = "workflow_end"
	KindStepStart         Kind = "step_start"
	KindStepEnd           Kind = "step_end"
	KindAgentThinking     Kind = "agent_thinking"
	KindAgentResponse     Kind = "agent_response"
	KindToolCall          Kind = "tool_call"
	KindToolResult        Kind = "tool_result"
	KindMemoryRecall      Kind = "memory_recall"
	KindMemoryStore       Kind = "memory_store"
	KindApprovalRequested Kind = "approval_requested"
	KindApprovalReceived  Kind = "approval_received"
	KindError             Kind = "error"
	KindRetry             Kind = "retry"
)

var kinds = []Kind{
	KindWorkflowStart, KindWorkflowEnd, KindStepStart, KindStepEnd,
	KindAgentThinking, KindAgentResponse, KindToolCall, KindToolResult,
	KindMemoryRecall, KindMemoryStore, KindApprovalRequested, KindApprovalReceived,
	KindError, KindRetry,
}

// Known reports whether k is one of the kinds a run emits
func (k Kind) Known() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is one record of the stream
type Event struct {
	Seq          int64                  `json:"seq"`
	Kind         Kind                   `json:"kind"`
	Timestamp    time.Time              `json:"timestamp"`
	StepID       string                 `json:"step_id,omitempty"`
	AgentName    string                 `json:"agent,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	InputTokens  int                    `json:"input_tokens,omitempty"`
	OutputTokens int                    `json:"output_tokens,omitempty"`
	Cost         float64                `json:"cost,omitempty"`
	DurationMs   float64                `json:"duration_ms,omitempty"`
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event
var Discard Sink = SinkFunc(func(Event) {})
