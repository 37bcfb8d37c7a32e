package agent

import (
	"errors"
	"time"

	"github.com/harun/agentforge/pkg/llm"
)

const (
	DefaultMaxIterations = 10
	DefaultRecallLimit   = 10
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 4096

	memoryImportance  = 0.6
	memoryTaskChars   = 200
	memoryResultChars = 500
)

// ErrMaxIterations is set on a Result when the loop ran out of iterations
var ErrMaxIterations = errors.New("max iterations reached without a final answer")

// Control holds the per-agent loop knobs
type Control struct {
	MaxIterations int `json:"max_iterations"`
	// ConfidenceThreshold above zero enables the confidence check on final answers.
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	RecallLimit         int      `json:"recall_limit"`
	AllowedActions      []string `json:"allowed_actions,omitempty"`
	BlockedActions      []string `json:"blocked_actions,omitempty"`
}

// Config defines an agent. It is immutable once passed to New.
type Config struct {
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	Goal         string   `json:"goal"`
	Backstory    string   `json:"backstory,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	Model        string   `json:"model,omitempty"`
	Fallbacks    []string `json:"fallback,omitempty"`
	Temperature  float64  `json:"temperature"`
	MaxTokens    int      `json:"max_tokens"`
	// Tools names the registry tools bound to this agent.
	Tools   []string `json:"tools,omitempty"`
	Control Control  `json:"control"`
}

// ToolCallRecord is one tool invocation made during a run
type ToolCallRecord struct {
	Name      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments"`
	Output    string                 `json:"output"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	DryRun    bool                   `json:"dry_run,omitempty"`
	Duration  time.Duration          `json:"duration"`
}

// Result is the outcome of Execute
type Result struct {
	Output     string           `json:"output"`
	Success    bool             `json:"success"`
	Usage      llm.TokenUsage   `json:"tokens"`
	Cost       float64          `json:"cost"`
	ToolCalls  []ToolCallRecord `json:"tool_calls,omitempty"`
	Iterations int              `json:"iterations"`
	Duration   time.Duration    `json:"duration"`
	ModelUsed  string           `json:"model_used,omitempty"`
	Error      string           `json:"error,omitempty"`
	// Err is the typed cause behind Error.
	Err error `json:"-"`
}

// Failed builds a failed Result carrying err
func Failed(err error) Result {
	return Result{Success: false, Error: err.Error(), Err: err}
}
