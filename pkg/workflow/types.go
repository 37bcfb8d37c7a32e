package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/harun/agentforge/pkg/agent"
)

const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"

	// DefaultMaxRetries bounds visits per step to DefaultMaxRetries+1.
	DefaultMaxRetries = 3
)

// ErrAgentNotFound is set on a StepResult whose agent is not in the team
var ErrAgentNotFound = errors.New("agent not found")

// StepTimeoutError is the cause of a step that exceeded its timeout
type StepTimeoutError struct {
	StepID  string
	Timeout time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step '%s' timed out after %s", e.StepID, e.Timeout)
}

// Element is one scheduling unit of a workflow: a Step or a ParallelGroup.
type Element interface {
	// StepIDs returns the ids scheduled by this element, in declared order.
	StepIDs() []string
	element()
}

// Step binds an agent to a task template plus control flow
type Step struct {
	ID           string        `json:"id"`
	Agent        string        `json:"agent"`
	Task         string        `json:"task"`
	OutputFormat string        `json:"output_format,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"`
	RetryOnFail  int           `json:"retry_on_fail,omitempty"`
	ApprovalGate bool          `json:"approval_gate,omitempty"`
	// DryRun overrides the run-wide dry run flag when set.
	DryRun    *bool  `json:"dry_run,omitempty"`
	Condition string `json:"condition,omitempty"`
	SaveAs    string `json:"save_as,omitempty"`
	OnSuccess string `json:"on_success,omitempty"`
	OnFail    string `json:"on_fail,omitempty"`
	Next      string `json:"next,omitempty"`
}

func (s Step) StepIDs() []string { return []string{s.ID} }
func (Step) element()            {}

// ParallelGroup runs its steps concurrently as one unit
type ParallelGroup struct {
	Steps []Step `json:"parallel"`
}

func (g ParallelGroup) StepIDs() []string {
	ids := make([]string, len(g.Steps))
	for i, s := range g.Steps {
		ids[i] = s.ID
	}
	return ids
}

func (ParallelGroup) element() {}

// Workflow is the ordered element list plus run-wide control defaults
type Workflow struct {
	Elements []Element
	// MaxRetries caps visits per step at MaxRetries+1. Negative means DefaultMaxRetries.
	MaxRetries int
	// DefaultTimeout applies to steps without their own. Zero means none.
	DefaultTimeout time.Duration
}

// Steps returns every step in declared order, parallel members included.
func (w Workflow) Steps() []Step {
	var steps []Step
	for _, el := range w.Elements {
		switch e := el.(type) {
		case Step:
			steps = append(steps, e)
		case ParallelGroup:
			steps = append(steps, e.Steps...)
		}
	}
	return steps
}

// index maps each step id to the position of its element.
func (w Workflow) index() map[string]int {
	idx := make(map[string]int)
	for i, el := range w.Elements {
		for _, id := range el.StepIDs() {
			idx[id] = i
		}
	}
	return idx
}

func (w Workflow) maxVisits() int {
	if w.MaxRetries < 0 {
		return DefaultMaxRetries + 1
	}
	return w.MaxRetries + 1
}

// Approval is the tri-state outcome of an approval gate
type Approval string

const (
	ApprovalNone     Approval = ""
	ApprovalApproved Approval = "approved"
	ApprovalRejected Approval = "rejected"
)

// StepResult is the outcome of one step visit
type StepResult struct {
	StepID    string `json:"step_id"`
	AgentName string `json:"agent"`
	agent.Result
	Approval Approval `json:"approval,omitempty"`
}

// Approved reports whether the step passed an approval gate
func (r StepResult) Approved() bool { return r.Approval == ApprovalApproved }

func failedStep(step Step, err error) StepResult {
	return StepResult{StepID: step.ID, AgentName: step.Agent, Result: agent.Failed(err)}
}

// ErrApprovalRejected is the cause of a step whose output was rejected at its gate
var ErrApprovalRejected = errors.New("approval rejected")
