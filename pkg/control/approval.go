package control

import (
	"context"
	"sync"
)

// ApprovalRequest describes a step output awaiting a decision
type ApprovalRequest struct {
	StepID    string `json:"step_id"`
	AgentName string `json:"agent"`
	Task      string `json:"task"`
	Output    string `json:"output"`
}

// ApprovalDecision is the outcome of an approval gate. A non-empty
// EditedOutput replaces the step output.
type ApprovalDecision struct {
	Approved     bool   `json:"approved"`
	EditedOutput string `json:"edited_output,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Approver decides approval-gated steps. RequestApproval may block until a
// human answers; it must return when ctx is done.
type Approver interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error)
}

// AutoApprover approves every request
type AutoApprover struct{}

func (AutoApprover) RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error) {
	return ApprovalDecision{Approved: true, Reason: "auto-approved"}, nil
}

// ApproverFunc adapts a function to Approver
type ApproverFunc func(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error)

func (f ApproverFunc) RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error) {
	return f(ctx, req)
}

// StaticApprover returns scripted decisions per step id and Default for the
// rest. It records every request it receives.
type StaticApprover struct {
	Decisions map[string]ApprovalDecision
	Default   ApprovalDecision

	mu       sync.Mutex
	requests []ApprovalRequest
}

func (s *StaticApprover) RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if d, ok := s.Decisions[req.StepID]; ok {
		return d, nil
	}
	return s.Default, nil
}

// Requests returns the requests seen so far
func (s *StaticApprover) Requests() []ApprovalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ApprovalRequest(nil), s.requests...)
}
