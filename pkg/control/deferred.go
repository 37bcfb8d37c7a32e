package control

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrNoPendingApproval is returned by Resolve when nothing waits on the step
var ErrNoPendingApproval = errors.New("no pending approval for step")

// PendingApproval is a request waiting for an external decision
type PendingApproval struct {
	ID          string          `json:"id"`
	Request     ApprovalRequest `json:"request"`
	RequestedAt time.Time       `json:"requested_at"`
}

type pendingEntry struct {
	info     PendingApproval
	decision chan ApprovalDecision
}

// DeferredApprover parks each request until Resolve is called for its step,
// typically from the dashboard.
type DeferredApprover struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry

	// OnRequest, when set, is called after a request is parked.
	OnRequest func(PendingApproval)
}

// NewDeferredApprover creates an empty DeferredApprover
func NewDeferredApprover() *DeferredApprover {
	return &DeferredApprover{pending: make(map[string]*pendingEntry)}
}

// RequestApproval blocks until Resolve(req.StepID, ...) or ctx is done.
func (d *DeferredApprover) RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error) {
	id, err := gonanoid.New()
	if err != nil {
		return ApprovalDecision{}, fmt.Errorf("failed to generate approval id: %w", err)
	}

	entry := &pendingEntry{
		info:     PendingApproval{ID: id, Request: req, RequestedAt: time.Now()},
		decision: make(chan ApprovalDecision, 1),
	}

	d.mu.Lock()
	if _, exists := d.pending[req.StepID]; exists {
		d.mu.Unlock()
		return ApprovalDecision{}, fmt.Errorf("approval already pending for step %s", req.StepID)
	}
	d.pending[req.StepID] = entry
	onRequest := d.OnRequest
	d.mu.Unlock()

	if onRequest != nil {
		onRequest(entry.info)
	}

	select {
	case decision := <-entry.decision:
		return decision, nil
	case <-ctx.Done():
		d.mu.Lock()
		if d.pending[req.StepID] == entry {
			delete(d.pending, req.StepID)
		}
		d.mu.Unlock()
		return ApprovalDecision{Approved: false, Reason: "timeout"}, ctx.Err()
	}
}

// Resolve delivers decision to the request waiting on stepID
func (d *DeferredApprover) Resolve(stepID string, decision ApprovalDecision) error {
	d.mu.Lock()
	entry, ok := d.pending[stepID]
	if ok {
		delete(d.pending, stepID)
	}
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPendingApproval, stepID)
	}
	entry.decision <- decision
	return nil
}

// Pending lists waiting requests, oldest first
func (d *DeferredApprover) Pending() []PendingApproval {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]PendingApproval, 0, len(d.pending))
	for _, e := range d.pending {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out
}
