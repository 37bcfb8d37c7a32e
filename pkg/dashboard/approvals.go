package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/harun/agentforge/pkg/control"
)

func (s *Server) handleListApprovals(w http.ResponseWriter, _ *http.Request) {
	if s.approver == nil {
		writeJSON(w, http.StatusOK, []control.PendingApproval{})
		return
	}
	writeJSON(w, http.StatusOK, s.approver.Pending())
}

func (s *Server) handleResolveApproval(w http.ResponseWriter, r *http.Request) {
	if s.approver == nil {
		writeError(w, http.StatusNotFound, "approvals are not handled by this dashboard")
		return
	}

	stepID := r.PathValue("step")
	var body ApprovalBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	decision := control.ApprovalDecision{
		Approved:     body.Approved,
		EditedOutput: body.EditedOutput,
		Reason:       body.Reason,
	}
	if err := s.approver.Resolve(stepID, decision); err != nil {
		if errors.Is(err, control.ErrNoPendingApproval) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info().
		Str("step_id", stepID).
		Bool("approved", body.Approved).
		Bool("edited", body.EditedOutput != "").
		Msg("Approval resolved from dashboard")

	s.broadcaster.Broadcast("approval_resolved", map[string]interface{}{
		"step_id":  stepID,
		"approved": body.Approved,
		"reason":   body.Reason,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved", "step_id": stepID})
}
