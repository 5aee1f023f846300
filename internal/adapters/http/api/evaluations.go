// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/jury/internal/domain/model"
)

// EvaluationsHandler handles evaluation submission and approval requests.
type EvaluationsHandler struct {
	deps Dependencies
}

// NewEvaluationsHandler creates a new evaluations handler.
func NewEvaluationsHandler(deps Dependencies) *EvaluationsHandler {
	return &EvaluationsHandler{deps: deps}
}

// scoreItemRequest mirrors the wire shape of one criterion score.
type scoreItemRequest struct {
	CriterionID string `json:"criterion_id"`
	Family      string `json:"family"`
	Score       int    `json:"score"`
	MaxScore    int    `json:"max_score"`
}

// submitEvaluationRequest mirrors the wire shape of POST /evaluations.
type submitEvaluationRequest struct {
	SessionID   string             `json:"session_id"`
	FormationID string             `json:"formation_id"`
	TraineeID   string             `json:"trainee_id"`
	Items       []scoreItemRequest `json:"items"`
}

func (e submitEvaluationRequest) validate() error {
	switch {
	case strings.TrimSpace(e.SessionID) == "":
		return fmt.Errorf("%w: missing session_id", ErrBadRequest)
	case strings.TrimSpace(e.FormationID) == "":
		return fmt.Errorf("%w: missing formation_id", ErrBadRequest)
	case strings.TrimSpace(e.TraineeID) == "":
		return fmt.Errorf("%w: missing trainee_id", ErrBadRequest)
	}
	return nil
}

// gateActionRequest is the shared wire shape for approval actions.
type gateActionRequest struct {
	SessionID   string `json:"session_id"`
	FormationID string `json:"formation_id"`
	TraineeID   string `json:"trainee_id"`
}

func (e gateActionRequest) validate() error {
	switch {
	case strings.TrimSpace(e.SessionID) == "":
		return fmt.Errorf("%w: missing session_id", ErrBadRequest)
	case strings.TrimSpace(e.FormationID) == "":
		return fmt.Errorf("%w: missing formation_id", ErrBadRequest)
	case strings.TrimSpace(e.TraineeID) == "":
		return fmt.Errorf("%w: missing trainee_id", ErrBadRequest)
	}
	return nil
}

// HandleSubmit handles POST /evaluations requests.
func (h *EvaluationsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req submitEvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	items := make([]model.ScoreItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = model.ScoreItem{
			CriterionID: it.CriterionID,
			Family:      it.Family,
			Score:       it.Score,
			MaxScore:    it.MaxScore,
		}
	}
	view, err := h.deps.SubmitEvaluation(r.Context(), req.SessionID, req.FormationID, req.TraineeID, items, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleApprove handles POST /evaluations/approve requests.
func (h *EvaluationsHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req gateActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	view, err := h.deps.ApproveEvaluation(r.Context(), req.SessionID, req.FormationID, req.TraineeID, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
