// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	service "github.com/okian/jury/internal/app"
	"github.com/okian/jury/internal/domain/model"
)

// DecisionsHandler handles final-decision outcome and approval requests.
type DecisionsHandler struct {
	deps Dependencies
}

// NewDecisionsHandler creates a new decisions handler.
func NewDecisionsHandler(deps Dependencies) *DecisionsHandler {
	return &DecisionsHandler{deps: deps}
}

// setDecisionsRequest mirrors the wire shape of POST /decisions.
type setDecisionsRequest struct {
	SessionID   string `json:"session_id"`
	FormationID string `json:"formation_id"`
	Decisions   []struct {
		TraineeID string `json:"trainee_id"`
		Outcome   string `json:"outcome"`
	} `json:"decisions"`
}

func (e setDecisionsRequest) validate() error {
	switch {
	case strings.TrimSpace(e.SessionID) == "":
		return fmt.Errorf("%w: missing session_id", ErrBadRequest)
	case strings.TrimSpace(e.FormationID) == "":
		return fmt.Errorf("%w: missing formation_id", ErrBadRequest)
	}
	return nil
}

// HandleSetOutcomes handles POST /decisions requests.
func (h *DecisionsHandler) HandleSetOutcomes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req setDecisionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	inputs := make([]service.DecisionInput, len(req.Decisions))
	for i, d := range req.Decisions {
		inputs[i] = service.DecisionInput{
			TraineeID: d.TraineeID,
			Outcome:   model.Outcome(d.Outcome),
		}
	}
	views, err := h.deps.SetFinalDecisions(r.Context(), req.SessionID, req.FormationID, inputs, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// HandleApprove handles POST /decisions/approve requests.
func (h *DecisionsHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
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
	view, err := h.deps.ApproveFinalDecision(r.Context(), req.SessionID, req.FormationID, req.TraineeID, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
