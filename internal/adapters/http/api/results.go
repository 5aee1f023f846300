// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"fmt"
	"net/http"
)

// ResultsHandler handles formation result-table requests.
type ResultsHandler struct {
	deps Dependencies
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(deps Dependencies) *ResultsHandler {
	return &ResultsHandler{deps: deps}
}

// HandleGetResults handles GET /results?session=ID&formation=ID requests.
func (h *ResultsHandler) HandleGetResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	sessionID := r.URL.Query().Get("session")
	formationID := r.URL.Query().Get("formation")
	if sessionID == "" || formationID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing session or formation", ErrBadRequest))
		return
	}
	results, err := h.deps.FormationResults(r.Context(), sessionID, formationID, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
