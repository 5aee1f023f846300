// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"fmt"
	"net/http"
)

// RollupHandler handles session rollup requests.
type RollupHandler struct {
	deps Dependencies
}

// NewRollupHandler creates a new rollup handler.
func NewRollupHandler(deps Dependencies) *RollupHandler {
	return &RollupHandler{deps: deps}
}

// HandleGetRollup handles GET /rollup?session=ID requests.
func (h *RollupHandler) HandleGetRollup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing session", ErrBadRequest))
		return
	}
	report, err := h.deps.SessionRollup(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
