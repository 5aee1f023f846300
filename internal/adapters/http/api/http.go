// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/jury/internal/app"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/internal/domain/rollup"
	"github.com/okian/jury/pkg/metrics"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	SubmitEvaluation(ctx context.Context, sessionID, formationID, traineeID string, items []model.ScoreItem, actorID string) (service.EvaluationView, error)
	ApproveEvaluation(ctx context.Context, sessionID, formationID, traineeID, actorID string) (service.EvaluationView, error)
	SetFinalDecisions(ctx context.Context, sessionID, formationID string, inputs []service.DecisionInput, actorID string) ([]service.DecisionView, error)
	ApproveFinalDecision(ctx context.Context, sessionID, formationID, traineeID, actorID string) (service.DecisionView, error)
	SessionRollup(ctx context.Context, sessionID string) (rollup.SessionReport, error)
	ValidateSession(ctx context.Context, sessionID, actorID string) (model.SessionPublication, error)
	FormationResults(ctx context.Context, sessionID, formationID, actorID string) (service.FormationResults, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	evaluationsHandler *EvaluationsHandler
	decisionsHandler   *DecisionsHandler
	resultsHandler     *ResultsHandler
	rollupHandler      *RollupHandler
	sessionsHandler    *SessionsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		evaluationsHandler: NewEvaluationsHandler(deps),
		decisionsHandler:   NewDecisionsHandler(deps),
		resultsHandler:     NewResultsHandler(deps),
		rollupHandler:      NewRollupHandler(deps),
		sessionsHandler:    NewSessionsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/evaluations", MetricsMiddleware(s.evaluationsHandler.HandleSubmit, "evaluations"))
	mux.HandleFunc("/evaluations/approve", MetricsMiddleware(s.evaluationsHandler.HandleApprove, "evaluations_approve"))
	mux.HandleFunc("/decisions", MetricsMiddleware(s.decisionsHandler.HandleSetOutcomes, "decisions"))
	mux.HandleFunc("/decisions/approve", MetricsMiddleware(s.decisionsHandler.HandleApprove, "decisions_approve"))
	mux.HandleFunc("/results", MetricsMiddleware(s.resultsHandler.HandleGetResults, "results"))
	mux.HandleFunc("/rollup", MetricsMiddleware(s.rollupHandler.HandleGetRollup, "rollup"))
	mux.HandleFunc("/sessions/validate", MetricsMiddleware(s.sessionsHandler.HandleValidate, "sessions_validate"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates the workflow error taxonomy to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	kind := service.Kind(err)
	metrics.RecordRequestError(kind)
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusForbidden, kind, err)
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, kind, err)
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, kind, err)
	case errors.Is(err, service.ErrPrecondition):
		writeError(w, http.StatusConflict, kind, err)
	default:
		writeError(w, http.StatusInternalServerError, kind, err)
	}
}

// actorID extracts the authenticated actor from the request. Identity and
// authentication live outside this service; the header is trusted once past
// the boundary.
func actorID(r *http.Request) (string, error) {
	id := r.Header.Get("X-Actor-ID")
	if id == "" {
		return "", ErrMissingActor
	}
	return id, nil
}
