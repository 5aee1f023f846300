package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/pkg/metrics"
)

// MemStore implements Store over in-process maps. Every collection has its
// own lock; each method holds exactly one lock for its duration, which gives
// the atomic per-document semantics the workflow relies on.
type MemStore struct {
	evalMu sync.RWMutex
	evals  map[model.GateKey]model.Evaluation

	decMu sync.RWMutex
	decs  map[model.GateKey]model.FinalDecision

	pubMu sync.RWMutex
	pubs  map[string]model.SessionPublication
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{
		evals: make(map[model.GateKey]model.Evaluation),
		decs:  make(map[model.GateKey]model.FinalDecision),
		pubs:  make(map[string]model.SessionPublication),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// cloneEvaluation deep-copies slices so callers never alias stored state.
func cloneEvaluation(ev model.Evaluation) model.Evaluation {
	out := ev
	out.Items = append([]model.ScoreItem(nil), ev.Items...)
	out.Approvals = append([]model.Approval(nil), ev.Approvals...)
	if ev.ValidatedAt != nil {
		at := *ev.ValidatedAt
		out.ValidatedAt = &at
	}
	return out
}

func cloneDecision(dec model.FinalDecision) model.FinalDecision {
	out := dec
	out.Approvals = append([]model.Approval(nil), dec.Approvals...)
	return out
}

func clonePublication(pub model.SessionPublication) model.SessionPublication {
	out := pub
	if pub.PresidentAt != nil {
		at := *pub.PresidentAt
		out.PresidentAt = &at
	}
	if pub.CommissionerAt != nil {
		at := *pub.CommissionerAt
		out.CommissionerAt = &at
	}
	return out
}

// UpsertEvaluation replaces the whole document.
func (s *MemStore) UpsertEvaluation(_ context.Context, ev model.Evaluation) error {
	defer metrics.ObserveStoreOp("upsert_evaluation", time.Now())
	s.evalMu.Lock()
	defer s.evalMu.Unlock()
	s.evals[ev.Key] = cloneEvaluation(ev)
	return nil
}

// Evaluation returns the document for key.
func (s *MemStore) Evaluation(_ context.Context, key model.GateKey) (model.Evaluation, error) {
	s.evalMu.RLock()
	defer s.evalMu.RUnlock()
	ev, ok := s.evals[key]
	if !ok {
		return model.Evaluation{}, ErrNotFound
	}
	return cloneEvaluation(ev), nil
}

// EvaluationsByFormation returns the formation's evaluations ordered by
// trainee id.
func (s *MemStore) EvaluationsByFormation(_ context.Context, sessionID, formationID string) ([]model.Evaluation, error) {
	s.evalMu.RLock()
	defer s.evalMu.RUnlock()
	var out []model.Evaluation
	for key, ev := range s.evals {
		if key.SessionID == sessionID && key.FormationID == formationID {
			out = append(out, cloneEvaluation(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.TraineeID < out[j].Key.TraineeID })
	return out, nil
}

// AddEvaluationApproval inserts the approval unless the user already signed.
func (s *MemStore) AddEvaluationApproval(_ context.Context, key model.GateKey, ap model.Approval) (model.Evaluation, bool, error) {
	defer metrics.ObserveStoreOp("add_evaluation_approval", time.Now())
	s.evalMu.Lock()
	defer s.evalMu.Unlock()
	ev, ok := s.evals[key]
	if !ok {
		return model.Evaluation{}, false, ErrNotFound
	}
	for _, a := range ev.Approvals {
		if a.UserID == ap.UserID {
			return cloneEvaluation(ev), false, nil
		}
	}
	ev = cloneEvaluation(ev)
	ev.Approvals = append(ev.Approvals, ap)
	if ev.Status == model.StatusDraft {
		ev.Status = model.StatusPendingTeam
	}
	s.evals[key] = ev
	return cloneEvaluation(ev), true, nil
}

// MarkEvaluationValidated promotes to validated, keeping the original
// validator when called twice.
func (s *MemStore) MarkEvaluationValidated(_ context.Context, key model.GateKey, userID string, at time.Time) (model.Evaluation, error) {
	defer metrics.ObserveStoreOp("mark_evaluation_validated", time.Now())
	s.evalMu.Lock()
	defer s.evalMu.Unlock()
	ev, ok := s.evals[key]
	if !ok {
		return model.Evaluation{}, ErrNotFound
	}
	if ev.Status == model.StatusValidated {
		return cloneEvaluation(ev), nil
	}
	ev = cloneEvaluation(ev)
	ev.Status = model.StatusValidated
	ev.ValidatedBy = userID
	ev.ValidatedAt = &at
	s.evals[key] = ev
	return cloneEvaluation(ev), nil
}

// CreateDecision inserts the stub only when absent.
func (s *MemStore) CreateDecision(_ context.Context, dec model.FinalDecision) (bool, error) {
	defer metrics.ObserveStoreOp("create_decision", time.Now())
	s.decMu.Lock()
	defer s.decMu.Unlock()
	if _, ok := s.decs[dec.Key]; ok {
		return false, nil
	}
	s.decs[dec.Key] = cloneDecision(dec)
	return true, nil
}

// Decision returns the document for key.
func (s *MemStore) Decision(_ context.Context, key model.GateKey) (model.FinalDecision, error) {
	s.decMu.RLock()
	defer s.decMu.RUnlock()
	dec, ok := s.decs[key]
	if !ok {
		return model.FinalDecision{}, ErrNotFound
	}
	return cloneDecision(dec), nil
}

// DecisionsByFormation returns the formation's decisions ordered by trainee
// id.
func (s *MemStore) DecisionsByFormation(_ context.Context, sessionID, formationID string) ([]model.FinalDecision, error) {
	s.decMu.RLock()
	defer s.decMu.RUnlock()
	var out []model.FinalDecision
	for key, dec := range s.decs {
		if key.SessionID == sessionID && key.FormationID == formationID {
			out = append(out, cloneDecision(dec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.TraineeID < out[j].Key.TraineeID })
	return out, nil
}

// SetDecisionOutcome sets the outcome and upserts the director's approval.
func (s *MemStore) SetDecisionOutcome(_ context.Context, key model.GateKey, outcome model.Outcome, ap model.Approval) (model.FinalDecision, error) {
	defer metrics.ObserveStoreOp("set_decision_outcome", time.Now())
	s.decMu.Lock()
	defer s.decMu.Unlock()
	dec, ok := s.decs[key]
	if !ok {
		return model.FinalDecision{}, ErrNotFound
	}
	dec = cloneDecision(dec)
	dec.Outcome = outcome
	replaced := false
	for i, a := range dec.Approvals {
		if a.UserID == ap.UserID {
			dec.Approvals[i] = ap
			replaced = true
			break
		}
	}
	if !replaced {
		dec.Approvals = append(dec.Approvals, ap)
	}
	if dec.Status == model.StatusDraft {
		dec.Status = model.StatusPendingTeam
	}
	s.decs[key] = dec
	return cloneDecision(dec), nil
}

// AddDecisionApproval inserts the approval unless the user already signed.
func (s *MemStore) AddDecisionApproval(_ context.Context, key model.GateKey, ap model.Approval) (model.FinalDecision, bool, error) {
	defer metrics.ObserveStoreOp("add_decision_approval", time.Now())
	s.decMu.Lock()
	defer s.decMu.Unlock()
	dec, ok := s.decs[key]
	if !ok {
		return model.FinalDecision{}, false, ErrNotFound
	}
	for _, a := range dec.Approvals {
		if a.UserID == ap.UserID {
			return cloneDecision(dec), false, nil
		}
	}
	dec = cloneDecision(dec)
	dec.Approvals = append(dec.Approvals, ap)
	if dec.Status == model.StatusDraft {
		dec.Status = model.StatusPendingTeam
	}
	s.decs[key] = dec
	return cloneDecision(dec), true, nil
}

// MarkDecisionValidated promotes to validated.
func (s *MemStore) MarkDecisionValidated(_ context.Context, key model.GateKey) (model.FinalDecision, error) {
	defer metrics.ObserveStoreOp("mark_decision_validated", time.Now())
	s.decMu.Lock()
	defer s.decMu.Unlock()
	dec, ok := s.decs[key]
	if !ok {
		return model.FinalDecision{}, ErrNotFound
	}
	if dec.Status == model.StatusValidated {
		return cloneDecision(dec), nil
	}
	dec = cloneDecision(dec)
	dec.Status = model.StatusValidated
	s.decs[key] = dec
	return cloneDecision(dec), nil
}

// Publication returns the session's publication record.
func (s *MemStore) Publication(_ context.Context, sessionID string) (model.SessionPublication, error) {
	s.pubMu.RLock()
	defer s.pubMu.RUnlock()
	pub, ok := s.pubs[sessionID]
	if !ok {
		return model.SessionPublication{}, ErrNotFound
	}
	return clonePublication(pub), nil
}

// SignPublication records the role's signature, creating the record on the
// first one. Visibility flips when both slots are filled and never resets.
func (s *MemStore) SignPublication(_ context.Context, sessionID string, role model.Role, at time.Time) (model.SessionPublication, bool, error) {
	defer metrics.ObserveStoreOp("sign_publication", time.Now())
	if role != model.RolePresident && role != model.RoleCommissioner {
		return model.SessionPublication{}, false, ErrInvalidRole
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	pub, ok := s.pubs[sessionID]
	if !ok {
		pub = model.SessionPublication{SessionID: sessionID}
	}
	pub = clonePublication(pub)
	if _, signed := pub.Signed(role); signed {
		return clonePublication(pub), false, nil
	}
	ts := at
	switch role {
	case model.RolePresident:
		pub.PresidentAt = &ts
	case model.RoleCommissioner:
		pub.CommissionerAt = &ts
	}
	if pub.PresidentAt != nil && pub.CommissionerAt != nil {
		pub.Visible = true
	}
	s.pubs[sessionID] = pub
	return clonePublication(pub), true, nil
}

// Counts reports document totals for monitoring.
func (s *MemStore) Counts(_ context.Context) (evaluations, decisions, publications int) {
	s.evalMu.RLock()
	evaluations = len(s.evals)
	s.evalMu.RUnlock()
	s.decMu.RLock()
	decisions = len(s.decs)
	s.decMu.RUnlock()
	s.pubMu.RLock()
	publications = len(s.pubs)
	s.pubMu.RUnlock()
	return evaluations, decisions, publications
}
