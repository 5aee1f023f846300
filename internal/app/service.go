// Package service implements the results validation workflow: the
// evaluation gate, the decision gate, the cascade between them, the session
// rollup and the two-signatory session validation. Quorums are always
// re-resolved from the live roster at predicate-evaluation time; nothing
// here caches "who must approve" inside a gate document.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/jury/internal/adapters/repository"
	"github.com/okian/jury/internal/domain/cascade"
	"github.com/okian/jury/internal/domain/gate"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/internal/domain/rollup"
	"github.com/okian/jury/internal/domain/roster"
	"github.com/okian/jury/pkg/logger"
	"github.com/okian/jury/pkg/metrics"
)

// FormationListener consumes formation-evaluations-changed notifications.
// The evaluation gate emits them instead of calling the cascade directly,
// which keeps the two independently testable.
type FormationListener interface {
	OnFormationEvaluationsChanged(ctx context.Context, sessionID, formationID string)
}

// Service exposes the six workflow operations plus observer reads.
type Service struct {
	store    repository.Store
	resolver roster.Resolver
	catalog  roster.Catalog
	reporter *rollup.Reporter

	listeners []FormationListener

	logger logger.Logger
	now    func() time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the gate document store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithResolver sets the roster resolver collaborator.
func WithResolver(resolver roster.Resolver) Option {
	return func(s *Service) {
		if resolver != nil {
			s.resolver = resolver
		}
	}
}

// WithCatalog sets the session catalog collaborator.
func WithCatalog(catalog roster.Catalog) Option {
	return func(s *Service) {
		if catalog != nil {
			s.catalog = catalog
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source. Tests use this for deterministic
// approval timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFormationListener registers an additional listener next to the
// built-in cascade trigger.
func WithFormationListener(l FormationListener) Option {
	return func(s *Service) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

// triggerListener adapts the cascade trigger to FormationListener, logging
// the events it returns. Trigger failures never roll back validated
// evaluation state: the trigger is idempotent and a later sibling approval
// re-invokes it.
type triggerListener struct {
	trigger *cascade.Trigger
	logger  logger.Logger
}

func (t *triggerListener) OnFormationEvaluationsChanged(ctx context.Context, sessionID, formationID string) {
	events, err := t.trigger.Run(ctx, sessionID, formationID)
	if err != nil {
		t.logger.Error(ctx, "cascade trigger failed; safe to retry on next transition",
			logger.String("session", sessionID),
			logger.String("formation", formationID),
			logger.Error(err),
		)
		return
	}
	for _, e := range events {
		t.logger.Info(ctx, "final decision stub",
			logger.String("session", sessionID),
			logger.String("formation", formationID),
			logger.String("trainee", e.TraineeID),
			logger.Bool("created", e.Created),
		)
	}
}

// New constructs a Service. A resolver is required; the store defaults to an
// in-memory one and the cascade trigger is wired as the first listener.
func New(opts ...Option) *Service {
	s := &Service{
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemStore()
	}
	trigger := cascade.NewTrigger(s.store, s.resolver)
	s.listeners = append([]FormationListener{&triggerListener{trigger: trigger, logger: s.logger}}, s.listeners...)
	s.reporter = rollup.NewReporter(s.store, s.resolver, s.catalog)
	return s
}

func (s *Service) notifyFormationChanged(ctx context.Context, sessionID, formationID string) {
	for _, l := range s.listeners {
		l.OnFormationEvaluationsChanged(ctx, sessionID, formationID)
	}
}

// EvaluationView is an evaluation together with its live quorum progress.
type EvaluationView struct {
	model.Evaluation
	Progress gate.Progress `json:"progress"`
}

// DecisionView is a final decision together with its live quorum progress.
type DecisionView struct {
	model.FinalDecision
	Progress gate.Progress `json:"progress"`
}

func normalizeItems(items []model.ScoreItem) ([]model.ScoreItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty item list", ErrValidation)
	}
	out := make([]model.ScoreItem, len(items))
	for i, it := range items {
		if it.Score > it.MaxScore {
			return nil, fmt.Errorf("%w: criterion %s: score %d exceeds max %d",
				ErrValidation, it.CriterionID, it.Score, it.MaxScore)
		}
		// Family defaults to empty; nothing is clamped.
		out[i] = it
	}
	return out, nil
}

// SubmitEvaluation creates or wholesale-replaces the trainee's evaluation.
// Only the formation's current director may submit. Resubmission replaces
// the items and renews the director's own approval; approvals already given
// by other team members are left untouched. A validated evaluation can no
// longer be resubmitted.
func (s *Service) SubmitEvaluation(ctx context.Context, sessionID, formationID, traineeID string, items []model.ScoreItem, actorID string) (EvaluationView, error) {
	entries, err := s.resolver.Assignments(ctx, formationID)
	if err != nil {
		return EvaluationView{}, fmt.Errorf("resolve roster: %w", err)
	}
	if !roster.HasRole(entries, actorID, model.RoleDirector) {
		return EvaluationView{}, fmt.Errorf("%w: %s is not director of formation %s", ErrUnauthorized, actorID, formationID)
	}
	normalized, err := normalizeItems(items)
	if err != nil {
		return EvaluationView{}, err
	}

	key := model.GateKey{SessionID: sessionID, FormationID: formationID, TraineeID: traineeID}
	now := s.now()
	ev := model.Evaluation{
		Key:       key,
		Items:     normalized,
		Status:    model.StatusPendingTeam,
		Approvals: []model.Approval{{UserID: actorID, Role: model.RoleDirector, ApprovedAt: now}},
	}
	existing, err := s.store.Evaluation(ctx, key)
	switch {
	case err == nil:
		if existing.Status == model.StatusValidated {
			return EvaluationView{}, fmt.Errorf("%w: evaluation for %s is already validated", ErrPrecondition, traineeID)
		}
		ev.Approvals = gate.ReplaceApproval(existing.Approvals, actorID, model.RoleDirector, now)
	case errorsIsNotFound(err):
		// First submission.
	default:
		return EvaluationView{}, fmt.Errorf("load evaluation: %w", err)
	}

	if err := s.store.UpsertEvaluation(ctx, ev); err != nil {
		return EvaluationView{}, fmt.Errorf("upsert evaluation: %w", err)
	}
	metrics.RecordApproval("evaluation")
	s.logger.Info(ctx, "evaluation submitted",
		logger.String("session", sessionID),
		logger.String("formation", formationID),
		logger.String("trainee", traineeID),
		logger.Int("items", len(normalized)),
	)
	return s.settleEvaluation(ctx, ev, entries, actorID)
}

// ApproveEvaluation records the actor's sign-off on the trainee's
// evaluation. Only current directors and trainers of the formation may
// approve; a duplicate approval is an idempotent no-op.
func (s *Service) ApproveEvaluation(ctx context.Context, sessionID, formationID, traineeID, actorID string) (EvaluationView, error) {
	entries, err := s.resolver.Assignments(ctx, formationID)
	if err != nil {
		return EvaluationView{}, fmt.Errorf("resolve roster: %w", err)
	}
	if !roster.HasRole(entries, actorID, model.RoleDirector, model.RoleTrainer) {
		return EvaluationView{}, fmt.Errorf("%w: %s is not director or trainer of formation %s", ErrUnauthorized, actorID, formationID)
	}
	// The evaluation cannot exist logically without the trainee's roster
	// entry; resolve the backlink now.
	if _, ok := roster.Entry(entries, traineeID); !ok {
		return EvaluationView{}, fmt.Errorf("%w: trainee %s has no roster entry on formation %s", ErrNotFound, traineeID, formationID)
	}
	actor, _ := roster.Entry(entries, actorID)

	key := model.GateKey{SessionID: sessionID, FormationID: formationID, TraineeID: traineeID}
	ev, added, err := s.store.AddEvaluationApproval(ctx, key, model.Approval{
		UserID: actorID, Role: actor.Role, ApprovedAt: s.now(),
	})
	if errorsIsNotFound(err) {
		return EvaluationView{}, fmt.Errorf("%w: evaluation for trainee %s", ErrNotFound, traineeID)
	}
	if err != nil {
		return EvaluationView{}, fmt.Errorf("add approval: %w", err)
	}
	if added {
		metrics.RecordApproval("evaluation")
	}
	return s.settleEvaluation(ctx, ev, entries, actorID)
}

// settleEvaluation re-derives the completion predicate from current state
// and, when the live quorum is satisfied, promotes the evaluation and
// notifies listeners. The predicate is recomputed every call; there are no
// cached counters, so roster growth mid-flight correctly reopens the gate.
func (s *Service) settleEvaluation(ctx context.Context, ev model.Evaluation, entries []model.RosterEntry, actorID string) (EvaluationView, error) {
	quorum := roster.Quorum(entries, model.RoleDirector, model.RoleTrainer)
	progress := gate.Check(ev.Approvals, quorum, model.RoleDirector, model.RoleTrainer)
	if !progress.Complete() || ev.Status == model.StatusValidated {
		return EvaluationView{Evaluation: ev, Progress: progress}, nil
	}
	validated, err := s.store.MarkEvaluationValidated(ctx, ev.Key, actorID, s.now())
	if err != nil {
		return EvaluationView{}, fmt.Errorf("mark validated: %w", err)
	}
	metrics.RecordGateValidated("evaluation")
	s.logger.Info(ctx, "evaluation validated",
		logger.String("session", ev.Key.SessionID),
		logger.String("formation", ev.Key.FormationID),
		logger.String("trainee", ev.Key.TraineeID),
	)
	s.notifyFormationChanged(ctx, ev.Key.SessionID, ev.Key.FormationID)
	return EvaluationView{Evaluation: validated, Progress: progress}, nil
}

// DecisionInput pairs a trainee with the director-chosen outcome.
type DecisionInput struct {
	TraineeID string        `json:"trainee_id"`
	Outcome   model.Outcome `json:"outcome"`
}

// SetFinalDecisions records outcomes for a batch of trainees. Items whose
// decision stub does not exist, or whose outcome is unknown, are skipped and
// reported; the batch fails only when no item could be applied.
func (s *Service) SetFinalDecisions(ctx context.Context, sessionID, formationID string, inputs []DecisionInput, actorID string) ([]DecisionView, error) {
	entries, err := s.resolver.Assignments(ctx, formationID)
	if err != nil {
		return nil, fmt.Errorf("resolve roster: %w", err)
	}
	if !roster.HasRole(entries, actorID, model.RoleDirector) {
		return nil, fmt.Errorf("%w: %s is not director of formation %s", ErrUnauthorized, actorID, formationID)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no decisions to save", ErrValidation)
	}

	var (
		applied []DecisionView
		skipped []error
	)
	for _, in := range inputs {
		if !in.Outcome.Valid() {
			skipped = append(skipped, fmt.Errorf("%w: trainee %s: unknown outcome %q", ErrValidation, in.TraineeID, in.Outcome))
			continue
		}
		key := model.GateKey{SessionID: sessionID, FormationID: formationID, TraineeID: in.TraineeID}
		dec, err := s.store.SetDecisionOutcome(ctx, key, in.Outcome, model.Approval{
			UserID: actorID, Role: model.RoleDirector, ApprovedAt: s.now(),
		})
		if errorsIsNotFound(err) {
			skipped = append(skipped, fmt.Errorf("%w: no decision stub for trainee %s", ErrNotFound, in.TraineeID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("set outcome for %s: %w", in.TraineeID, err)
		}
		view, err := s.settleDecision(ctx, dec, entries)
		if err != nil {
			return nil, err
		}
		applied = append(applied, view)
	}
	for _, err := range skipped {
		s.logger.Warn(ctx, "decision item skipped", logger.Error(err))
	}
	if len(applied) == 0 {
		return nil, fmt.Errorf("%w: no decisions to save", ErrValidation)
	}
	return applied, nil
}

// ApproveFinalDecision records the actor's sign-off on the trainee's final
// decision. Assistants and coaches may read results but never approve.
func (s *Service) ApproveFinalDecision(ctx context.Context, sessionID, formationID, traineeID, actorID string) (DecisionView, error) {
	entries, err := s.resolver.Assignments(ctx, formationID)
	if err != nil {
		return DecisionView{}, fmt.Errorf("resolve roster: %w", err)
	}
	if !roster.HasRole(entries, actorID, model.RoleDirector, model.RoleTrainer) {
		return DecisionView{}, fmt.Errorf("%w: %s is not director or trainer of formation %s", ErrUnauthorized, actorID, formationID)
	}
	actor, _ := roster.Entry(entries, actorID)

	key := model.GateKey{SessionID: sessionID, FormationID: formationID, TraineeID: traineeID}
	dec, added, err := s.store.AddDecisionApproval(ctx, key, model.Approval{
		UserID: actorID, Role: actor.Role, ApprovedAt: s.now(),
	})
	if errorsIsNotFound(err) {
		return DecisionView{}, fmt.Errorf("%w: no decision stub for trainee %s", ErrNotFound, traineeID)
	}
	if err != nil {
		return DecisionView{}, fmt.Errorf("add approval: %w", err)
	}
	if added {
		metrics.RecordApproval("decision")
	}
	return s.settleDecision(ctx, dec, entries)
}

// settleDecision re-checks the decision gate: every live trainer approved
// and an outcome chosen. Director approval is implied by the outcome-setting
// action itself and is not part of the quorum.
func (s *Service) settleDecision(ctx context.Context, dec model.FinalDecision, entries []model.RosterEntry) (DecisionView, error) {
	trainers := roster.Quorum(entries, model.RoleTrainer)
	progress := gate.Check(dec.Approvals, trainers, model.RoleTrainer, model.RoleDirector)
	if !progress.Complete() || !dec.Outcome.Valid() || dec.Status == model.StatusValidated {
		return DecisionView{FinalDecision: dec, Progress: progress}, nil
	}
	validated, err := s.store.MarkDecisionValidated(ctx, dec.Key)
	if err != nil {
		return DecisionView{}, fmt.Errorf("mark validated: %w", err)
	}
	metrics.RecordGateValidated("decision")
	s.logger.Info(ctx, "final decision validated",
		logger.String("session", dec.Key.SessionID),
		logger.String("formation", dec.Key.FormationID),
		logger.String("trainee", dec.Key.TraineeID),
		logger.String("outcome", string(validated.Outcome)),
	)
	return DecisionView{FinalDecision: validated, Progress: progress}, nil
}

// SessionRollup computes the nested counters for a session. Read-only and
// safe to recompute on every request.
func (s *Service) SessionRollup(ctx context.Context, sessionID string) (rollup.SessionReport, error) {
	return s.reporter.Build(ctx, sessionID)
}

// ValidateSession records a national signatory's approval. It requires every
// formation of the session to be fully decided. Re-signing by the same role
// is a no-op success reporting the prior timestamp. Once both signatories
// have signed, the session becomes visible and never reverts.
func (s *Service) ValidateSession(ctx context.Context, sessionID, actorID string) (model.SessionPublication, error) {
	role, ok, err := s.resolver.NationalRole(ctx, actorID)
	if err != nil {
		return model.SessionPublication{}, fmt.Errorf("resolve national role: %w", err)
	}
	if !ok || (role != model.RolePresident && role != model.RoleCommissioner) {
		return model.SessionPublication{}, fmt.Errorf("%w: %s is neither president nor commissioner", ErrUnauthorized, actorID)
	}

	report, err := s.reporter.Build(ctx, sessionID)
	if err != nil {
		return model.SessionPublication{}, fmt.Errorf("build rollup: %w", err)
	}
	if !report.AllFormationsValidated {
		done, total := countValidatedFormations(report)
		return model.SessionPublication{}, fmt.Errorf("%w: %d of %d formations validated for session %s",
			ErrPrecondition, done, total, sessionID)
	}

	pub, signed, err := s.store.SignPublication(ctx, sessionID, role, s.now())
	if err != nil {
		return model.SessionPublication{}, fmt.Errorf("sign publication: %w", err)
	}
	if signed {
		metrics.RecordSignature(string(role))
		if pub.Visible {
			metrics.RecordSessionPublished()
		}
		s.logger.Info(ctx, "session signed",
			logger.String("session", sessionID),
			logger.String("role", string(role)),
			logger.Bool("visible", pub.Visible),
		)
	}
	return pub, nil
}

func countValidatedFormations(report rollup.SessionReport) (done, total int) {
	for _, level := range report.Levels {
		for _, branch := range level.Branches {
			for _, formation := range branch.Formations {
				total++
				if formation.Validated {
					done++
				}
			}
		}
	}
	return done, total
}

// FormationResults is the observer-facing result table for one formation.
type FormationResults struct {
	Decisions   []DecisionView   `json:"decisions"`
	Evaluations []EvaluationView `json:"evaluations"`
}

// FormationResults returns the formation's result table. Directors and
// trainers always read their own formation. Assistants and coaches read
// only once every live trainer has approved at least one decision in the
// formation. This is a release gate on top of the data-level predicates, not
// a correctness invariant.
func (s *Service) FormationResults(ctx context.Context, sessionID, formationID, actorID string) (FormationResults, error) {
	entries, err := s.resolver.Assignments(ctx, formationID)
	if err != nil {
		return FormationResults{}, fmt.Errorf("resolve roster: %w", err)
	}
	decisions, err := s.store.DecisionsByFormation(ctx, sessionID, formationID)
	if err != nil {
		return FormationResults{}, fmt.Errorf("list decisions: %w", err)
	}

	switch {
	case roster.HasRole(entries, actorID, model.RoleDirector, model.RoleTrainer):
		// Full access.
	case roster.HasRole(entries, actorID, model.RoleAssistant, model.RoleCoach):
		if !teamFinished(entries, decisions) {
			return FormationResults{}, fmt.Errorf("%w: results not yet released to observers of formation %s", ErrPrecondition, formationID)
		}
	default:
		return FormationResults{}, fmt.Errorf("%w: %s has no reading role on formation %s", ErrUnauthorized, actorID, formationID)
	}

	evals, err := s.store.EvaluationsByFormation(ctx, sessionID, formationID)
	if err != nil {
		return FormationResults{}, fmt.Errorf("list evaluations: %w", err)
	}

	out := FormationResults{}
	quorum := roster.Quorum(entries, model.RoleDirector, model.RoleTrainer)
	trainers := roster.Quorum(entries, model.RoleTrainer)
	for _, ev := range evals {
		out.Evaluations = append(out.Evaluations, EvaluationView{
			Evaluation: ev,
			Progress:   gate.Check(ev.Approvals, quorum, model.RoleDirector, model.RoleTrainer),
		})
	}
	for _, dec := range decisions {
		out.Decisions = append(out.Decisions, DecisionView{
			FinalDecision: dec,
			Progress:      gate.Check(dec.Approvals, trainers, model.RoleTrainer, model.RoleDirector),
		})
	}
	return out, nil
}

// teamFinished reports whether every live trainer has approved at least one
// decision in the formation. Used as a proxy for "the team is done".
func teamFinished(entries []model.RosterEntry, decisions []model.FinalDecision) bool {
	trainers := roster.Quorum(entries, model.RoleTrainer)
	if len(trainers) == 0 {
		return false
	}
	for _, trainerID := range trainers {
		approvedOne := false
		for _, dec := range decisions {
			if gate.HasApproved(dec.Approvals, trainerID) {
				approvedOne = true
				break
			}
		}
		if !approvedOne {
			return false
		}
	}
	return true
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	evaluations, decisions, publications := s.store.Counts(context.Background())
	metrics.UpdateDocumentCounts(evaluations, decisions, publications)
	return map[string]interface{}{
		"evaluations":  evaluations,
		"decisions":    decisions,
		"publications": publications,
	}
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
