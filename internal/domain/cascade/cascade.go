// Package cascade materializes final-decision stubs once every present
// trainee of a formation holds a validated evaluation. The trigger is
// idempotent by construction: stub creation is a create-if-absent keyed by
// the natural gate key, so redundant or concurrent invocations converge on
// the same final set of stubs. Correctness comes from that upsert semantics,
// not from mutual exclusion around the trigger.
package cascade

import (
	"context"
	"fmt"

	"github.com/okian/jury/internal/adapters/repository"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/internal/domain/roster"
	"github.com/okian/jury/pkg/metrics"
)

// Event reports the effect of the trigger on one trainee's stub. The caller
// decides what to do with it (typically logging).
type Event struct {
	TraineeID string
	Created   bool
}

// Trigger consumes formation-evaluations-changed notifications.
type Trigger struct {
	store    repository.Store
	resolver roster.Resolver
}

// NewTrigger creates a cascade trigger over the given collaborators.
func NewTrigger(store repository.Store, resolver roster.Resolver) *Trigger {
	return &Trigger{store: store, resolver: resolver}
}

// Run re-checks the formation and, when every present trainee's evaluation
// is validated, creates one final-decision stub per present trainee with
// totals frozen from the evaluation items. Returns nil events when the
// formation is not complete yet. Existing stubs are never overwritten.
func (t *Trigger) Run(ctx context.Context, sessionID, formationID string) ([]Event, error) {
	metrics.RecordCascadeRun()

	entries, err := t.resolver.Assignments(ctx, formationID)
	if err != nil {
		return nil, fmt.Errorf("resolve roster: %w", err)
	}
	present := roster.PresentTrainees(entries)
	if len(present) == 0 {
		return nil, nil
	}

	evals, err := t.store.EvaluationsByFormation(ctx, sessionID, formationID)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	validated := make(map[string]model.Evaluation, len(evals))
	for _, ev := range evals {
		if ev.Status == model.StatusValidated {
			validated[ev.Key.TraineeID] = ev
		}
	}
	for _, traineeID := range present {
		if _, ok := validated[traineeID]; !ok {
			// Not all present trainees are done yet.
			return nil, nil
		}
	}

	events := make([]Event, 0, len(present))
	for _, traineeID := range present {
		ev := validated[traineeID]
		score, maxScore := ev.Totals()
		created, err := t.store.CreateDecision(ctx, model.FinalDecision{
			Key:        model.GateKey{SessionID: sessionID, FormationID: formationID, TraineeID: traineeID},
			TotalScore: score,
			TotalMax:   maxScore,
			Status:     model.StatusDraft,
		})
		if err != nil {
			// Partial failures are safe to retry wholesale: the next
			// evaluation transition on any sibling re-invokes the trigger.
			return events, fmt.Errorf("create decision stub for %s: %w", traineeID, err)
		}
		if created {
			metrics.RecordCascadeStub()
		}
		events = append(events, Event{TraineeID: traineeID, Created: created})
	}
	return events, nil
}
