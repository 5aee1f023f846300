// Package repository defines the gate document store interface and errors.
//
// The store is a document store with atomic per-document operations: every
// method touches exactly one document under that document's lock (or
// transaction). There are no multi-document transactions; workflow
// correctness comes from idempotent, field-level operations keyed by natural
// unique keys, not from cross-document atomicity.
package repository

import (
	"context"
	"time"

	"github.com/okian/jury/internal/domain/model"
)

// Store provides read/write access to evaluations, final decisions and
// session publications.
type Store interface {
	// UpsertEvaluation replaces the whole document keyed by ev.Key,
	// creating it if absent. Used by the director submit path.
	UpsertEvaluation(ctx context.Context, ev model.Evaluation) error

	// Evaluation returns the document for key.
	// Returns ErrNotFound if the evaluation is unknown.
	Evaluation(ctx context.Context, key model.GateKey) (model.Evaluation, error)

	// EvaluationsByFormation returns all evaluations for the formation,
	// ordered by trainee id.
	EvaluationsByFormation(ctx context.Context, sessionID, formationID string) ([]model.Evaluation, error)

	// AddEvaluationApproval inserts the approval if the user has not
	// already approved, promoting draft to pending_team. Returns the
	// updated document and whether the approval list changed.
	AddEvaluationApproval(ctx context.Context, key model.GateKey, ap model.Approval) (model.Evaluation, bool, error)

	// MarkEvaluationValidated promotes the evaluation to validated,
	// recording who closed the quorum and when. A no-op on an already
	// validated document: the original validator is kept.
	MarkEvaluationValidated(ctx context.Context, key model.GateKey, userID string, at time.Time) (model.Evaluation, error)

	// CreateDecision inserts the decision stub only when no document
	// exists for dec.Key. Returns false, leaving the existing document
	// untouched, when one does. This is the cascade's idempotency anchor.
	CreateDecision(ctx context.Context, dec model.FinalDecision) (bool, error)

	// Decision returns the document for key.
	// Returns ErrNotFound if the decision is unknown.
	Decision(ctx context.Context, key model.GateKey) (model.FinalDecision, error)

	// DecisionsByFormation returns all decisions for the formation,
	// ordered by trainee id.
	DecisionsByFormation(ctx context.Context, sessionID, formationID string) ([]model.FinalDecision, error)

	// SetDecisionOutcome sets the outcome and upserts the director's
	// approval, promoting draft to pending_team.
	SetDecisionOutcome(ctx context.Context, key model.GateKey, outcome model.Outcome, ap model.Approval) (model.FinalDecision, error)

	// AddDecisionApproval mirrors AddEvaluationApproval for decisions.
	AddDecisionApproval(ctx context.Context, key model.GateKey, ap model.Approval) (model.FinalDecision, bool, error)

	// MarkDecisionValidated promotes the decision to validated. No-op when
	// already validated.
	MarkDecisionValidated(ctx context.Context, key model.GateKey) (model.FinalDecision, error)

	// Publication returns the session's publication record.
	// Returns ErrNotFound when no signatory has acted yet.
	Publication(ctx context.Context, sessionID string) (model.SessionPublication, error)

	// SignPublication records the national role's signature, creating the
	// record on first signature. Signing an already signed slot is a no-op
	// returning false; the prior timestamp is kept. When both slots are
	// set the record becomes visible, and visibility is never reset.
	SignPublication(ctx context.Context, sessionID string, role model.Role, at time.Time) (model.SessionPublication, bool, error)

	// Counts reports document totals for monitoring.
	Counts(ctx context.Context) (evaluations, decisions, publications int)
}
