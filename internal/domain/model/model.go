// Package model contains domain models passed between layers.
package model

import "time"

// Role identifies what a user does on a formation or nationally.
type Role string

// Formation-scoped and national roles.
const (
	RoleDirector     Role = "director"
	RoleTrainer      Role = "trainer"
	RoleAssistant    Role = "assistant"
	RoleCoach        Role = "coach"
	RoleTrainee      Role = "trainee"
	RolePresident    Role = "president"
	RoleCommissioner Role = "commissioner"
)

// Status is the lifecycle position of an approval gate record.
type Status string

// Gate lifecycle states. A record only moves forward; regression to
// pending_team happens solely through an explicit director resubmission.
const (
	StatusDraft       Status = "draft"
	StatusPendingTeam Status = "pending_team"
	StatusValidated   Status = "validated"
)

// Outcome is the director-chosen result for a trainee.
type Outcome string

// Possible final outcomes. The zero value means "not decided yet".
const (
	OutcomeSuccess      Outcome = "success"
	OutcomeRetake       Outcome = "retake"
	OutcomeIncompatible Outcome = "incompatible"
	OutcomeUnset        Outcome = ""
)

// Valid reports whether o is one of the three decided outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeRetake, OutcomeIncompatible:
		return true
	default:
		return false
	}
}

// GateKey is the natural unique key shared by evaluations and decisions.
type GateKey struct {
	SessionID   string `json:"session_id"`
	FormationID string `json:"formation_id"`
	TraineeID   string `json:"trainee_id"`
}

// ScoreItem is one per-criterion score inside an evaluation. Items are
// immutable once captured; a director resubmission replaces the whole list.
type ScoreItem struct {
	CriterionID string `json:"criterion_id"`
	Family      string `json:"family"`
	Score       int    `json:"score"`
	MaxScore    int    `json:"max_score"`
}

// Approval records one team member's sign-off. Approval lists are keyed by
// user id and never contain duplicates.
type Approval struct {
	UserID     string    `json:"user_id"`
	Role       Role      `json:"role"`
	ApprovedAt time.Time `json:"approved_at"`
}

// Evaluation is the per-trainee scoring record owned by the formation team.
// Items preserve submission order and are never re-sorted.
type Evaluation struct {
	Key         GateKey     `json:"key"`
	Items       []ScoreItem `json:"items"`
	Status      Status      `json:"status"`
	Approvals   []Approval  `json:"approvals"`
	ValidatedBy string      `json:"validated_by,omitempty"`
	ValidatedAt *time.Time  `json:"validated_at,omitempty"`
}

// Totals sums the item scores. Integer arithmetic, no rounding.
func (e Evaluation) Totals() (score, maxScore int) {
	for _, it := range e.Items {
		score += it.Score
		maxScore += it.MaxScore
	}
	return score, maxScore
}

// FinalDecision is the per-trainee pass/retake/fail record. TotalScore and
// TotalMax are a frozen snapshot of the evaluation items at stub-creation
// time, not a live link.
type FinalDecision struct {
	Key        GateKey    `json:"key"`
	TotalScore int        `json:"total_score"`
	TotalMax   int        `json:"total_max"`
	Outcome    Outcome    `json:"outcome,omitempty"`
	Status     Status     `json:"status"`
	Approvals  []Approval `json:"approvals"`
}

// SessionPublication holds the two national signatures gating publication.
// Visible is monotonic: once true it is never reset by this core.
type SessionPublication struct {
	SessionID      string     `json:"session_id"`
	PresidentAt    *time.Time `json:"president_at,omitempty"`
	CommissionerAt *time.Time `json:"commissioner_at,omitempty"`
	Visible        bool       `json:"visible"`
}

// Signed reports whether the given national role has already signed.
func (p SessionPublication) Signed(role Role) (time.Time, bool) {
	switch role {
	case RolePresident:
		if p.PresidentAt != nil {
			return *p.PresidentAt, true
		}
	case RoleCommissioner:
		if p.CommissionerAt != nil {
			return *p.CommissionerAt, true
		}
	}
	return time.Time{}, false
}

// RosterEntry is a live role assignment on a formation. It is an external
// fact: the core re-reads it on every quorum check and must tolerate the
// roster changing between reads.
type RosterEntry struct {
	FormationID string `json:"formation_id" koanf:"formation_id"`
	UserID      string `json:"user_id" koanf:"user_id"`
	Role        Role   `json:"role" koanf:"role"`
	Present     bool   `json:"present" koanf:"present"`
}

// Formation is catalog metadata used by the rollup to fold counters upward.
type Formation struct {
	FormationID string `json:"formation_id" koanf:"formation_id"`
	SessionID   string `json:"session_id" koanf:"session_id"`
	Branch      string `json:"branch" koanf:"branch"`
	Level       string `json:"level" koanf:"level"`
	Name        string `json:"name,omitempty" koanf:"name"`
}
