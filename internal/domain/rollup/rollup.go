// Package rollup folds validated final decisions into nested participation
// and outcome counters: formation, branch, training level, session. The
// computation owns no storage and never mutates gate state; it is recomputed
// from the store on every request and is therefore trivially consistent with
// the write side.
package rollup

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/okian/jury/internal/adapters/repository"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/internal/domain/roster"
)

// Counters accumulates participation and outcome totals.
type Counters struct {
	Participants int `json:"participants"`
	Present      int `json:"present"`
	Success      int `json:"success"`
	Retake       int `json:"retake"`
	Incompatible int `json:"incompatible"`
}

func (c *Counters) add(o Counters) {
	c.Participants += o.Participants
	c.Present += o.Present
	c.Success += o.Success
	c.Retake += o.Retake
	c.Incompatible += o.Incompatible
}

// SuccessRate returns the percentage of present trainees with a success
// outcome, rounded to one decimal. Zero when nobody is present, never NaN.
func (c Counters) SuccessRate() float64 {
	if c.Present == 0 {
		return 0
	}
	return math.Round(float64(c.Success)/float64(c.Present)*1000) / 10
}

// FormationReport is one formation's slice of the rollup.
type FormationReport struct {
	FormationID string `json:"formation_id"`
	Name        string `json:"name,omitempty"`
	Branch      string `json:"branch"`
	Level       string `json:"level"`
	Validated   bool   `json:"validated"`
	Counters
	SuccessRate float64 `json:"success_rate"`
}

// BranchReport folds a branch's formations.
type BranchReport struct {
	Branch string `json:"branch"`
	Counters
	SuccessRate float64           `json:"success_rate"`
	Formations  []FormationReport `json:"formations"`
}

// LevelReport folds a training level's branches.
type LevelReport struct {
	Level string `json:"level"`
	Counters
	SuccessRate float64        `json:"success_rate"`
	Branches    []BranchReport `json:"branches"`
}

// SessionReport is the full nested rollup for one session.
type SessionReport struct {
	SessionID string `json:"session_id"`
	Counters
	SuccessRate            float64       `json:"success_rate"`
	Levels                 []LevelReport `json:"levels"`
	AllFormationsValidated bool          `json:"all_formations_validated"`
}

// BuildFormation computes one formation's report from its live roster and
// current decisions. Pure; exported for direct testing.
func BuildFormation(formation model.Formation, entries []model.RosterEntry, decisions []model.FinalDecision) FormationReport {
	report := FormationReport{
		FormationID: formation.FormationID,
		Name:        formation.Name,
		Branch:      formation.Branch,
		Level:       formation.Level,
	}
	byTrainee := make(map[string]model.FinalDecision, len(decisions))
	for _, dec := range decisions {
		byTrainee[dec.Key.TraineeID] = dec
	}
	var present []string
	for _, e := range entries {
		if e.Role != model.RoleTrainee {
			continue
		}
		report.Participants++
		if e.Present {
			report.Present++
			present = append(present, e.UserID)
		}
	}
	// A formation with zero present trainees counts as trivially validated.
	report.Validated = true
	for _, traineeID := range present {
		dec, ok := byTrainee[traineeID]
		if !ok || dec.Status != model.StatusValidated {
			report.Validated = false
			continue
		}
		switch dec.Outcome {
		case model.OutcomeSuccess:
			report.Success++
		case model.OutcomeRetake:
			report.Retake++
		case model.OutcomeIncompatible:
			report.Incompatible++
		}
	}
	report.SuccessRate = report.Counters.SuccessRate()
	return report
}

// Reporter builds session reports on demand.
type Reporter struct {
	store    repository.Store
	resolver roster.Resolver
	catalog  roster.Catalog
}

// NewReporter creates a reporter over the given collaborators.
func NewReporter(store repository.Store, resolver roster.Resolver, catalog roster.Catalog) *Reporter {
	return &Reporter{store: store, resolver: resolver, catalog: catalog}
}

// Build computes the nested rollup for a session. Read-only.
func (r *Reporter) Build(ctx context.Context, sessionID string) (SessionReport, error) {
	formations, err := r.catalog.Formations(ctx, sessionID)
	if err != nil {
		return SessionReport{}, fmt.Errorf("list formations: %w", err)
	}

	report := SessionReport{SessionID: sessionID, AllFormationsValidated: true}
	byLevel := make(map[string]map[string][]FormationReport)
	for _, formation := range formations {
		entries, err := r.resolver.Assignments(ctx, formation.FormationID)
		if err != nil {
			return SessionReport{}, fmt.Errorf("resolve roster: %w", err)
		}
		decisions, err := r.store.DecisionsByFormation(ctx, sessionID, formation.FormationID)
		if err != nil {
			return SessionReport{}, fmt.Errorf("list decisions: %w", err)
		}
		fr := BuildFormation(formation, entries, decisions)
		if !fr.Validated {
			report.AllFormationsValidated = false
		}
		if byLevel[formation.Level] == nil {
			byLevel[formation.Level] = make(map[string][]FormationReport)
		}
		byLevel[formation.Level][formation.Branch] = append(byLevel[formation.Level][formation.Branch], fr)
	}

	for _, level := range sortedKeys(byLevel) {
		lr := LevelReport{Level: level}
		for _, branch := range sortedKeys(byLevel[level]) {
			br := BranchReport{Branch: branch}
			formations := byLevel[level][branch]
			sort.Slice(formations, func(i, j int) bool {
				return formations[i].FormationID < formations[j].FormationID
			})
			for _, fr := range formations {
				br.Counters.add(fr.Counters)
			}
			br.Formations = formations
			br.SuccessRate = br.Counters.SuccessRate()
			lr.Counters.add(br.Counters)
			lr.Branches = append(lr.Branches, br)
		}
		lr.SuccessRate = lr.Counters.SuccessRate()
		report.Counters.add(lr.Counters)
		report.Levels = append(report.Levels, lr)
	}
	report.SuccessRate = report.Counters.SuccessRate()
	return report, nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
