// Command sessiondemo drives one training session through the full
// validation workflow in-process: score submission, team approvals, the
// cascade into final decisions, director outcomes, trainer sign-offs, the
// session rollup and the two national signatures. Useful for demos and for
// eyeballing the rollup output.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	service "github.com/okian/jury/internal/app"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/internal/domain/roster"
	"github.com/okian/jury/pkg/logger"
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := run(context.Background()); err != nil {
		os.Stderr.WriteString("demo failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	sessionID := "session-" + uuid.NewString()[:8]
	formationID := "formation-" + uuid.NewString()[:8]

	director := "director-1"
	trainers := []string{"trainer-1", "trainer-2"}
	trainees := []string{"trainee-1", "trainee-2", "trainee-3"}
	president := "president-1"
	commissioner := "commissioner-1"

	opts := []roster.Option{
		roster.WithFormations(model.Formation{
			FormationID: formationID,
			SessionID:   sessionID,
			Branch:      "scouts",
			Level:       "wood-badge",
			Name:        "demo formation",
		}),
		roster.WithAssignments(model.RosterEntry{
			FormationID: formationID, UserID: director, Role: model.RoleDirector,
		}),
		roster.WithNationalRole(president, model.RolePresident),
		roster.WithNationalRole(commissioner, model.RoleCommissioner),
	}
	for _, t := range trainers {
		opts = append(opts, roster.WithAssignments(model.RosterEntry{
			FormationID: formationID, UserID: t, Role: model.RoleTrainer,
		}))
	}
	for _, t := range trainees {
		opts = append(opts, roster.WithAssignments(model.RosterEntry{
			FormationID: formationID, UserID: t, Role: model.RoleTrainee, Present: true,
		}))
	}
	resolver := roster.NewInMemoryResolver(opts...)

	svc := service.New(
		service.WithResolver(resolver),
		service.WithCatalog(resolver),
		service.WithLogger(logger.Get()),
	)

	items := []model.ScoreItem{
		{CriterionID: "pedagogy", Family: "teaching", Score: 4, MaxScore: 5},
		{CriterionID: "safety", Family: "camp", Score: 5, MaxScore: 5},
		{CriterionID: "leadership", Family: "", Score: 7, MaxScore: 10},
	}

	// Evaluation gate: director submits, then every trainer signs.
	for _, trainee := range trainees {
		if _, err := svc.SubmitEvaluation(ctx, sessionID, formationID, trainee, items, director); err != nil {
			return fmt.Errorf("submit for %s: %w", trainee, err)
		}
		for _, trainer := range trainers {
			if _, err := svc.ApproveEvaluation(ctx, sessionID, formationID, trainee, trainer); err != nil {
				return fmt.Errorf("approve for %s: %w", trainee, err)
			}
		}
	}

	// The cascade has materialized decision stubs; the director decides.
	inputs := []service.DecisionInput{
		{TraineeID: trainees[0], Outcome: model.OutcomeSuccess},
		{TraineeID: trainees[1], Outcome: model.OutcomeSuccess},
		{TraineeID: trainees[2], Outcome: model.OutcomeRetake},
	}
	if _, err := svc.SetFinalDecisions(ctx, sessionID, formationID, inputs, director); err != nil {
		return fmt.Errorf("set decisions: %w", err)
	}
	for _, trainee := range trainees {
		for _, trainer := range trainers {
			if _, err := svc.ApproveFinalDecision(ctx, sessionID, formationID, trainee, trainer); err != nil {
				return fmt.Errorf("approve decision for %s: %w", trainee, err)
			}
		}
	}

	report, err := svc.SessionRollup(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("rollup: %w", err)
	}
	printJSON("rollup", report)

	// National sign-off, order-independent.
	if _, err := svc.ValidateSession(ctx, sessionID, commissioner); err != nil {
		return fmt.Errorf("commissioner sign: %w", err)
	}
	pub, err := svc.ValidateSession(ctx, sessionID, president)
	if err != nil {
		return fmt.Errorf("president sign: %w", err)
	}
	printJSON("publication", pub)
	return nil
}

func printJSON(label string, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%s: %v\n", label, err)
		return
	}
	fmt.Printf("%s:\n%s\n", label, b)
}
