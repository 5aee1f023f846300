package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/jury/internal/adapters/repository"
	service "github.com/okian/jury/internal/app"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/internal/domain/roster"
	. "github.com/smartystreets/goconvey/convey"
)

const (
	sessionID   = "session-1"
	formationID = "formation-1"
)

// newFixture wires a service over a seeded roster: one director, two
// trainers, one assistant, two present trainees and both national
// signatories.
func newFixture() (*service.Service, *roster.InMemoryResolver, repository.Store) {
	resolver := roster.NewInMemoryResolver(
		roster.WithFormations(model.Formation{
			FormationID: formationID, SessionID: sessionID, Branch: "scouts", Level: "wood-badge",
		}),
		roster.WithAssignments(
			model.RosterEntry{FormationID: formationID, UserID: "director-1", Role: model.RoleDirector},
			model.RosterEntry{FormationID: formationID, UserID: "trainer-1", Role: model.RoleTrainer},
			model.RosterEntry{FormationID: formationID, UserID: "trainer-2", Role: model.RoleTrainer},
			model.RosterEntry{FormationID: formationID, UserID: "assistant-1", Role: model.RoleAssistant},
			model.RosterEntry{FormationID: formationID, UserID: "trainee-1", Role: model.RoleTrainee, Present: true},
			model.RosterEntry{FormationID: formationID, UserID: "trainee-2", Role: model.RoleTrainee, Present: true},
		),
		roster.WithNationalRole("president-1", model.RolePresident),
		roster.WithNationalRole("commissioner-1", model.RoleCommissioner),
	)
	store := repository.NewMemStore()
	svc := service.New(
		service.WithStore(store),
		service.WithResolver(resolver),
		service.WithCatalog(resolver),
	)
	return svc, resolver, store
}

func scoreItems() []model.ScoreItem {
	return []model.ScoreItem{
		{CriterionID: "pedagogy", Family: "teaching", Score: 4, MaxScore: 5},
		{CriterionID: "safety", Family: "camp", Score: 5, MaxScore: 5},
		{CriterionID: "leadership", Score: 7, MaxScore: 10},
	}
}

// validateEvaluation walks one trainee's evaluation through the full team
// quorum.
func validateEvaluation(ctx context.Context, svc *service.Service, traineeID string) error {
	if _, err := svc.SubmitEvaluation(ctx, sessionID, formationID, traineeID, scoreItems(), "director-1"); err != nil {
		return err
	}
	for _, trainer := range []string{"trainer-1", "trainer-2"} {
		if _, err := svc.ApproveEvaluation(ctx, sessionID, formationID, traineeID, trainer); err != nil {
			return err
		}
	}
	return nil
}

func TestSubmitEvaluation(t *testing.T) {
	Convey("Given a freshly wired service", t, func() {
		ctx := context.Background()
		svc, _, _ := newFixture()

		Convey("When a trainer tries to submit", func() {
			_, err := svc.SubmitEvaluation(ctx, sessionID, formationID, "trainee-1", scoreItems(), "trainer-1")
			So(errors.Is(err, service.ErrUnauthorized), ShouldBeTrue)
		})

		Convey("When the director submits an empty item list", func() {
			_, err := svc.SubmitEvaluation(ctx, sessionID, formationID, "trainee-1", nil, "director-1")
			So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
		})

		Convey("When an item's score exceeds its max", func() {
			items := []model.ScoreItem{{CriterionID: "pedagogy", Score: 6, MaxScore: 5}}
			_, err := svc.SubmitEvaluation(ctx, sessionID, formationID, "trainee-1", items, "director-1")
			So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
		})

		Convey("When the director submits valid items", func() {
			view, err := svc.SubmitEvaluation(ctx, sessionID, formationID, "trainee-1", scoreItems(), "director-1")
			So(err, ShouldBeNil)

			Convey("Then the director's submission counts as their approval", func() {
				So(view.Status, ShouldEqual, model.StatusPendingTeam)
				So(view.Approvals, ShouldHaveLength, 1)
				So(view.Approvals[0].UserID, ShouldEqual, "director-1")
				So(view.Progress.Approved, ShouldEqual, 1)
				So(view.Progress.Required, ShouldEqual, 3)
				So(view.Progress.Missing, ShouldResemble, []string{"trainer-1", "trainer-2"})
			})

			Convey("And resubmission keeps approvals already given by others", func() {
				_, err := svc.ApproveEvaluation(ctx, sessionID, formationID, "trainee-1", "trainer-1")
				So(err, ShouldBeNil)

				view, err := svc.SubmitEvaluation(ctx, sessionID, formationID, "trainee-1",
					[]model.ScoreItem{{CriterionID: "pedagogy", Score: 2, MaxScore: 5}}, "director-1")
				So(err, ShouldBeNil)
				So(view.Items, ShouldHaveLength, 1)
				So(view.Progress.Approved, ShouldEqual, 2)
				So(view.Progress.Missing, ShouldResemble, []string{"trainer-2"})
			})
		})
	})
}

func TestApproveEvaluation(t *testing.T) {
	Convey("Given a submitted evaluation", t, func() {
		ctx := context.Background()
		svc, resolver, _ := newFixture()
		_, err := svc.SubmitEvaluation(ctx, sessionID, formationID, "trainee-1", scoreItems(), "director-1")
		So(err, ShouldBeNil)

		Convey("When an assistant tries to approve", func() {
			_, err := svc.ApproveEvaluation(ctx, sessionID, formationID, "trainee-1", "assistant-1")
			So(errors.Is(err, service.ErrUnauthorized), ShouldBeTrue)
		})

		Convey("When a trainer approves an unknown trainee", func() {
			_, err := svc.ApproveEvaluation(ctx, sessionID, formationID, "nobody", "trainer-1")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a trainer approves twice", func() {
			first, err := svc.ApproveEvaluation(ctx, sessionID, formationID, "trainee-1", "trainer-1")
			So(err, ShouldBeNil)
			second, err := svc.ApproveEvaluation(ctx, sessionID, formationID, "trainee-1", "trainer-1")
			So(err, ShouldBeNil)

			Convey("Then the second approval changes nothing", func() {
				So(first.Progress.Approved, ShouldEqual, 2)
				So(second.Progress.Approved, ShouldEqual, 2)
				So(second.Approvals, ShouldHaveLength, 2)
			})
		})

		Convey("When the full team signs", func() {
			_, err := svc.ApproveEvaluation(ctx, sessionID, formationID, "trainee-1", "trainer-1")
			So(err, ShouldBeNil)
			view, err := svc.ApproveEvaluation(ctx, sessionID, formationID, "trainee-1", "trainer-2")
			So(err, ShouldBeNil)

			Convey("Then the evaluation validates", func() {
				So(view.Status, ShouldEqual, model.StatusValidated)
				So(view.ValidatedAt, ShouldNotBeNil)
			})

			Convey("And resubmission is rejected once validated", func() {
				_, err := svc.SubmitEvaluation(ctx, sessionID, formationID, "trainee-1", scoreItems(), "director-1")
				So(errors.Is(err, service.ErrPrecondition), ShouldBeTrue)
			})
		})

		Convey("When a trainer joins the roster mid-flight", func() {
			_, err := svc.ApproveEvaluation(ctx, sessionID, formationID, "trainee-1", "trainer-1")
			So(err, ShouldBeNil)
			resolver.Assign(model.RosterEntry{FormationID: formationID, UserID: "trainer-3", Role: model.RoleTrainer})

			view, err := svc.ApproveEvaluation(ctx, sessionID, formationID, "trainee-1", "trainer-2")
			So(err, ShouldBeNil)

			Convey("Then the larger quorum keeps the gate open", func() {
				So(view.Status, ShouldEqual, model.StatusPendingTeam)
				So(view.Progress.Required, ShouldEqual, 4)
				So(view.Progress.Missing, ShouldResemble, []string{"trainer-3"})
			})
		})
	})
}

func TestCascadeIntoDecisions(t *testing.T) {
	Convey("Given a formation with two present trainees", t, func() {
		ctx := context.Background()
		svc, _, store := newFixture()

		Convey("When only one trainee's evaluation is validated", func() {
			So(validateEvaluation(ctx, svc, "trainee-1"), ShouldBeNil)

			Convey("Then no decision stubs exist yet", func() {
				_, decisions, _ := store.Counts(ctx)
				So(decisions, ShouldEqual, 0)
			})
		})

		Convey("When both trainees' evaluations are validated", func() {
			So(validateEvaluation(ctx, svc, "trainee-1"), ShouldBeNil)
			So(validateEvaluation(ctx, svc, "trainee-2"), ShouldBeNil)

			Convey("Then a draft stub with frozen totals exists per trainee", func() {
				for _, trainee := range []string{"trainee-1", "trainee-2"} {
					dec, err := store.Decision(ctx, model.GateKey{
						SessionID: sessionID, FormationID: formationID, TraineeID: trainee,
					})
					So(err, ShouldBeNil)
					So(dec.Status, ShouldEqual, model.StatusDraft)
					So(dec.TotalScore, ShouldEqual, 16)
					So(dec.TotalMax, ShouldEqual, 20)
					So(dec.Outcome, ShouldEqual, model.OutcomeUnset)
				}
			})
		})
	})
}

func TestSetFinalDecisions(t *testing.T) {
	Convey("Given validated evaluations for both trainees", t, func() {
		ctx := context.Background()
		svc, _, _ := newFixture()
		So(validateEvaluation(ctx, svc, "trainee-1"), ShouldBeNil)
		So(validateEvaluation(ctx, svc, "trainee-2"), ShouldBeNil)

		Convey("When a trainer tries to set outcomes", func() {
			inputs := []service.DecisionInput{{TraineeID: "trainee-1", Outcome: model.OutcomeSuccess}}
			_, err := svc.SetFinalDecisions(ctx, sessionID, formationID, inputs, "trainer-1")
			So(errors.Is(err, service.ErrUnauthorized), ShouldBeTrue)
		})

		Convey("When the director sends an empty batch", func() {
			_, err := svc.SetFinalDecisions(ctx, sessionID, formationID, nil, "director-1")
			So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
		})

		Convey("When the batch mixes valid and broken items", func() {
			inputs := []service.DecisionInput{
				{TraineeID: "trainee-1", Outcome: model.OutcomeSuccess},
				{TraineeID: "trainee-2", Outcome: "graduated"},
				{TraineeID: "nobody", Outcome: model.OutcomeRetake},
			}
			views, err := svc.SetFinalDecisions(ctx, sessionID, formationID, inputs, "director-1")
			So(err, ShouldBeNil)

			Convey("Then only the valid item is applied", func() {
				So(views, ShouldHaveLength, 1)
				So(views[0].Key.TraineeID, ShouldEqual, "trainee-1")
				So(views[0].Outcome, ShouldEqual, model.OutcomeSuccess)
				So(views[0].Status, ShouldEqual, model.StatusPendingTeam)
			})
		})

		Convey("When no item in the batch can be applied", func() {
			inputs := []service.DecisionInput{{TraineeID: "nobody", Outcome: model.OutcomeRetake}}
			_, err := svc.SetFinalDecisions(ctx, sessionID, formationID, inputs, "director-1")
			So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
		})

		Convey("When the director revises an outcome before validation", func() {
			inputs := []service.DecisionInput{{TraineeID: "trainee-1", Outcome: model.OutcomeRetake}}
			_, err := svc.SetFinalDecisions(ctx, sessionID, formationID, inputs, "director-1")
			So(err, ShouldBeNil)

			inputs[0].Outcome = model.OutcomeSuccess
			views, err := svc.SetFinalDecisions(ctx, sessionID, formationID, inputs, "director-1")
			So(err, ShouldBeNil)
			So(views[0].Outcome, ShouldEqual, model.OutcomeSuccess)
			So(views[0].Approvals, ShouldHaveLength, 1)
		})
	})
}

func TestApproveFinalDecision(t *testing.T) {
	Convey("Given decision stubs with outcomes set", t, func() {
		ctx := context.Background()
		svc, _, _ := newFixture()
		So(validateEvaluation(ctx, svc, "trainee-1"), ShouldBeNil)
		So(validateEvaluation(ctx, svc, "trainee-2"), ShouldBeNil)
		_, err := svc.SetFinalDecisions(ctx, sessionID, formationID, []service.DecisionInput{
			{TraineeID: "trainee-1", Outcome: model.OutcomeSuccess},
			{TraineeID: "trainee-2", Outcome: model.OutcomeRetake},
		}, "director-1")
		So(err, ShouldBeNil)

		Convey("When an assistant tries to approve", func() {
			_, err := svc.ApproveFinalDecision(ctx, sessionID, formationID, "trainee-1", "assistant-1")
			So(errors.Is(err, service.ErrUnauthorized), ShouldBeTrue)
		})

		Convey("When one trainer approves", func() {
			view, err := svc.ApproveFinalDecision(ctx, sessionID, formationID, "trainee-1", "trainer-1")
			So(err, ShouldBeNil)

			Convey("Then the decision stays pending until every trainer signs", func() {
				So(view.Status, ShouldEqual, model.StatusPendingTeam)
				So(view.Progress.Missing, ShouldResemble, []string{"trainer-2"})
			})
		})

		Convey("When every trainer approves", func() {
			_, err := svc.ApproveFinalDecision(ctx, sessionID, formationID, "trainee-1", "trainer-1")
			So(err, ShouldBeNil)
			view, err := svc.ApproveFinalDecision(ctx, sessionID, formationID, "trainee-1", "trainer-2")
			So(err, ShouldBeNil)

			Convey("Then the decision validates with its outcome", func() {
				So(view.Status, ShouldEqual, model.StatusValidated)
				So(view.Outcome, ShouldEqual, model.OutcomeSuccess)
			})
		})
	})

	Convey("Given a stub whose outcome was never set", t, func() {
		ctx := context.Background()
		svc, _, _ := newFixture()
		So(validateEvaluation(ctx, svc, "trainee-1"), ShouldBeNil)
		So(validateEvaluation(ctx, svc, "trainee-2"), ShouldBeNil)

		Convey("When every trainer approves it anyway", func() {
			_, err := svc.ApproveFinalDecision(ctx, sessionID, formationID, "trainee-1", "trainer-1")
			So(err, ShouldBeNil)
			view, err := svc.ApproveFinalDecision(ctx, sessionID, formationID, "trainee-1", "trainer-2")
			So(err, ShouldBeNil)

			Convey("Then it cannot validate without an outcome", func() {
				So(view.Progress.Complete(), ShouldBeTrue)
				So(view.Status, ShouldNotEqual, model.StatusValidated)
			})
		})
	})
}

// finishFormation runs both trainees end to end through both gates.
func finishFormation(ctx context.Context, svc *service.Service) error {
	for _, trainee := range []string{"trainee-1", "trainee-2"} {
		if err := validateEvaluation(ctx, svc, trainee); err != nil {
			return err
		}
	}
	if _, err := svc.SetFinalDecisions(ctx, sessionID, formationID, []service.DecisionInput{
		{TraineeID: "trainee-1", Outcome: model.OutcomeSuccess},
		{TraineeID: "trainee-2", Outcome: model.OutcomeRetake},
	}, "director-1"); err != nil {
		return err
	}
	for _, trainee := range []string{"trainee-1", "trainee-2"} {
		for _, trainer := range []string{"trainer-1", "trainer-2"} {
			if _, err := svc.ApproveFinalDecision(ctx, sessionID, formationID, trainee, trainer); err != nil {
				return err
			}
		}
	}
	return nil
}

func TestValidateSession(t *testing.T) {
	Convey("Given a fully decided session", t, func() {
		ctx := context.Background()
		svc, _, _ := newFixture()
		So(finishFormation(ctx, svc), ShouldBeNil)

		Convey("When a director tries to sign", func() {
			_, err := svc.ValidateSession(ctx, sessionID, "director-1")
			So(errors.Is(err, service.ErrUnauthorized), ShouldBeTrue)
		})

		Convey("When the signatories sign in either order", func() {
			first, err := svc.ValidateSession(ctx, sessionID, "commissioner-1")
			So(err, ShouldBeNil)
			So(first.Visible, ShouldBeFalse)

			second, err := svc.ValidateSession(ctx, sessionID, "president-1")
			So(err, ShouldBeNil)

			Convey("Then the session becomes visible after the second signature", func() {
				So(second.Visible, ShouldBeTrue)
				So(second.PresidentAt, ShouldNotBeNil)
				So(second.CommissionerAt, ShouldNotBeNil)
			})

			Convey("And re-signing is a no-op success", func() {
				again, err := svc.ValidateSession(ctx, sessionID, "commissioner-1")
				So(err, ShouldBeNil)
				So(again.Visible, ShouldBeTrue)
				So(*again.CommissionerAt, ShouldEqual, *first.CommissionerAt)
			})
		})
	})

	Convey("Given a session with an undecided formation", t, func() {
		ctx := context.Background()
		svc, _, _ := newFixture()
		So(validateEvaluation(ctx, svc, "trainee-1"), ShouldBeNil)

		Convey("When a signatory tries to sign", func() {
			_, err := svc.ValidateSession(ctx, sessionID, "president-1")
			So(errors.Is(err, service.ErrPrecondition), ShouldBeTrue)
		})
	})
}

func TestFormationResults(t *testing.T) {
	Convey("Given an in-progress formation", t, func() {
		ctx := context.Background()
		svc, _, _ := newFixture()
		So(validateEvaluation(ctx, svc, "trainee-1"), ShouldBeNil)

		Convey("When a trainer reads the results", func() {
			results, err := svc.FormationResults(ctx, sessionID, formationID, "trainer-1")
			So(err, ShouldBeNil)
			So(results.Evaluations, ShouldHaveLength, 1)
		})

		Convey("When an assistant reads before the team has finished", func() {
			_, err := svc.FormationResults(ctx, sessionID, formationID, "assistant-1")
			So(errors.Is(err, service.ErrPrecondition), ShouldBeTrue)
		})

		Convey("When a stranger reads", func() {
			_, err := svc.FormationResults(ctx, sessionID, formationID, "nobody")
			So(errors.Is(err, service.ErrUnauthorized), ShouldBeTrue)
		})
	})

	Convey("Given a formation the team has finished", t, func() {
		ctx := context.Background()
		svc, _, _ := newFixture()
		So(finishFormation(ctx, svc), ShouldBeNil)

		Convey("When the assistant reads", func() {
			results, err := svc.FormationResults(ctx, sessionID, formationID, "assistant-1")
			So(err, ShouldBeNil)

			Convey("Then the full result table is visible", func() {
				So(results.Decisions, ShouldHaveLength, 2)
				So(results.Evaluations, ShouldHaveLength, 2)
				So(results.Decisions[0].Status, ShouldEqual, model.StatusValidated)
			})
		})
	})
}

func TestSessionRollup(t *testing.T) {
	Convey("Given a fully decided formation", t, func() {
		ctx := context.Background()
		svc, _, _ := newFixture()
		So(finishFormation(ctx, svc), ShouldBeNil)

		Convey("When the session rollup is built", func() {
			report, err := svc.SessionRollup(ctx, sessionID)
			So(err, ShouldBeNil)

			Convey("Then counters reflect one success out of two present", func() {
				So(report.Present, ShouldEqual, 2)
				So(report.Success, ShouldEqual, 1)
				So(report.Retake, ShouldEqual, 1)
				So(report.SuccessRate, ShouldEqual, 50.0)
				So(report.AllFormationsValidated, ShouldBeTrue)
			})
		})
	})
}

func TestGetStats(t *testing.T) {
	Convey("Given a service with one evaluation", t, func() {
		ctx := context.Background()
		svc, _, _ := newFixture()
		_, err := svc.SubmitEvaluation(ctx, sessionID, formationID, "trainee-1", scoreItems(), "director-1")
		So(err, ShouldBeNil)

		Convey("Then the stats report the document counts", func() {
			stats := svc.GetStats()
			So(stats["evaluations"], ShouldEqual, 1)
			So(stats["decisions"], ShouldEqual, 0)
			So(stats["publications"], ShouldEqual, 0)
		})
	})
}

func TestClockOption(t *testing.T) {
	Convey("Given a service with a fixed clock", t, func() {
		ctx := context.Background()
		fixed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
		resolver := roster.NewInMemoryResolver(
			roster.WithFormations(model.Formation{
				FormationID: formationID, SessionID: sessionID, Branch: "scouts", Level: "wood-badge",
			}),
			roster.WithAssignments(
				model.RosterEntry{FormationID: formationID, UserID: "director-1", Role: model.RoleDirector},
				model.RosterEntry{FormationID: formationID, UserID: "trainee-1", Role: model.RoleTrainee, Present: true},
			),
		)
		svc := service.New(
			service.WithResolver(resolver),
			service.WithCatalog(resolver),
			service.WithClock(func() time.Time { return fixed }),
		)

		Convey("When the director submits", func() {
			view, err := svc.SubmitEvaluation(ctx, sessionID, formationID, "trainee-1", scoreItems(), "director-1")
			So(err, ShouldBeNil)

			Convey("Then the approval carries the injected timestamp", func() {
				So(view.Approvals[0].ApprovedAt, ShouldEqual, fixed)
			})
		})
	})
}
