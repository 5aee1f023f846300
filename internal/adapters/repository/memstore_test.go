package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/jury/internal/adapters/repository"
	"github.com/okian/jury/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var testKey = model.GateKey{SessionID: "s1", FormationID: "f1", TraineeID: "trainee-1"}

func TestEvaluationLifecycle(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

		Convey("When an unknown evaluation is read", func() {
			_, err := store.Evaluation(ctx, testKey)
			So(err, ShouldEqual, repository.ErrNotFound)
		})

		Convey("When an evaluation is upserted", func() {
			ev := model.Evaluation{
				Key:    testKey,
				Items:  []model.ScoreItem{{CriterionID: "c1", Score: 3, MaxScore: 5}},
				Status: model.StatusDraft,
			}
			So(store.UpsertEvaluation(ctx, ev), ShouldBeNil)

			Convey("Then reads return an independent copy", func() {
				got, err := store.Evaluation(ctx, testKey)
				So(err, ShouldBeNil)
				got.Items[0].Score = 99

				again, err := store.Evaluation(ctx, testKey)
				So(err, ShouldBeNil)
				So(again.Items[0].Score, ShouldEqual, 3)
			})

			Convey("And the first approval promotes draft to pending_team", func() {
				ap := model.Approval{UserID: "trainer-1", Role: model.RoleTrainer, ApprovedAt: now}
				updated, added, err := store.AddEvaluationApproval(ctx, testKey, ap)
				So(err, ShouldBeNil)
				So(added, ShouldBeTrue)
				So(updated.Status, ShouldEqual, model.StatusPendingTeam)

				Convey("And approving again does not change the document", func() {
					_, added, err := store.AddEvaluationApproval(ctx, testKey, model.Approval{
						UserID: "trainer-1", Role: model.RoleTrainer, ApprovedAt: now.Add(time.Hour),
					})
					So(err, ShouldBeNil)
					So(added, ShouldBeFalse)

					got, err := store.Evaluation(ctx, testKey)
					So(err, ShouldBeNil)
					So(got.Approvals, ShouldHaveLength, 1)
					So(got.Approvals[0].ApprovedAt, ShouldEqual, now)
				})
			})

			Convey("And validation keeps the original validator on replay", func() {
				_, err := store.MarkEvaluationValidated(ctx, testKey, "trainer-1", now)
				So(err, ShouldBeNil)

				got, err := store.MarkEvaluationValidated(ctx, testKey, "trainer-2", now.Add(time.Hour))
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.StatusValidated)
				So(got.ValidatedBy, ShouldEqual, "trainer-1")
				So(*got.ValidatedAt, ShouldEqual, now)
			})
		})
	})
}

func TestDecisionLifecycle(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

		Convey("When a decision stub is created twice", func() {
			stub := model.FinalDecision{Key: testKey, TotalScore: 7, TotalMax: 10, Status: model.StatusDraft}
			created, err := store.CreateDecision(ctx, stub)
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)

			second := stub
			second.TotalScore = 99
			created, err = store.CreateDecision(ctx, second)
			So(err, ShouldBeNil)

			Convey("Then the second insert is ignored", func() {
				So(created, ShouldBeFalse)
				got, err := store.Decision(ctx, testKey)
				So(err, ShouldBeNil)
				So(got.TotalScore, ShouldEqual, 7)
			})

			Convey("And setting the outcome upserts the director approval", func() {
				ap := model.Approval{UserID: "director-1", Role: model.RoleDirector, ApprovedAt: now}
				dec, err := store.SetDecisionOutcome(ctx, testKey, model.OutcomeSuccess, ap)
				So(err, ShouldBeNil)
				So(dec.Outcome, ShouldEqual, model.OutcomeSuccess)
				So(dec.Status, ShouldEqual, model.StatusPendingTeam)
				So(dec.Approvals, ShouldHaveLength, 1)

				Convey("And a second call replaces rather than duplicates it", func() {
					later := model.Approval{UserID: "director-1", Role: model.RoleDirector, ApprovedAt: now.Add(time.Hour)}
					dec, err := store.SetDecisionOutcome(ctx, testKey, model.OutcomeRetake, later)
					So(err, ShouldBeNil)
					So(dec.Outcome, ShouldEqual, model.OutcomeRetake)
					So(dec.Approvals, ShouldHaveLength, 1)
					So(dec.Approvals[0].ApprovedAt, ShouldEqual, now.Add(time.Hour))
				})
			})
		})

		Convey("When formation decisions are listed", func() {
			for _, trainee := range []string{"trainee-2", "trainee-1", "other"} {
				key := model.GateKey{SessionID: "s1", FormationID: "f1", TraineeID: trainee}
				if trainee == "other" {
					key.FormationID = "f2"
				}
				_, err := store.CreateDecision(ctx, model.FinalDecision{Key: key, Status: model.StatusDraft})
				So(err, ShouldBeNil)
			}

			Convey("Then only the formation's documents come back, sorted", func() {
				decs, err := store.DecisionsByFormation(ctx, "s1", "f1")
				So(err, ShouldBeNil)
				So(decs, ShouldHaveLength, 2)
				So(decs[0].Key.TraineeID, ShouldEqual, "trainee-1")
				So(decs[1].Key.TraineeID, ShouldEqual, "trainee-2")
			})
		})
	})
}

func TestSignPublication(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

		Convey("When an unknown session's publication is read", func() {
			_, err := store.Publication(ctx, "s1")
			So(err, ShouldEqual, repository.ErrNotFound)
		})

		Convey("When a non-national role signs", func() {
			_, _, err := store.SignPublication(ctx, "s1", model.RoleDirector, now)
			So(err, ShouldEqual, repository.ErrInvalidRole)
		})

		Convey("When the commissioner signs first", func() {
			pub, signed, err := store.SignPublication(ctx, "s1", model.RoleCommissioner, now)
			So(err, ShouldBeNil)
			So(signed, ShouldBeTrue)
			So(pub.Visible, ShouldBeFalse)
			So(pub.CommissionerAt, ShouldNotBeNil)
			So(pub.PresidentAt, ShouldBeNil)

			Convey("And the president completes the pair", func() {
				later := now.Add(time.Hour)
				pub, signed, err := store.SignPublication(ctx, "s1", model.RolePresident, later)
				So(err, ShouldBeNil)
				So(signed, ShouldBeTrue)
				So(pub.Visible, ShouldBeTrue)

				Convey("And re-signing is a no-op that keeps the first timestamp", func() {
					pub, signed, err := store.SignPublication(ctx, "s1", model.RoleCommissioner, later.Add(time.Hour))
					So(err, ShouldBeNil)
					So(signed, ShouldBeFalse)
					So(*pub.CommissionerAt, ShouldEqual, now)
					So(pub.Visible, ShouldBeTrue)
				})
			})
		})
	})
}

func TestCounts(t *testing.T) {
	Convey("Given a store with one document of each kind", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()

		So(store.UpsertEvaluation(ctx, model.Evaluation{Key: testKey, Status: model.StatusDraft}), ShouldBeNil)
		_, err := store.CreateDecision(ctx, model.FinalDecision{Key: testKey, Status: model.StatusDraft})
		So(err, ShouldBeNil)
		_, _, err = store.SignPublication(ctx, "s1", model.RolePresident, time.Now())
		So(err, ShouldBeNil)

		Convey("Then the totals reflect them", func() {
			evals, decs, pubs := store.Counts(ctx)
			So(evals, ShouldEqual, 1)
			So(decs, ShouldEqual, 1)
			So(pubs, ShouldEqual, 1)
		})
	})
}
