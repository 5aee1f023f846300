// Package gate holds the approval-set logic shared by the evaluation and
// decision gates. Everything here is pure: callers pass the current approval
// list and the live quorum, and get back new state or a verdict. Quorum
// membership is never cached inside a record; it is resolved from the roster
// at every check so that roster growth mid-flight correctly reopens a gate.
package gate

import (
	"sort"
	"time"

	"github.com/okian/jury/internal/domain/model"
)

// AddApproval returns the approval list with (userID, role) inserted at now.
// Adding an approval for a user already present is an idempotent no-op; the
// original entry and its timestamp are kept. The second return reports
// whether the list changed.
func AddApproval(approvals []model.Approval, userID string, role model.Role, now time.Time) ([]model.Approval, bool) {
	for _, a := range approvals {
		if a.UserID == userID {
			return approvals, false
		}
	}
	out := make([]model.Approval, len(approvals), len(approvals)+1)
	copy(out, approvals)
	out = append(out, model.Approval{UserID: userID, Role: role, ApprovedAt: now})
	return out, true
}

// ReplaceApproval upserts the user's approval, refreshing role and timestamp
// when an entry already exists. Used on director resubmission, which renews
// only the submitter's own sign-off.
func ReplaceApproval(approvals []model.Approval, userID string, role model.Role, now time.Time) []model.Approval {
	out := make([]model.Approval, 0, len(approvals)+1)
	replaced := false
	for _, a := range approvals {
		if a.UserID == userID {
			out = append(out, model.Approval{UserID: userID, Role: role, ApprovedAt: now})
			replaced = true
			continue
		}
		out = append(out, a)
	}
	if !replaced {
		out = append(out, model.Approval{UserID: userID, Role: role, ApprovedAt: now})
	}
	return out
}

// Progress describes how far a gate is through its quorum. Missing is sorted
// for stable output.
type Progress struct {
	Approved int      `json:"approved"`
	Required int      `json:"required"`
	Missing  []string `json:"missing,omitempty"`
}

// Complete reports whether the quorum is satisfied.
func (p Progress) Complete() bool {
	return p.Required > 0 && len(p.Missing) == 0
}

// Check compares the approval list against the live quorum. The gate is
// complete when every quorum member appears in approvals with one of the
// accepted roles. An empty quorum never completes. Approvals from users no
// longer on the roster are ignored for counting but never removed.
func Check(approvals []model.Approval, quorum []string, accepted ...model.Role) Progress {
	ok := make(map[string]bool, len(approvals))
	for _, a := range approvals {
		for _, r := range accepted {
			if a.Role == r {
				ok[a.UserID] = true
				break
			}
		}
	}
	p := Progress{Required: len(quorum)}
	for _, userID := range quorum {
		if ok[userID] {
			p.Approved++
			continue
		}
		p.Missing = append(p.Missing, userID)
	}
	sort.Strings(p.Missing)
	return p
}

// HasApproved reports whether userID appears in approvals.
func HasApproved(approvals []model.Approval, userID string) bool {
	for _, a := range approvals {
		if a.UserID == userID {
			return true
		}
	}
	return false
}
