// Package roster defines the collaborator contracts for live role
// assignments and the session catalog, plus in-memory implementations used
// for tests and single-process deployments. Assignments are a live, mutable
// external fact: gates re-resolve them on every quorum evaluation.
package roster

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/jury/internal/domain/model"
)

// Resolver exposes the current role assignments.
type Resolver interface {
	// Assignments returns every current {user, role} pair for the formation.
	Assignments(ctx context.Context, formationID string) ([]model.RosterEntry, error)

	// NationalRole returns the user's national role (president or
	// commissioner), if any.
	NationalRole(ctx context.Context, userID string) (model.Role, bool, error)
}

// Catalog exposes the session structure consumed by the rollup.
type Catalog interface {
	// Formations returns every formation under the session.
	Formations(ctx context.Context, sessionID string) ([]model.Formation, error)
}

// Quorum extracts the sorted set of user ids holding any of the given roles.
func Quorum(entries []model.RosterEntry, roles ...model.Role) []string {
	seen := make(map[string]bool, len(entries))
	var out []string
	for _, e := range entries {
		for _, r := range roles {
			if e.Role == r && !seen[e.UserID] {
				seen[e.UserID] = true
				out = append(out, e.UserID)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// PresentTrainees extracts the sorted user ids of trainees with the presence
// flag set.
func PresentTrainees(entries []model.RosterEntry) []string {
	var out []string
	for _, e := range entries {
		if e.Role == model.RoleTrainee && e.Present {
			out = append(out, e.UserID)
		}
	}
	sort.Strings(out)
	return out
}

// HasRole reports whether userID currently holds one of the roles on the
// formation described by entries.
func HasRole(entries []model.RosterEntry, userID string, roles ...model.Role) bool {
	for _, e := range entries {
		if e.UserID != userID {
			continue
		}
		for _, r := range roles {
			if e.Role == r {
				return true
			}
		}
	}
	return false
}

// Entry looks up the roster entry for userID, if any.
func Entry(entries []model.RosterEntry, userID string) (model.RosterEntry, bool) {
	for _, e := range entries {
		if e.UserID == userID {
			return e, true
		}
	}
	return model.RosterEntry{}, false
}

// Option applies a configuration option to the InMemoryResolver.
type Option func(*InMemoryResolver)

// WithAssignments seeds initial roster entries.
func WithAssignments(entries ...model.RosterEntry) Option {
	return func(r *InMemoryResolver) {
		for _, e := range entries {
			r.byFormation[e.FormationID] = append(r.byFormation[e.FormationID], e)
		}
	}
}

// WithNationalRole seeds a national role holder.
func WithNationalRole(userID string, role model.Role) Option {
	return func(r *InMemoryResolver) {
		r.national[userID] = role
	}
}

// WithFormations seeds catalog formations.
func WithFormations(formations ...model.Formation) Option {
	return func(r *InMemoryResolver) {
		for _, f := range formations {
			r.bySession[f.SessionID] = append(r.bySession[f.SessionID], f)
		}
	}
}

// InMemoryResolver implements Resolver and Catalog over in-process maps.
// It is mutable after construction so tests can model mid-flight roster
// changes.
type InMemoryResolver struct {
	mu          sync.RWMutex
	byFormation map[string][]model.RosterEntry
	bySession   map[string][]model.Formation
	national    map[string]model.Role
}

// NewInMemoryResolver creates a resolver seeded through options.
func NewInMemoryResolver(opts ...Option) *InMemoryResolver {
	r := &InMemoryResolver{
		byFormation: make(map[string][]model.RosterEntry),
		bySession:   make(map[string][]model.Formation),
		national:    make(map[string]model.Role),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Assignments returns a copy of the formation's current entries.
func (r *InMemoryResolver) Assignments(_ context.Context, formationID string) ([]model.RosterEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.byFormation[formationID]
	out := make([]model.RosterEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// NationalRole returns the user's national role, if assigned.
func (r *InMemoryResolver) NationalRole(_ context.Context, userID string) (model.Role, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.national[userID]
	return role, ok, nil
}

// Formations returns a copy of the session's formations.
func (r *InMemoryResolver) Formations(_ context.Context, sessionID string) ([]model.Formation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	formations := r.bySession[sessionID]
	out := make([]model.Formation, len(formations))
	copy(out, formations)
	return out, nil
}

// Assign adds or replaces the user's entry on a formation. A user holds one
// role per formation, so an existing entry for the same user is overwritten.
func (r *InMemoryResolver) Assign(entry model.RosterEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.byFormation[entry.FormationID]
	for i, e := range entries {
		if e.UserID == entry.UserID {
			entries[i] = entry
			return
		}
	}
	r.byFormation[entry.FormationID] = append(entries, entry)
}

// Unassign removes the user's entry from a formation.
func (r *InMemoryResolver) Unassign(formationID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.byFormation[formationID]
	for i, e := range entries {
		if e.UserID == userID {
			r.byFormation[formationID] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// SetPresence flips a trainee's presence flag.
func (r *InMemoryResolver) SetPresence(formationID, userID string, present bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.byFormation[formationID]
	for i, e := range entries {
		if e.UserID == userID {
			entries[i].Present = present
			return
		}
	}
}
