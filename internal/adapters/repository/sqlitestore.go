package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/pkg/metrics"

	_ "modernc.org/sqlite" // sqlite driver
)

// SQLiteStore implements Store over a SQLite file. Documents are rows keyed
// by their natural unique key; list-valued fields (items, approvals) are
// JSON columns. Every mutating method runs a single-row read-modify-write
// transaction, which is the per-document atomicity the workflow needs:
// SQLite serializes writers, so two concurrent approval adds cannot lose an
// entry.
type SQLiteStore struct {
	sqlDB *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS evaluations (
	session_id   TEXT NOT NULL,
	formation_id TEXT NOT NULL,
	trainee_id   TEXT NOT NULL,
	status       TEXT NOT NULL,
	items        TEXT NOT NULL,
	approvals    TEXT NOT NULL,
	validated_by TEXT NOT NULL DEFAULT '',
	validated_at INTEGER,
	PRIMARY KEY (session_id, formation_id, trainee_id)
);
CREATE TABLE IF NOT EXISTS final_decisions (
	session_id   TEXT NOT NULL,
	formation_id TEXT NOT NULL,
	trainee_id   TEXT NOT NULL,
	total_score  INTEGER NOT NULL,
	total_max    INTEGER NOT NULL,
	outcome      TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	approvals    TEXT NOT NULL,
	PRIMARY KEY (session_id, formation_id, trainee_id)
);
CREATE TABLE IF NOT EXISTS session_publications (
	session_id      TEXT PRIMARY KEY,
	president_at    INTEGER,
	commissioner_at INTEGER,
	visible         INTEGER NOT NULL DEFAULT 0
);
`

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens (or creates) the store at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json column: %w", err)
	}
	return string(b), nil
}

func scanEvaluation(row interface{ Scan(...any) error }) (model.Evaluation, error) {
	var (
		ev          model.Evaluation
		items       string
		approvals   string
		validatedAt sql.NullInt64
	)
	err := row.Scan(
		&ev.Key.SessionID, &ev.Key.FormationID, &ev.Key.TraineeID,
		&ev.Status, &items, &approvals, &ev.ValidatedBy, &validatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Evaluation{}, ErrNotFound
	}
	if err != nil {
		return model.Evaluation{}, fmt.Errorf("scan evaluation: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &ev.Items); err != nil {
		return model.Evaluation{}, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal([]byte(approvals), &ev.Approvals); err != nil {
		return model.Evaluation{}, fmt.Errorf("decode approvals: %w", err)
	}
	if validatedAt.Valid {
		at := fromMillis(validatedAt.Int64)
		ev.ValidatedAt = &at
	}
	return ev, nil
}

func scanDecision(row interface{ Scan(...any) error }) (model.FinalDecision, error) {
	var (
		dec       model.FinalDecision
		approvals string
	)
	err := row.Scan(
		&dec.Key.SessionID, &dec.Key.FormationID, &dec.Key.TraineeID,
		&dec.TotalScore, &dec.TotalMax, &dec.Outcome, &dec.Status, &approvals,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FinalDecision{}, ErrNotFound
	}
	if err != nil {
		return model.FinalDecision{}, fmt.Errorf("scan decision: %w", err)
	}
	if err := json.Unmarshal([]byte(approvals), &dec.Approvals); err != nil {
		return model.FinalDecision{}, fmt.Errorf("decode approvals: %w", err)
	}
	return dec, nil
}

const evaluationColumns = `session_id, formation_id, trainee_id, status, items, approvals, validated_by, validated_at`

func writeEvaluation(ctx context.Context, execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, ev model.Evaluation) error {
	items, err := encodeJSON(ev.Items)
	if err != nil {
		return err
	}
	approvals, err := encodeJSON(ev.Approvals)
	if err != nil {
		return err
	}
	var validatedAt any
	if ev.ValidatedAt != nil {
		validatedAt = toMillis(*ev.ValidatedAt)
	}
	_, err = execer.ExecContext(ctx,
		`INSERT INTO evaluations (`+evaluationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id, formation_id, trainee_id) DO UPDATE SET
		   status = excluded.status,
		   items = excluded.items,
		   approvals = excluded.approvals,
		   validated_by = excluded.validated_by,
		   validated_at = excluded.validated_at`,
		ev.Key.SessionID, ev.Key.FormationID, ev.Key.TraineeID,
		ev.Status, items, approvals, ev.ValidatedBy, validatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert evaluation: %w", err)
	}
	return nil
}

const decisionColumns = `session_id, formation_id, trainee_id, total_score, total_max, outcome, status, approvals`

func writeDecision(ctx context.Context, execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, dec model.FinalDecision) error {
	approvals, err := encodeJSON(dec.Approvals)
	if err != nil {
		return err
	}
	_, err = execer.ExecContext(ctx,
		`INSERT INTO final_decisions (`+decisionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id, formation_id, trainee_id) DO UPDATE SET
		   total_score = excluded.total_score,
		   total_max = excluded.total_max,
		   outcome = excluded.outcome,
		   status = excluded.status,
		   approvals = excluded.approvals`,
		dec.Key.SessionID, dec.Key.FormationID, dec.Key.TraineeID,
		dec.TotalScore, dec.TotalMax, dec.Outcome, dec.Status, approvals,
	)
	if err != nil {
		return fmt.Errorf("upsert decision: %w", err)
	}
	return nil
}

// mutateEvaluation runs fn on the current document inside a transaction and
// writes the result back.
func (s *SQLiteStore) mutateEvaluation(ctx context.Context, key model.GateKey, fn func(*model.Evaluation) (bool, error)) (model.Evaluation, bool, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return model.Evaluation{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations
		 WHERE session_id = ? AND formation_id = ? AND trainee_id = ?`,
		key.SessionID, key.FormationID, key.TraineeID,
	)
	ev, err := scanEvaluation(row)
	if err != nil {
		return model.Evaluation{}, false, err
	}
	changed, err := fn(&ev)
	if err != nil {
		return model.Evaluation{}, false, err
	}
	if changed {
		if err := writeEvaluation(ctx, tx, ev); err != nil {
			return model.Evaluation{}, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Evaluation{}, false, fmt.Errorf("commit tx: %w", err)
	}
	return ev, changed, nil
}

func (s *SQLiteStore) mutateDecision(ctx context.Context, key model.GateKey, fn func(*model.FinalDecision) (bool, error)) (model.FinalDecision, bool, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return model.FinalDecision{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+decisionColumns+` FROM final_decisions
		 WHERE session_id = ? AND formation_id = ? AND trainee_id = ?`,
		key.SessionID, key.FormationID, key.TraineeID,
	)
	dec, err := scanDecision(row)
	if err != nil {
		return model.FinalDecision{}, false, err
	}
	changed, err := fn(&dec)
	if err != nil {
		return model.FinalDecision{}, false, err
	}
	if changed {
		if err := writeDecision(ctx, tx, dec); err != nil {
			return model.FinalDecision{}, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.FinalDecision{}, false, fmt.Errorf("commit tx: %w", err)
	}
	return dec, changed, nil
}

// UpsertEvaluation replaces the whole document.
func (s *SQLiteStore) UpsertEvaluation(ctx context.Context, ev model.Evaluation) error {
	defer metrics.ObserveStoreOp("upsert_evaluation", time.Now())
	return writeEvaluation(ctx, s.sqlDB, ev)
}

// Evaluation returns the document for key.
func (s *SQLiteStore) Evaluation(ctx context.Context, key model.GateKey) (model.Evaluation, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations
		 WHERE session_id = ? AND formation_id = ? AND trainee_id = ?`,
		key.SessionID, key.FormationID, key.TraineeID,
	)
	return scanEvaluation(row)
}

// EvaluationsByFormation returns the formation's evaluations ordered by
// trainee id.
func (s *SQLiteStore) EvaluationsByFormation(ctx context.Context, sessionID, formationID string) ([]model.Evaluation, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations
		 WHERE session_id = ? AND formation_id = ? ORDER BY trainee_id`,
		sessionID, formationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []model.Evaluation
	for rows.Next() {
		ev, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}
	return out, nil
}

// AddEvaluationApproval inserts the approval unless the user already signed.
func (s *SQLiteStore) AddEvaluationApproval(ctx context.Context, key model.GateKey, ap model.Approval) (model.Evaluation, bool, error) {
	defer metrics.ObserveStoreOp("add_evaluation_approval", time.Now())
	return s.mutateEvaluation(ctx, key, func(ev *model.Evaluation) (bool, error) {
		for _, a := range ev.Approvals {
			if a.UserID == ap.UserID {
				return false, nil
			}
		}
		ev.Approvals = append(ev.Approvals, ap)
		if ev.Status == model.StatusDraft {
			ev.Status = model.StatusPendingTeam
		}
		return true, nil
	})
}

// MarkEvaluationValidated promotes to validated, keeping the original
// validator when called twice.
func (s *SQLiteStore) MarkEvaluationValidated(ctx context.Context, key model.GateKey, userID string, at time.Time) (model.Evaluation, error) {
	defer metrics.ObserveStoreOp("mark_evaluation_validated", time.Now())
	ev, _, err := s.mutateEvaluation(ctx, key, func(ev *model.Evaluation) (bool, error) {
		if ev.Status == model.StatusValidated {
			return false, nil
		}
		ts := at
		ev.Status = model.StatusValidated
		ev.ValidatedBy = userID
		ev.ValidatedAt = &ts
		return true, nil
	})
	return ev, err
}

// CreateDecision inserts the stub only when absent.
func (s *SQLiteStore) CreateDecision(ctx context.Context, dec model.FinalDecision) (bool, error) {
	defer metrics.ObserveStoreOp("create_decision", time.Now())
	approvals, err := encodeJSON(dec.Approvals)
	if err != nil {
		return false, err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO final_decisions (`+decisionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		dec.Key.SessionID, dec.Key.FormationID, dec.Key.TraineeID,
		dec.TotalScore, dec.TotalMax, dec.Outcome, dec.Status, approvals,
	)
	if err != nil {
		return false, fmt.Errorf("insert decision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Decision returns the document for key.
func (s *SQLiteStore) Decision(ctx context.Context, key model.GateKey) (model.FinalDecision, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+decisionColumns+` FROM final_decisions
		 WHERE session_id = ? AND formation_id = ? AND trainee_id = ?`,
		key.SessionID, key.FormationID, key.TraineeID,
	)
	return scanDecision(row)
}

// DecisionsByFormation returns the formation's decisions ordered by trainee
// id.
func (s *SQLiteStore) DecisionsByFormation(ctx context.Context, sessionID, formationID string) ([]model.FinalDecision, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+decisionColumns+` FROM final_decisions
		 WHERE session_id = ? AND formation_id = ? ORDER BY trainee_id`,
		sessionID, formationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []model.FinalDecision
	for rows.Next() {
		dec, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return out, nil
}

// SetDecisionOutcome sets the outcome and upserts the director's approval.
func (s *SQLiteStore) SetDecisionOutcome(ctx context.Context, key model.GateKey, outcome model.Outcome, ap model.Approval) (model.FinalDecision, error) {
	defer metrics.ObserveStoreOp("set_decision_outcome", time.Now())
	dec, _, err := s.mutateDecision(ctx, key, func(dec *model.FinalDecision) (bool, error) {
		dec.Outcome = outcome
		replaced := false
		for i, a := range dec.Approvals {
			if a.UserID == ap.UserID {
				dec.Approvals[i] = ap
				replaced = true
				break
			}
		}
		if !replaced {
			dec.Approvals = append(dec.Approvals, ap)
		}
		if dec.Status == model.StatusDraft {
			dec.Status = model.StatusPendingTeam
		}
		return true, nil
	})
	return dec, err
}

// AddDecisionApproval inserts the approval unless the user already signed.
func (s *SQLiteStore) AddDecisionApproval(ctx context.Context, key model.GateKey, ap model.Approval) (model.FinalDecision, bool, error) {
	defer metrics.ObserveStoreOp("add_decision_approval", time.Now())
	return s.mutateDecision(ctx, key, func(dec *model.FinalDecision) (bool, error) {
		for _, a := range dec.Approvals {
			if a.UserID == ap.UserID {
				return false, nil
			}
		}
		dec.Approvals = append(dec.Approvals, ap)
		if dec.Status == model.StatusDraft {
			dec.Status = model.StatusPendingTeam
		}
		return true, nil
	})
}

// MarkDecisionValidated promotes to validated.
func (s *SQLiteStore) MarkDecisionValidated(ctx context.Context, key model.GateKey) (model.FinalDecision, error) {
	defer metrics.ObserveStoreOp("mark_decision_validated", time.Now())
	dec, _, err := s.mutateDecision(ctx, key, func(dec *model.FinalDecision) (bool, error) {
		if dec.Status == model.StatusValidated {
			return false, nil
		}
		dec.Status = model.StatusValidated
		return true, nil
	})
	return dec, err
}

// Publication returns the session's publication record.
func (s *SQLiteStore) Publication(ctx context.Context, sessionID string) (model.SessionPublication, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT session_id, president_at, commissioner_at, visible
		 FROM session_publications WHERE session_id = ?`, sessionID,
	)
	return scanPublication(row)
}

func scanPublication(row interface{ Scan(...any) error }) (model.SessionPublication, error) {
	var (
		pub            model.SessionPublication
		presidentAt    sql.NullInt64
		commissionerAt sql.NullInt64
	)
	err := row.Scan(&pub.SessionID, &presidentAt, &commissionerAt, &pub.Visible)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SessionPublication{}, ErrNotFound
	}
	if err != nil {
		return model.SessionPublication{}, fmt.Errorf("scan publication: %w", err)
	}
	if presidentAt.Valid {
		at := fromMillis(presidentAt.Int64)
		pub.PresidentAt = &at
	}
	if commissionerAt.Valid {
		at := fromMillis(commissionerAt.Int64)
		pub.CommissionerAt = &at
	}
	return pub, nil
}

// SignPublication records the role's signature, creating the record on the
// first one.
func (s *SQLiteStore) SignPublication(ctx context.Context, sessionID string, role model.Role, at time.Time) (model.SessionPublication, bool, error) {
	defer metrics.ObserveStoreOp("sign_publication", time.Now())
	if role != model.RolePresident && role != model.RoleCommissioner {
		return model.SessionPublication{}, false, ErrInvalidRole
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return model.SessionPublication{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT session_id, president_at, commissioner_at, visible
		 FROM session_publications WHERE session_id = ?`, sessionID,
	)
	pub, err := scanPublication(row)
	if errors.Is(err, ErrNotFound) {
		pub = model.SessionPublication{SessionID: sessionID}
	} else if err != nil {
		return model.SessionPublication{}, false, err
	}
	if _, signed := pub.Signed(role); signed {
		return pub, false, nil
	}
	ts := at
	switch role {
	case model.RolePresident:
		pub.PresidentAt = &ts
	case model.RoleCommissioner:
		pub.CommissionerAt = &ts
	}
	if pub.PresidentAt != nil && pub.CommissionerAt != nil {
		pub.Visible = true
	}
	var presidentAt, commissionerAt any
	if pub.PresidentAt != nil {
		presidentAt = toMillis(*pub.PresidentAt)
	}
	if pub.CommissionerAt != nil {
		commissionerAt = toMillis(*pub.CommissionerAt)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_publications (session_id, president_at, commissioner_at, visible)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET
		   president_at = excluded.president_at,
		   commissioner_at = excluded.commissioner_at,
		   visible = MAX(session_publications.visible, excluded.visible)`,
		pub.SessionID, presidentAt, commissionerAt, pub.Visible,
	)
	if err != nil {
		return model.SessionPublication{}, false, fmt.Errorf("upsert publication: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.SessionPublication{}, false, fmt.Errorf("commit tx: %w", err)
	}
	return pub, true, nil
}

// Counts reports document totals for monitoring.
func (s *SQLiteStore) Counts(ctx context.Context) (evaluations, decisions, publications int) {
	_ = s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM evaluations`).Scan(&evaluations)
	_ = s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM final_decisions`).Scan(&decisions)
	_ = s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_publications`).Scan(&publications)
	return evaluations, decisions, publications
}
