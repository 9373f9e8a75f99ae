package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/psikotes-backend/internal/model"
)

// AttemptRepository handles exam attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, exam_id, candidate_id, started_at, duration_seconds, answers, answer_stamps,
	status, score, classification_label, scoring_flags, scoring_error, finished_at`

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.ExamID, &a.CandidateID, &a.StartedAt, &a.DurationSeconds, &a.Answers, &a.AnswerStamps, &a.Status,
		&a.Score, &a.Label, &a.Flags, &a.ScoringError, &a.FinishedAt)
	if err != nil {
		return nil, err
	}
	if a.Answers == nil {
		a.Answers = model.AnswerMap{}
	}
	if a.AnswerStamps == nil {
		a.AnswerStamps = model.AnswerStamps{}
	}
	return a, nil
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id))
}

// GetLatest returns the candidate's attempt at an exam, preferring the
// in-progress row over a finalized one.
func (r *AttemptRepository) GetLatest(ctx context.Context, examID uuid.UUID, candidateID int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE exam_id = $1 AND candidate_id = $2
		 ORDER BY (status = 'in_progress') DESC, started_at DESC
		 LIMIT 1`, examID, candidateID))
}

// Create inserts a new in-progress attempt. When another request created the
// in-progress row first, pgx.ErrNoRows is returned and the caller re-reads.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	a.Status = model.AttemptStatusInProgress
	if a.Answers == nil {
		a.Answers = model.AnswerMap{}
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (exam_id, candidate_id, duration_seconds, answers, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (exam_id, candidate_id) WHERE status = 'in_progress' DO NOTHING
		 RETURNING id, started_at`,
		a.ExamID, a.CandidateID, a.DurationSeconds, a.Answers, a.Status,
	).Scan(&a.ID, &a.StartedAt)
}

// MergeAnswers unions answers into the stored map while the attempt is still
// in progress. An entry is applied only when its stamp is later than the one
// stored for that question. It reports false when the attempt is missing or
// already final.
func (r *AttemptRepository) MergeAnswers(ctx context.Context, id uuid.UUID, answers model.AnswerMap, stamps model.AnswerStamps) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`WITH cur AS (
			SELECT answer_stamps FROM exam_attempts
			WHERE id = $1 AND status = 'in_progress'
			FOR UPDATE
		 ), fresh AS (
			SELECT n.key, n.value, COALESCE(($3::jsonb->>n.key)::bigint, 0) AS stamp
			FROM cur, jsonb_each($2::jsonb) AS n
			WHERE NOT (cur.answer_stamps ? n.key)
			   OR (cur.answer_stamps->>n.key)::bigint < COALESCE(($3::jsonb->>n.key)::bigint, 0)
		 )
		 UPDATE exam_attempts
		 SET answers = answers || COALESCE((SELECT jsonb_object_agg(key, value) FROM fresh), '{}'::jsonb),
		     answer_stamps = answer_stamps || COALESCE((SELECT jsonb_object_agg(key, stamp) FROM fresh), '{}'::jsonb)
		 WHERE id = $1 AND status = 'in_progress'`,
		id, answers, stamps)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Finalize moves an in-progress attempt to its terminal state. The update is
// conditional on status, so a second finalization matches no row and returns
// pgx.ErrNoRows. An in-progress row whose candidate already holds a finalized
// attempt at the exam can never finalize; it is removed and pgx.ErrNoRows is
// returned as well.
func (r *AttemptRepository) Finalize(ctx context.Context, id uuid.UUID, f *model.Finalization) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = $2, answers = $3, score = $4, classification_label = $5,
		     scoring_flags = $6, scoring_error = $7, finished_at = $8
		 WHERE id = $1 AND status = 'in_progress'`,
		id, f.Status, f.Answers, f.Score, f.Label, f.Flags, f.ScoringError, f.FinishedAt)
	if err != nil {
		if !isUniqueViolation(err) {
			return err
		}
		if _, delErr := r.pool.Exec(ctx,
			`DELETE FROM exam_attempts WHERE id = $1 AND status = 'in_progress'`, id); delErr != nil {
			return fmt.Errorf("remove duplicate attempt: %w", delErr)
		}
		return pgx.ErrNoRows
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListOverdue returns in-progress attempts whose deadline is at or before
// now, in (started_at, id) order, starting after the cursor.
func (r *AttemptRepository) ListOverdue(ctx context.Context, now time.Time, after model.AttemptCursor, limit int) ([]model.AttemptCursor, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT started_at, id FROM exam_attempts
		 WHERE status = 'in_progress'
		   AND started_at + duration_seconds * INTERVAL '1 second' <= $1
		   AND (started_at, id) > ($2, $3)
		 ORDER BY started_at, id
		 LIMIT $4`, now, after.StartedAt, after.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []model.AttemptCursor
	for rows.Next() {
		var ref model.AttemptCursor
		if err := rows.Scan(&ref.StartedAt, &ref.ID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ListByExam retrieves the attempts of an exam with pagination, newest first.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID, status *model.AttemptStatus, page, perPage int) ([]model.Attempt, int64, error) {
	offset := (page - 1) * perPage

	where := ` FROM exam_attempts WHERE exam_id = $1`
	args := []any{examID}
	if status != nil {
		args = append(args, *status)
		where += ` AND status = $2`
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limitArg := len(args) + 1
	args = append(args, perPage, offset)
	query := `SELECT ` + attemptColumns + where +
		fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d OFFSET $%d`, limitArg, limitArg+1)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	attempts := make([]model.Attempt, 0, perPage)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, total, rows.Err()
}

// CountByStatus counts an exam's attempts per status.
func (r *AttemptRepository) CountByStatus(ctx context.Context, examID uuid.UUID) (model.MonitorStats, error) {
	var stats model.MonitorStats
	err := r.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE status = 'in_progress'),
			COUNT(*) FILTER (WHERE status = 'submitted'),
			COUNT(*) FILTER (WHERE status = 'expired')
		 FROM exam_attempts WHERE exam_id = $1`, examID,
	).Scan(&stats.InProgress, &stats.Submitted, &stats.Expired)
	return stats, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
