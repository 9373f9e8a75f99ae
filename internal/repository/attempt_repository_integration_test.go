//go:build integration

package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/psikotes-backend/internal/model"
)

// Requires a database migrated with ./migrations.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("set TEST_DATABASE_URL to run integration tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func seedExam(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(),
		`INSERT INTO exams (title, exam_type, duration_minutes, status)
		 VALUES ('ITEST PSS', 'pss', 10, 'PUBLISHED') RETURNING id`).Scan(&id)
	if err != nil {
		t.Fatalf("seed exam: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM exams WHERE id = $1`, id)
	})
	return id
}

func TestAttemptRepositoryLifecycle(t *testing.T) {
	pool := openTestPool(t)
	repo := NewAttemptRepository(pool)
	ctx := context.Background()
	examID := seedExam(t, pool)
	candidateID := int(time.Now().UnixNano() % 1_000_000)

	a := &model.Attempt{ExamID: examID, CandidateID: candidateID, DurationSeconds: 600}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := &model.Attempt{ExamID: examID, CandidateID: candidateID, DurationSeconds: 600}
	if err := repo.Create(ctx, dup); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("second create: expected ErrNoRows, got %v", err)
	}

	base := time.Now()
	for i, m := range []model.AnswerMap{{"q1": "A"}, {"q2": "B"}, {"q1": "C"}} {
		ok, err := repo.MergeAnswers(ctx, a.ID, m, m.StampAll(base.Add(time.Duration(i)*time.Second)))
		if err != nil || !ok {
			t.Fatalf("merge %v: ok=%v err=%v", m, ok, err)
		}
	}

	// An entry stamped before the stored one is ignored.
	stale := model.AnswerMap{"q1": "A"}
	if ok, err := repo.MergeAnswers(ctx, a.ID, stale, stale.StampAll(base)); err != nil || !ok {
		t.Fatalf("stale merge: ok=%v err=%v", ok, err)
	}

	got, err := repo.GetLatest(ctx, examID, candidateID)
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if got.Answers["q1"] != "C" || got.Answers["q2"] != "B" {
		t.Fatalf("answers = %v", got.Answers)
	}

	score := 12.0
	fin := &model.Finalization{
		Status:     model.AttemptStatusSubmitted,
		Answers:    got.Answers,
		Score:      &score,
		FinishedAt: time.Now(),
	}
	if err := repo.Finalize(ctx, a.ID, fin); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := repo.Finalize(ctx, a.ID, fin); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("second finalize: expected ErrNoRows, got %v", err)
	}

	late := model.AnswerMap{"q3": "D"}
	ok, err := repo.MergeAnswers(ctx, a.ID, late, late.StampAll(time.Now()))
	if err != nil {
		t.Fatalf("merge after finalize: %v", err)
	}
	if ok {
		t.Fatal("merge after finalize should not match a row")
	}

	final, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != model.AttemptStatusSubmitted || final.Score == nil || *final.Score != 12 {
		t.Fatalf("unexpected final attempt: %+v", final)
	}
	if _, ok := final.Answers["q3"]; ok {
		t.Fatal("finalized answers were modified")
	}
}

func TestAttemptRepositoryListOverdue(t *testing.T) {
	pool := openTestPool(t)
	repo := NewAttemptRepository(pool)
	ctx := context.Background()
	examID := seedExam(t, pool)

	a := &model.Attempt{ExamID: examID, CandidateID: 1, DurationSeconds: 60}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	refs, err := repo.ListOverdue(ctx, a.StartedAt.Add(30*time.Second), model.AttemptCursor{}, 100)
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	for _, ref := range refs {
		if ref.ID == a.ID {
			t.Fatal("attempt listed before its deadline")
		}
	}

	refs, err = repo.ListOverdue(ctx, a.StartedAt.Add(61*time.Second), model.AttemptCursor{}, 100)
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	found := false
	for _, ref := range refs {
		found = found || ref.ID == a.ID
	}
	if !found {
		t.Fatal("overdue attempt not listed")
	}

	// A cursor at the attempt moves past it.
	refs, err = repo.ListOverdue(ctx, a.StartedAt.Add(61*time.Second), model.AttemptCursor{StartedAt: a.StartedAt, ID: a.ID}, 100)
	if err != nil {
		t.Fatalf("list overdue after cursor: %v", err)
	}
	for _, ref := range refs {
		if ref.ID == a.ID {
			t.Fatal("attempt listed again after its cursor")
		}
	}
}

func TestAttemptRepositoryFinalizeDuplicate(t *testing.T) {
	pool := openTestPool(t)
	repo := NewAttemptRepository(pool)
	ctx := context.Background()
	examID := seedExam(t, pool)
	candidateID := int(time.Now().UnixNano()%1_000_000) + 1_000_000

	first := &model.Attempt{ExamID: examID, CandidateID: candidateID, DurationSeconds: 600}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	fin := &model.Finalization{Status: model.AttemptStatusSubmitted, Answers: model.AnswerMap{}, FinishedAt: time.Now()}
	if err := repo.Finalize(ctx, first.ID, fin); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	dup := &model.Attempt{ExamID: examID, CandidateID: candidateID, DurationSeconds: 600}
	if err := repo.Create(ctx, dup); err != nil {
		t.Fatalf("create duplicate: %v", err)
	}
	if err := repo.Finalize(ctx, dup.ID, fin); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("finalize duplicate: expected ErrNoRows, got %v", err)
	}
	if _, err := repo.GetByID(ctx, dup.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("duplicate row kept: %v", err)
	}
	kept, err := repo.GetLatest(ctx, examID, candidateID)
	if err != nil || kept.ID != first.ID {
		t.Fatalf("latest = %v, %v", kept, err)
	}
}
