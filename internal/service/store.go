package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/psikotes-backend/internal/model"
)

// AttemptStore is the durable attempt storage. Lookups of a missing row
// return pgx.ErrNoRows; Create and Finalize return it when their condition
// matched no row. MergeAnswers only applies entries whose stamp is later than
// the stored one.
type AttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetLatest(ctx context.Context, examID uuid.UUID, candidateID int) (*model.Attempt, error)
	Create(ctx context.Context, a *model.Attempt) error
	MergeAnswers(ctx context.Context, id uuid.UUID, answers model.AnswerMap, stamps model.AnswerStamps) (bool, error)
	Finalize(ctx context.Context, id uuid.UUID, f *model.Finalization) error
	ListOverdue(ctx context.Context, now time.Time, after model.AttemptCursor, limit int) ([]model.AttemptCursor, error)
	ListByExam(ctx context.Context, examID uuid.UUID, status *model.AttemptStatus, page, perPage int) ([]model.Attempt, int64, error)
	CountByStatus(ctx context.Context, examID uuid.UUID) (model.MonitorStats, error)
}

// ExamStore is the durable exam and question storage.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListPublished(ctx context.Context) ([]model.Exam, error)
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}
