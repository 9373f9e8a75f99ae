package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/psikotes-backend/internal/config"
	"github.com/stemsi/psikotes-backend/internal/model"
)

// ExamBundle is an exam together with its full question set, answer key
// included. It is what the paper cache stores; candidates only ever see Paper().
type ExamBundle struct {
	Exam      model.Exam       `json:"exam"`
	Questions []model.Question `json:"questions"`

	byID map[string]*model.Question
}

// Question looks a question up by its id.
func (b *ExamBundle) Question(id string) (*model.Question, bool) {
	if b.byID == nil {
		b.byID = make(map[string]*model.Question, len(b.Questions))
		for i := range b.Questions {
			b.byID[b.Questions[i].ID.String()] = &b.Questions[i]
		}
	}
	q, ok := b.byID[id]
	return q, ok
}

// Paper strips the answer key.
func (b *ExamBundle) Paper() model.ExamPaper {
	qs := make([]model.QuestionForStudent, len(b.Questions))
	for i, q := range b.Questions {
		qs[i] = model.QuestionForStudent{
			ID:           q.ID,
			Ordinal:      q.Ordinal,
			QuestionText: q.QuestionText,
			Options:      q.Options,
		}
	}
	return model.ExamPaper{Exam: b.Exam.Metadata(), Questions: qs}
}

// Unanswered counts the questions that have no answer in m.
func (b *ExamBundle) Unanswered(m model.AnswerMap) int {
	n := 0
	for _, q := range b.Questions {
		if v, ok := m[q.ID.String()]; !ok || v == "" {
			n++
		}
	}
	return n
}

// ExamService loads exams and keeps their question sets cached in Redis.
type ExamService struct {
	exams ExamStore
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(exams ExamStore, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams: exams,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.With().Str("component", "exam_service").Logger(),
	}
}

// GetExam reads the exam row straight from PostgreSQL. Status and access code
// checks go through here so they never see a stale cache entry.
func (s *ExamService) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotAvailable
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// Bundle returns the exam with its questions, from Redis when cached.
// A Redis failure falls back to PostgreSQL.
func (s *ExamService) Bundle(ctx context.Context, examID uuid.UUID) (*ExamBundle, error) {
	key := config.CacheKey.ExamPaperKey(examID.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var b ExamBundle
		if err := json.Unmarshal(data, &b); err == nil {
			return &b, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt paper cache entry, reloading")
	case errors.Is(err, redis.Nil):
	default:
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Paper cache unavailable")
	}

	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	return s.warm(ctx, exam)
}

func (s *ExamService) warm(ctx context.Context, exam *model.Exam) (*ExamBundle, error) {
	questions, err := s.exams.ListQuestions(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if questions == nil {
		questions = []model.Question{}
	}

	b := &ExamBundle{Exam: *exam, Questions: questions}
	payload, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal paper: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamPaperKey(exam.ID.String()), payload, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to cache paper")
	}

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(questions)).
		Msg("Paper cached")
	return b, nil
}

// Invalidate drops the cached paper of an exam.
func (s *ExamService) Invalidate(ctx context.Context, examID uuid.UUID) error {
	return s.rdb.Del(ctx, config.CacheKey.ExamPaperKey(examID.String())).Err()
}

// PrewarmAllCaches loads all published exams into Redis on application startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.exams.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if _, err := s.warm(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}
