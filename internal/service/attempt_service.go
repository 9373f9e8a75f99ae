package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/psikotes-backend/internal/config"
	"github.com/stemsi/psikotes-backend/internal/model"
	"github.com/stemsi/psikotes-backend/internal/response"
	"golang.org/x/crypto/bcrypt"
)

// AttemptService owns the attempt lifecycle: begin/resume, autosave, submit
// and expiry. The server clock is the only authority on remaining time.
type AttemptService struct {
	attempts  AttemptStore
	exams     *ExamService
	rdb       *redis.Client
	tolerance time.Duration
	grace     time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(attempts AttemptStore, exams *ExamService, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		attempts:  attempts,
		exams:     exams,
		rdb:       rdb,
		tolerance: cfg.SubmitClockTolerance,
		grace:     cfg.AnswerBufferGrace,
		now:       time.Now,
		log:       log.With().Str("component", "attempt_service").Logger(),
	}
}

// BeginOrResume returns the candidate's in-progress attempt at an exam,
// creating it on first entry. Calling it again never resets the clock.
func (s *AttemptService) BeginOrResume(ctx context.Context, candidateID int, examID uuid.UUID, accessCode string) (*model.AttemptState, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotAvailable
	}

	bundle, err := s.exams.Bundle(ctx, examID)
	if err != nil {
		return nil, err
	}
	if len(bundle.Questions) == 0 {
		return nil, ErrExamNotAvailable
	}

	existing, err := s.attempts.GetLatest(ctx, examID, candidateID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}
	if existing != nil {
		return s.resume(ctx, existing, bundle)
	}

	if exam.AccessCodeHash != nil {
		if err := bcrypt.CompareHashAndPassword([]byte(*exam.AccessCodeHash), []byte(accessCode)); err != nil {
			return nil, ErrInvalidAccessCode
		}
	}

	attempt := &model.Attempt{
		ExamID:          examID,
		CandidateID:     candidateID,
		DurationSeconds: exam.DurationSeconds(),
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		// Concurrent begin: the other request's row wins.
		existing, fetchErr := s.attempts.GetLatest(ctx, examID, candidateID)
		if fetchErr != nil {
			return nil, fmt.Errorf("concurrent begin detected, but fetch failed: %w", fetchErr)
		}
		return s.resume(ctx, existing, bundle)
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", examID.String()).
		Int("candidate_id", candidateID).
		Msg("Attempt started")
	s.publish(ctx, attempt, model.MonitorAttemptStarted, 0)

	return s.buildState(attempt, bundle, nil, nil), nil
}

func (s *AttemptService) resume(ctx context.Context, a *model.Attempt, b *ExamBundle) (*model.AttemptState, error) {
	if a.Status.Final() {
		return nil, ErrAttemptAlreadyFinalized
	}
	if s.overdue(a) {
		if err := s.finalizeExpired(ctx, a, b); err != nil && !errors.Is(err, ErrAttemptAlreadyFinalized) {
			return nil, err
		}
		return nil, ErrAttemptAlreadyFinalized
	}
	buffered, stamps := s.peekBuffer(ctx, a.ID)
	return s.buildState(a, b, buffered, stamps), nil
}

// State returns the current view of an attempt for a page reload. An
// attempt found past its deadline is expired first.
func (s *AttemptService) State(ctx context.Context, attemptID uuid.UUID, candidateID int) (*model.AttemptState, error) {
	a, err := s.owned(ctx, attemptID, candidateID)
	if err != nil {
		return nil, err
	}
	b, err := s.exams.Bundle(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	if !a.Status.Final() && s.overdue(a) {
		if err := s.finalizeExpired(ctx, a, b); err != nil && !errors.Is(err, ErrAttemptAlreadyFinalized) {
			return nil, err
		}
		if a, err = s.load(ctx, attemptID); err != nil {
			return nil, err
		}
	}

	var (
		buffered model.AnswerMap
		stamps   model.AnswerStamps
	)
	if !a.Status.Final() {
		buffered, stamps = s.peekBuffer(ctx, a.ID)
	}
	return s.buildState(a, b, buffered, stamps), nil
}

// Autosave records a partial answer map. Entries are unioned into what is
// already saved; nothing is ever removed by an autosave.
func (s *AttemptService) Autosave(ctx context.Context, attemptID uuid.UUID, candidateID int, answers model.AnswerMap) (*model.AutosaveResult, error) {
	a, err := s.owned(ctx, attemptID, candidateID)
	if err != nil {
		return nil, err
	}
	if a.Status.Final() {
		return nil, ErrAttemptAlreadyFinalized
	}

	b, err := s.exams.Bundle(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	if s.overdue(a) {
		if err := s.finalizeExpired(ctx, a, b); err != nil && !errors.Is(err, ErrAttemptAlreadyFinalized) {
			return nil, err
		}
		return nil, ErrAttemptAlreadyFinalized
	}

	if err := validateAnswers(b, answers); err != nil {
		return nil, err
	}

	result := &model.AutosaveResult{
		Accepted:         true,
		Saved:            len(answers),
		RemainingSeconds: a.RemainingSeconds(s.now()),
	}
	if len(answers) == 0 {
		return result, nil
	}

	written := s.now()
	if err := s.writeBuffer(ctx, a, answers, written); err != nil {
		s.log.Warn().Err(err).
			Str("attempt_id", a.ID.String()).
			Msg("Answer buffer unavailable, writing through to database")

		ok, dbErr := s.attempts.MergeAnswers(ctx, a.ID, answers, answers.StampAll(written))
		if dbErr != nil {
			return nil, fmt.Errorf("merge answers: %w", dbErr)
		}
		if !ok {
			return nil, ErrAttemptAlreadyFinalized
		}
	}

	s.publish(ctx, a, model.MonitorAnswersSaved, len(answers))
	return result, nil
}

// Submit finalizes an attempt. A manual submission of an exam that requires
// all answers is rejected while questions remain open; an automatic
// (timer-driven) one is only accepted once the deadline is reached and always
// finalizes as expired.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, candidateID int, answers model.AnswerMap, automatic bool) (*model.AttemptResult, error) {
	a, err := s.owned(ctx, attemptID, candidateID)
	if err != nil {
		return nil, err
	}
	if a.Status.Final() {
		return nil, ErrAttemptAlreadyFinalized
	}

	b, err := s.exams.Bundle(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	if err := validateAnswers(b, answers); err != nil {
		return nil, err
	}

	now := s.now()
	deadline := a.Deadline()
	if automatic && now.Before(deadline.Add(-s.tolerance)) {
		return nil, ErrAttemptStillRunning
	}

	status := model.AttemptStatusSubmitted
	if automatic || !now.Before(deadline) {
		status = model.AttemptStatusExpired
	}

	buffered, stamps, err := s.readBuffer(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	merged := a.Answers.Clone().MergeNewer(a.AnswerStamps.Clone(), buffered, stamps).Merge(answers)

	if status == model.AttemptStatusSubmitted && b.Exam.RequireAllAnswers {
		if n := b.Unanswered(merged); n > 0 {
			return nil, &IncompleteSubmissionError{Unanswered: n}
		}
	}

	return s.finalize(ctx, a, b, merged, status)
}

// Expire finalizes an overdue attempt as expired. It is the server-side
// backstop for clients that never send their automatic submit.
func (s *AttemptService) Expire(ctx context.Context, attemptID uuid.UUID) error {
	a, err := s.load(ctx, attemptID)
	if err != nil {
		return err
	}
	if a.Status.Final() {
		return ErrAttemptAlreadyFinalized
	}
	if !s.overdue(a) {
		return ErrAttemptStillRunning
	}
	b, err := s.exams.Bundle(ctx, a.ExamID)
	if err != nil {
		return err
	}
	return s.finalizeExpired(ctx, a, b)
}

// ExpireOverdue expires up to limit overdue attempts that sort after the
// cursor. Attempts that fail to expire are skipped; the returned page carries
// the cursor of the last attempt visited so a sweep moves past them.
func (s *AttemptService) ExpireOverdue(ctx context.Context, after model.AttemptCursor, limit int) (*model.ExpiryPage, error) {
	refs, err := s.attempts.ListOverdue(ctx, s.now(), after, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue attempts: %w", err)
	}

	page := &model.ExpiryPage{Listed: len(refs), Next: after}
	for _, ref := range refs {
		page.Next = ref
		err := s.Expire(ctx, ref.ID)
		switch {
		case err == nil:
			page.Expired++
		case errors.Is(err, ErrAttemptAlreadyFinalized), errors.Is(err, ErrAttemptStillRunning):
		default:
			s.log.Error().Err(err).Str("attempt_id", ref.ID.String()).Msg("Failed to expire attempt")
		}
	}
	return page, nil
}

// PersistBuffered copies the Redis answer buffer of an attempt into the
// durable store. It reports false when the attempt is already final.
func (s *AttemptService) PersistBuffered(ctx context.Context, attemptID uuid.UUID) (bool, error) {
	buffered, stamps, err := s.readBuffer(ctx, attemptID)
	if err != nil {
		return false, err
	}
	if len(buffered) == 0 {
		return true, nil
	}
	return s.attempts.MergeAnswers(ctx, attemptID, buffered, stamps)
}

// Result returns a single attempt with its scoring outcome.
func (s *AttemptService) Result(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, *model.AttemptResult, error) {
	a, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, nil, err
	}
	r := a.Result()
	if exam, err := s.exams.GetExam(ctx, a.ExamID); err == nil {
		describe(exam.ExamType, r)
	}
	return a, r, nil
}

// ListResults returns the attempts of an exam, paginated.
func (s *AttemptService) ListResults(ctx context.Context, examID uuid.UUID, status *model.AttemptStatus, page, perPage int) ([]model.Attempt, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	attempts, total, err := s.attempts.ListByExam(ctx, examID, status, page, perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list attempts: %w", err)
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}

	return attempts, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: (int(total) + perPage - 1) / perPage,
	}, nil
}

func (s *AttemptService) finalizeExpired(ctx context.Context, a *model.Attempt, b *ExamBundle) error {
	buffered, stamps, err := s.readBuffer(ctx, a.ID)
	if err != nil {
		return err
	}
	merged := a.Answers.Clone().MergeNewer(a.AnswerStamps.Clone(), buffered, stamps)
	_, err = s.finalize(ctx, a, b, merged, model.AttemptStatusExpired)
	return err
}

func (s *AttemptService) finalize(ctx context.Context, a *model.Attempt, b *ExamBundle, answers model.AnswerMap, status model.AttemptStatus) (*model.AttemptResult, error) {
	outcome := scoreAttempt(b, answers)
	if outcome.err != nil {
		s.log.Warn().Err(outcome.err).
			Str("attempt_id", a.ID.String()).
			Str("exam_type", string(b.Exam.ExamType)).
			Msg("Attempt finalized without classification")
	}

	f := &model.Finalization{
		Status:       status,
		Answers:      answers,
		Score:        outcome.Score,
		Label:        outcome.Label,
		Flags:        outcome.Flags,
		ScoringError: outcome.ScoringError,
		FinishedAt:   s.now(),
	}
	if err := s.attempts.Finalize(ctx, a.ID, f); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptAlreadyFinalized
		}
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	f.Apply(a)

	if err := s.rdb.Del(ctx, config.CacheKey.AttemptAnswersKey(a.ID.String())).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Failed to clear answer buffer")
	}

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("status", string(status)).
		Int("answers", len(answers)).
		Msg("Attempt finalized")
	s.publish(ctx, a, model.MonitorAttemptFinalized, len(answers))

	r := a.Result()
	r.Description = outcome.Description
	return r, nil
}

func (s *AttemptService) load(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

func (s *AttemptService) owned(ctx context.Context, id uuid.UUID, candidateID int) (*model.Attempt, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.CandidateID != candidateID {
		return nil, ErrAttemptForbidden
	}
	return a, nil
}

func (s *AttemptService) overdue(a *model.Attempt) bool {
	return !s.now().Before(a.Deadline())
}

// writeBuffer unions answers into the Redis hash and queues the attempt for
// durable persistence. Each field holds "<unix ms>:<option id>" so a value
// left behind by an outage never beats a later write-through. The hash
// outlives the deadline by the grace period so a late submit still sees it.
func (s *AttemptService) writeBuffer(ctx context.Context, a *model.Attempt, answers model.AnswerMap, written time.Time) error {
	key := config.CacheKey.AttemptAnswersKey(a.ID.String())
	ttl := a.Deadline().Sub(written) + s.grace

	stamp := strconv.FormatInt(written.UnixMilli(), 10)
	fields := make(map[string]any, len(answers))
	for k, v := range answers {
		fields[k] = stamp + ":" + v
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, a.ID.String())
	_, err := pipe.Exec(ctx)
	return err
}

// readBuffer returns the buffered answers of an attempt with their write
// stamps. A Redis failure is returned as ErrAnswerBufferUnavailable; callers
// that finalize must not proceed without the buffer.
func (s *AttemptService) readBuffer(ctx context.Context, id uuid.UUID) (model.AnswerMap, model.AnswerStamps, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(id.String())).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrAnswerBufferUnavailable, err)
	}
	answers := make(model.AnswerMap, len(raw))
	stamps := make(model.AnswerStamps, len(raw))
	for qid, v := range raw {
		answers[qid], stamps[qid] = decodeBuffered(v)
	}
	return answers, stamps, nil
}

// peekBuffer is readBuffer for read-only views, which fall back to the saved
// answers while Redis is down.
func (s *AttemptService) peekBuffer(ctx context.Context, id uuid.UUID) (model.AnswerMap, model.AnswerStamps) {
	answers, stamps, err := s.readBuffer(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", id.String()).Msg("Answer buffer unavailable, using saved answers")
		return nil, nil
	}
	return answers, stamps
}

// decodeBuffered splits a buffer value into option id and write stamp. A
// value without a stamp decodes with stamp 0.
func decodeBuffered(v string) (string, int64) {
	stamp, optionID, ok := strings.Cut(v, ":")
	if !ok {
		return v, 0
	}
	t, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return v, 0
	}
	return optionID, t
}

func (s *AttemptService) buildState(a *model.Attempt, b *ExamBundle, buffered model.AnswerMap, stamps model.AnswerStamps) *model.AttemptState {
	paper := b.Paper()
	state := &model.AttemptState{
		AttemptID:        a.ID,
		Status:           a.Status,
		StartedAt:        a.StartedAt,
		RemainingSeconds: a.RemainingSeconds(s.now()),
		Answers:          a.Answers.Clone().MergeNewer(a.AnswerStamps.Clone(), buffered, stamps),
		Exam:             paper.Exam,
		Questions:        paper.Questions,
	}
	if a.Status.Final() {
		state.Result = a.Result()
		describe(b.Exam.ExamType, state.Result)
	}
	return state
}

func validateAnswers(b *ExamBundle, answers model.AnswerMap) error {
	for qid, optionID := range answers {
		q, ok := b.Question(qid)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownQuestion, qid)
		}
		if _, ok := q.FindOption(optionID); !ok {
			return fmt.Errorf("%w: %q for question %s", ErrInvalidOption, optionID, qid)
		}
	}
	return nil
}
