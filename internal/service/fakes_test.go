package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/psikotes-backend/internal/config"
	"github.com/stemsi/psikotes-backend/internal/model"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeAttemptStore mirrors the conditional semantics of the PostgreSQL repository.
type fakeAttemptStore struct {
	mu       sync.Mutex
	clock    *testClock
	rows     map[uuid.UUID]*model.Attempt
	merges   int
	finalize int
}

func newFakeAttemptStore(clock *testClock) *fakeAttemptStore {
	return &fakeAttemptStore{clock: clock, rows: make(map[uuid.UUID]*model.Attempt)}
}

func copyAttempt(a *model.Attempt) *model.Attempt {
	cp := *a
	cp.Answers = a.Answers.Clone()
	cp.AnswerStamps = a.AnswerStamps.Clone()
	return &cp
}

func (f *fakeAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyAttempt(a), nil
}

func (f *fakeAttemptStore) GetLatest(_ context.Context, examID uuid.UUID, candidateID int) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *model.Attempt
	for _, a := range f.rows {
		if a.ExamID != examID || a.CandidateID != candidateID {
			continue
		}
		if best == nil || (a.Status == model.AttemptStatusInProgress && best.Status != model.AttemptStatusInProgress) {
			best = a
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	return copyAttempt(best), nil
}

func (f *fakeAttemptStore) Create(_ context.Context, a *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.rows {
		if existing.ExamID == a.ExamID && existing.CandidateID == a.CandidateID && existing.Status == model.AttemptStatusInProgress {
			return pgx.ErrNoRows
		}
	}
	a.ID = uuid.New()
	a.StartedAt = f.clock.Now()
	a.Status = model.AttemptStatusInProgress
	if a.Answers == nil {
		a.Answers = model.AnswerMap{}
	}
	a.AnswerStamps = model.AnswerStamps{}
	f.rows[a.ID] = copyAttempt(a)
	return nil
}

func (f *fakeAttemptStore) MergeAnswers(_ context.Context, id uuid.UUID, answers model.AnswerMap, stamps model.AnswerStamps) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok || a.Status != model.AttemptStatusInProgress {
		return false, nil
	}
	a.Answers.MergeNewer(a.AnswerStamps, answers, stamps)
	f.merges++
	return true, nil
}

func (f *fakeAttemptStore) Finalize(_ context.Context, id uuid.UUID, fin *model.Finalization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok || a.Status != model.AttemptStatusInProgress {
		return pgx.ErrNoRows
	}
	fin.Apply(a)
	a.Answers = fin.Answers.Clone()
	f.finalize++
	return nil
}

func (f *fakeAttemptStore) ListOverdue(_ context.Context, now time.Time, after model.AttemptCursor, limit int) ([]model.AttemptCursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []model.AttemptCursor
	for id, a := range f.rows {
		ref := model.AttemptCursor{StartedAt: a.StartedAt, ID: id}
		if a.Status == model.AttemptStatusInProgress && !now.Before(a.Deadline()) && after.Before(ref) {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Before(refs[j]) })
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func (f *fakeAttemptStore) CountByStatus(_ context.Context, examID uuid.UUID) (model.MonitorStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stats model.MonitorStats
	for _, a := range f.rows {
		if a.ExamID != examID {
			continue
		}
		switch a.Status {
		case model.AttemptStatusInProgress:
			stats.InProgress++
		case model.AttemptStatusSubmitted:
			stats.Submitted++
		case model.AttemptStatusExpired:
			stats.Expired++
		}
	}
	return stats, nil
}

func (f *fakeAttemptStore) ListByExam(_ context.Context, examID uuid.UUID, status *model.AttemptStatus, page, perPage int) ([]model.Attempt, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []model.Attempt
	for _, a := range f.rows {
		if a.ExamID != examID || (status != nil && a.Status != *status) {
			continue
		}
		all = append(all, *copyAttempt(a))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt.After(all[j].StartedAt) })
	total := int64(len(all))
	start := (page - 1) * perPage
	if start >= len(all) {
		return []model.Attempt{}, total, nil
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (f *fakeAttemptStore) row(id uuid.UUID) *model.Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyAttempt(f.rows[id])
}

type fakeExamStore struct {
	exams     map[uuid.UUID]*model.Exam
	questions map[uuid.UUID][]model.Question
	reads     int
}

func (f *fakeExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	e, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (f *fakeExamStore) ListPublished(_ context.Context) ([]model.Exam, error) {
	var out []model.Exam
	for _, e := range f.exams {
		if e.Status == model.ExamStatusPublished {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeExamStore) ListQuestions(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	f.reads++
	return append([]model.Question(nil), f.questions[examID]...), nil
}

// ─── Fixtures ──────────────────────────────────────────────────────────────

func pssOptions() []model.Option {
	labels := []string{"Tidak pernah", "Hampir tidak pernah", "Kadang-kadang", "Cukup sering", "Sangat sering"}
	opts := make([]model.Option, len(labels))
	for i, l := range labels {
		opts[i] = model.Option{ID: fmt.Sprintf("%d", i), Label: l, Value: i}
	}
	return opts
}

func srqOptions() []model.Option {
	return []model.Option{{ID: "Y", Label: "Ya", Value: 1}, {ID: "T", Label: "Tidak", Value: 0}}
}

func newExam(examType model.ExamType, n int, requireAll bool) (*model.Exam, []model.Question) {
	exam := &model.Exam{
		ID:                uuid.New(),
		Title:             "Tes " + string(examType),
		ExamType:          examType,
		DurationMinutes:   10,
		RequireAllAnswers: requireAll,
		DisplayMode:       model.DisplayModeSingle,
		Status:            model.ExamStatusPublished,
	}
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:           uuid.New(),
			ExamID:       exam.ID,
			Ordinal:      i + 1,
			QuestionText: fmt.Sprintf("Pertanyaan %d", i+1),
		}
		switch examType {
		case model.ExamTypePSS:
			qs[i].Options = pssOptions()
		case model.ExamTypeSRQ29:
			qs[i].Options = srqOptions()
		default:
			qs[i].Options = []model.Option{{ID: "A", Label: "A"}, {ID: "B", Label: "B"}, {ID: "C", Label: "C"}}
			qs[i].CorrectOption = "A"
		}
	}
	return exam, qs
}

type harness struct {
	svc      *AttemptService
	exams    *ExamService
	attempts *fakeAttemptStore
	examDB   *fakeExamStore
	clock    *testClock
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	exam     *model.Exam
	qs       []model.Question
}

func newHarness(t *testing.T, exam *model.Exam, qs []model.Question) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &testClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	attempts := newFakeAttemptStore(clock)
	examDB := &fakeExamStore{
		exams:     map[uuid.UUID]*model.Exam{exam.ID: exam},
		questions: map[uuid.UUID][]model.Question{exam.ID: qs},
	}

	cfg := &config.Config{SubmitClockTolerance: 5 * time.Second, AnswerBufferGrace: 30 * time.Minute}
	exams := NewExamService(examDB, rdb, time.Hour, zerolog.Nop())
	svc := NewAttemptService(attempts, exams, rdb, cfg, zerolog.Nop())
	svc.now = clock.Now

	return &harness{svc: svc, exams: exams, attempts: attempts, examDB: examDB, clock: clock, mr: mr, rdb: rdb, exam: exam, qs: qs}
}

// restartRedis brings a closed miniredis back on the same address with its data.
func (h *harness) restartRedis(t *testing.T) {
	t.Helper()
	if err := h.mr.Restart(); err != nil {
		t.Fatalf("restart redis: %v", err)
	}
	// Drop connections broken by the outage.
	for i := 0; i < 3; i++ {
		if h.rdb.Ping(context.Background()).Err() == nil {
			return
		}
	}
	t.Fatal("redis did not come back")
}

func (h *harness) qid(i int) string {
	return h.qs[i].ID.String()
}

func (h *harness) begin(t *testing.T, candidateID int) *model.AttemptState {
	t.Helper()
	st, err := h.svc.BeginOrResume(context.Background(), candidateID, h.exam.ID, "")
	if err != nil {
		t.Fatalf("BeginOrResume: %v", err)
	}
	return st
}
