package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/psikotes-backend/internal/config"
	"github.com/stemsi/psikotes-backend/internal/model"
)

// publish fans an attempt event out to live monitors. Delivery is best
// effort; a monitor that misses an event catches up on its next refresh.
func (s *AttemptService) publish(ctx context.Context, a *model.Attempt, typ model.MonitorEventType, answered int) {
	payload, err := json.Marshal(model.MonitorEvent{
		Type:        typ,
		AttemptID:   a.ID,
		CandidateID: a.CandidateID,
		Status:      a.Status,
		Answered:    answered,
		At:          s.now().UTC(),
	})
	if err != nil {
		return
	}
	channel := config.CacheKey.ExamMonitorChannel(a.ExamID.String())
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Failed to publish monitor event")
	}
}

// MonitorStats returns the current per-status attempt counts of an exam.
func (s *AttemptService) MonitorStats(ctx context.Context, examID uuid.UUID) (model.MonitorStats, error) {
	return s.attempts.CountByStatus(ctx, examID)
}

// MonitorSnapshot gathers the exam header and attempt counts that open a
// monitor stream. The question set and the counts are fetched concurrently.
func (s *AttemptService) MonitorSnapshot(ctx context.Context, examID uuid.UUID) (*model.MonitorSnapshot, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	var (
		bundle    *ExamBundle
		stats     model.MonitorStats
		bundleErr error
		statsErr  error
		wg        sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		bundle, bundleErr = s.exams.Bundle(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		stats, statsErr = s.attempts.CountByStatus(ctx, examID)
	}()
	wg.Wait()

	if bundleErr != nil {
		return nil, bundleErr
	}
	if statsErr != nil {
		return nil, statsErr
	}

	return &model.MonitorSnapshot{
		Exam:           exam.Metadata(),
		TotalQuestions: len(bundle.Questions),
		Stats:          stats,
	}, nil
}

// SubscribeMonitor subscribes to the live attempt events of an exam. The
// caller owns the returned subscription and must close it.
func (s *AttemptService) SubscribeMonitor(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}
