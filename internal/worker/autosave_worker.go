package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/psikotes-backend/internal/config"
)

const (
	PersistBatchSize   = 50
	PersistPollTimeout = 1 * time.Second
	PersistRetryDelay  = 5 * time.Second
)

// AnswerPersister copies an attempt's Redis answer buffer into PostgreSQL.
// It reports false when the attempt is already final and the buffer is moot.
type AnswerPersister interface {
	PersistBuffered(ctx context.Context, attemptID uuid.UUID) (bool, error)
}

// AutosaveWorker consumes persist_answers_queue. Each entry is an attempt id;
// the whole buffer is merged, so duplicates and reordering are harmless.
type AutosaveWorker struct {
	persister  AnswerPersister
	rdb        *redis.Client
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(persister AnswerPersister, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		persister:  persister,
		rdb:        rdb,
		retryDelay: PersistRetryDelay,
		log:        log.With().Str("component", "autosave_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AutosaveWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or the poll timeout passes.
	result, err := w.rdb.BLPop(ctx, PersistPollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			time.Sleep(time.Second)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	batch := []string{result[1]}
	if more, err := w.rdb.LPopCount(ctx, config.WorkerKey.PersistAnswersQueue, PersistBatchSize-1).Result(); err == nil {
		batch = append(batch, more...)
	}

	if failed := w.flush(ctx, batch); len(failed) > 0 {
		w.log.Error().Int("failed", len(failed)).Dur("retry_in", w.retryDelay).Msg("Persist error, requeueing")
		w.requeue(context.Background(), failed)
		select {
		case <-ctx.Done():
		case <-time.After(w.retryDelay):
		}
	}
}

// flush persists each distinct attempt of the batch once and returns the
// ids that failed.
func (w *AutosaveWorker) flush(ctx context.Context, batch []string) []string {
	seen := make(map[string]struct{}, len(batch))
	var failed []string

	for _, raw := range batch {
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}

		id, err := uuid.Parse(raw)
		if err != nil {
			w.log.Error().Str("payload", raw).Msg("Invalid attempt id in queue, dropping")
			continue
		}

		ok, err := w.persister.PersistBuffered(ctx, id)
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", raw).Msg("Persist failed")
			failed = append(failed, raw)
			continue
		}
		if !ok {
			w.log.Debug().Str("attempt_id", raw).Msg("Attempt already finalized, buffer skipped")
		}
	}
	return failed
}

func (w *AutosaveWorker) requeue(ctx context.Context, ids []string) {
	vals := make([]any, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	if err := w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, vals...).Err(); err != nil {
		w.log.Error().Err(err).Int("count", len(ids)).Msg("Requeue failed")
	}
}

// drain processes all remaining items in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	drained := 0
	for {
		batch, err := w.rdb.LPopCount(ctx, config.WorkerKey.PersistAnswersQueue, PersistBatchSize).Result()
		if err != nil || len(batch) == 0 {
			break
		}

		failed := w.flush(ctx, batch)
		drained += len(batch) - len(failed)
		if len(failed) > 0 {
			w.log.Error().Int("failed", len(failed)).Msg("Drain persist error")
			w.requeue(ctx, failed)
			break
		}
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
