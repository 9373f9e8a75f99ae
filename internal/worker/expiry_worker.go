package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/psikotes-backend/internal/model"
)

// AttemptExpirer finalizes in-progress attempts whose deadline has passed,
// one page after the cursor at a time.
type AttemptExpirer interface {
	ExpireOverdue(ctx context.Context, after model.AttemptCursor, limit int) (*model.ExpiryPage, error)
}

// ExpiryWorker periodically expires attempts whose client never sent the
// automatic submit (closed tab, lost connection).
type ExpiryWorker struct {
	expirer   AttemptExpirer
	interval  time.Duration
	batchSize int
	log       zerolog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(expirer AttemptExpirer, interval time.Duration, batchSize int, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		expirer:   expirer,
		interval:  interval,
		batchSize: batchSize,
		log:       log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start sweeps once immediately, then on every tick until ctx is cancelled.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Sweep(ctx)

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep pages through every overdue attempt once. Attempts that fail to
// expire are passed over and retried on the next sweep.
func (w *ExpiryWorker) Sweep(ctx context.Context) int {
	total := 0
	var cursor model.AttemptCursor
	for ctx.Err() == nil {
		page, err := w.expirer.ExpireOverdue(ctx, cursor, w.batchSize)
		if err != nil {
			w.log.Error().Err(err).Msg("Sweep failed")
			break
		}
		total += page.Expired
		if page.Listed < w.batchSize {
			break
		}
		cursor = page.Next
	}
	if total > 0 {
		w.log.Info().Int("expired", total).Msg("Overdue attempts expired")
	}
	return total
}
