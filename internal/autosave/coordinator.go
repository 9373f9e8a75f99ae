// Package autosave keeps a candidate's answers flowing to the server while an
// attempt is open: a throttled autosave loop, a teardown write, a local
// recovery copy and the countdown that submits at zero.
package autosave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/psikotes-backend/internal/client"
	"github.com/stemsi/psikotes-backend/internal/model"
)

// DefaultInterval is the autosave throttle.
const DefaultInterval = time.Second

// Saver is the server side of autosave. *client.Client implements it.
type Saver interface {
	Autosave(ctx context.Context, attemptID uuid.UUID, answers model.AnswerMap) (*model.AutosaveResult, error)
	Beacon(ctx context.Context, attemptID uuid.UUID, answers model.AnswerMap) error
}

// LocalStore keeps a recovery copy of the answers on the candidate's device.
type LocalStore interface {
	Save(attemptID uuid.UUID, answers model.AnswerMap) error
	Load(attemptID uuid.UUID) (model.AnswerMap, error)
	Clear(attemptID uuid.UUID) error
}

// Coordinator owns the answer state of one attempt. At most one autosave
// request is in flight at a time, and an unchanged map is never resent.
type Coordinator struct {
	attemptID uuid.UUID
	saver     Saver
	local     LocalStore
	interval  time.Duration
	log       zerolog.Logger

	mu       sync.Mutex
	answers  model.AnswerMap
	lastSent []byte
	inFlight bool
	closed   bool
}

// NewCoordinator creates a Coordinator. local may be nil.
func NewCoordinator(attemptID uuid.UUID, saver Saver, local LocalStore, interval time.Duration, log zerolog.Logger) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Coordinator{
		attemptID: attemptID,
		saver:     saver,
		local:     local,
		interval:  interval,
		answers:   model.AnswerMap{},
		log: log.With().
			Str("component", "autosave").
			Str("attempt_id", attemptID.String()).
			Logger(),
	}
}

// Restore seeds the coordinator after a (re)load. The server's saved answers
// are taken as persisted and win over the local copy; only local entries for
// questions the server does not have are kept, and go out on the next tick.
func (c *Coordinator) Restore(saved model.AnswerMap) model.AnswerMap {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.answers = saved.Clone()
	c.lastSent = encode(c.answers)

	if c.local != nil {
		local, err := c.local.Load(c.attemptID)
		if err != nil {
			c.log.Warn().Err(err).Msg("Local copy unreadable")
		}
		for qid, optionID := range local {
			if _, ok := saved[qid]; !ok {
				c.answers[qid] = optionID
			}
		}
	}
	return c.answers.Clone()
}

// Update records one answer locally. It never talks to the server.
func (c *Coordinator) Update(questionID, optionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.answers[questionID] = optionID
	c.saveLocal()
}

// Answers returns a copy of the current answer map.
func (c *Coordinator) Answers() model.AnswerMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answers.Clone()
}

// Tick sends the full answer map when it differs from the last persisted
// payload. It reports whether a request was made. On failure the payload
// stays unsent and the next tick retries it.
func (c *Coordinator) Tick(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.closed || c.inFlight {
		c.mu.Unlock()
		return false, nil
	}
	payload := encode(c.answers)
	if bytes.Equal(payload, c.lastSent) {
		c.mu.Unlock()
		return false, nil
	}
	snapshot := c.answers.Clone()
	c.inFlight = true
	c.mu.Unlock()

	_, err := c.saver.Autosave(ctx, c.attemptID, snapshot)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if err != nil {
		if errors.Is(err, client.ErrAttemptFinalized) {
			c.closed = true
		}
		c.log.Warn().Err(err).Int("answers", len(snapshot)).Msg("Autosave failed")
		return true, err
	}
	c.lastSent = payload
	c.log.Debug().Int("answers", len(snapshot)).Msg("Autosaved")
	return true, nil
}

// Run ticks on the throttle interval until ctx is done or the attempt is
// found finalized.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Tick(ctx); errors.Is(err, client.ErrAttemptFinalized) {
				return
			}
		}
	}
}

// Close is the teardown path. Unsent answers go out as a beacon that is not
// awaited; the coordinator accepts no further updates.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	payload := encode(c.answers)
	pending := !bytes.Equal(payload, c.lastSent)
	snapshot := c.answers.Clone()
	c.mu.Unlock()

	if !pending {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.saver.Beacon(ctx, c.attemptID, snapshot); err != nil {
			c.log.Warn().Err(err).Msg("Teardown beacon failed")
		}
	}()
}

// Finished marks the attempt final and drops the local copy.
func (c *Coordinator) Finished() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if c.local != nil {
		if err := c.local.Clear(c.attemptID); err != nil {
			c.log.Warn().Err(err).Msg("Failed to clear local copy")
		}
	}
}

// saveLocal must be called with c.mu held.
func (c *Coordinator) saveLocal() {
	if c.local == nil {
		return
	}
	if err := c.local.Save(c.attemptID, c.answers); err != nil {
		c.log.Warn().Err(err).Msg("Local copy write failed")
	}
}

// encoding/json sorts map keys, so equal maps encode to equal bytes.
func encode(m model.AnswerMap) []byte {
	if m == nil {
		m = model.AnswerMap{}
	}
	b, _ := json.Marshal(m)
	return b
}
