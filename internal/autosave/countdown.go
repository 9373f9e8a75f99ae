package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stemsi/psikotes-backend/internal/client"
)

// ErrFinalizeExhausted is returned by Countdown.Err when every finalize
// attempt failed.
var ErrFinalizeExhausted = errors.New("finalize retries exhausted")

// Finalizer submits the attempt automatically.
type Finalizer func(ctx context.Context) error

// Countdown derives a local deadline from the server's remaining seconds and
// calls the finalizer once it is reached. It never trusts a stored client
// clock: every (re)load starts a new Countdown from fresh server state.
type Countdown struct {
	deadline time.Time
	finalize Finalizer
	retries  int
	backoff  time.Duration

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
	err    error
}

// NewCountdown creates a Countdown. retries is the number of finalize calls
// made before giving up.
func NewCountdown(remainingSeconds int, finalize Finalizer, retries int, backoff time.Duration) *Countdown {
	if retries < 1 {
		retries = 1
	}
	return &Countdown{
		deadline: time.Now().Add(time.Duration(remainingSeconds) * time.Second),
		finalize: finalize,
		retries:  retries,
		backoff:  backoff,
		done:     make(chan struct{}),
	}
}

// Remaining is the time left on the local clock.
func (c *Countdown) Remaining() time.Duration {
	if d := time.Until(c.deadline); d > 0 {
		return d
	}
	return 0
}

// Start runs the countdown in a goroutine.
func (c *Countdown) Start(ctx context.Context) {
	c.once.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		go c.run(ctx)
	})
}

// Stop cancels the countdown without finalizing. Safe to call more than once.
func (c *Countdown) Stop() {
	c.once.Do(func() {
		c.setErr(context.Canceled)
		close(c.done)
	})
	if c.cancel != nil {
		c.cancel()
	}
}

// Done is closed when the countdown has finished or was stopped.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}

// Err is the outcome once Done is closed: nil on success, context.Canceled
// when stopped, or an ErrFinalizeExhausted wrap.
func (c *Countdown) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Countdown) run(ctx context.Context) {
	defer close(c.done)

	timer := time.NewTimer(c.Remaining())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.setErr(ctx.Err())
		return
	case <-timer.C:
	}

	var last error
	for i := 0; i < c.retries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				c.setErr(ctx.Err())
				return
			case <-time.After(c.backoff):
			}
		}
		last = c.finalize(ctx)
		if last == nil || errors.Is(last, client.ErrAttemptFinalized) {
			c.setErr(nil)
			return
		}
	}
	c.setErr(fmt.Errorf("%w after %d attempts: %v", ErrFinalizeExhausted, c.retries, last))
}

func (c *Countdown) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}
