package autosave

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/psikotes-backend/internal/client"
	"github.com/stemsi/psikotes-backend/internal/model"
	"github.com/stemsi/psikotes-backend/internal/response"
)

type fakeSaver struct {
	mu       sync.Mutex
	saves    []model.AnswerMap
	beacons  chan model.AnswerMap
	err      error
	block    chan struct{}
	entered  chan struct{}
	inFlight int32
	maxSeen  int32
}

func newFakeSaver() *fakeSaver {
	return &fakeSaver{beacons: make(chan model.AnswerMap, 1)}
}

func (f *fakeSaver) Autosave(_ context.Context, _ uuid.UUID, answers model.AnswerMap) (*model.AutosaveResult, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		m := atomic.LoadInt32(&f.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxSeen, m, n) {
			break
		}
	}
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.saves = append(f.saves, answers.Clone())
	return &model.AutosaveResult{Accepted: true, Saved: len(answers)}, nil
}

func (f *fakeSaver) Beacon(_ context.Context, _ uuid.UUID, answers model.AnswerMap) error {
	f.beacons <- answers
	return nil
}

func (f *fakeSaver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func TestTickSkipsUnchangedPayload(t *testing.T) {
	s := newFakeSaver()
	c := NewCoordinator(uuid.New(), s, nil, time.Second, zerolog.Nop())
	ctx := context.Background()

	c.Update("q1", "A")
	if sent, err := c.Tick(ctx); !sent || err != nil {
		t.Fatalf("first tick: sent=%v err=%v", sent, err)
	}
	if sent, _ := c.Tick(ctx); sent {
		t.Fatal("unchanged map was resent")
	}

	// Re-selecting the same option leaves the payload byte-identical.
	c.Update("q1", "A")
	if sent, _ := c.Tick(ctx); sent {
		t.Fatal("identical payload was resent")
	}

	c.Update("q2", "B")
	if sent, _ := c.Tick(ctx); !sent {
		t.Fatal("changed map was not sent")
	}
	if s.count() != 2 {
		t.Fatalf("saves = %d, want 2", s.count())
	}
	if last := s.saves[1]; last["q1"] != "A" || last["q2"] != "B" {
		t.Fatalf("full map expected, got %v", last)
	}
}

func TestTickRetriesAfterFailure(t *testing.T) {
	s := newFakeSaver()
	s.err = errors.New("network down")
	c := NewCoordinator(uuid.New(), s, nil, time.Second, zerolog.Nop())
	ctx := context.Background()

	c.Update("q1", "A")
	if _, err := c.Tick(ctx); err == nil {
		t.Fatal("expected error")
	}

	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()

	if sent, err := c.Tick(ctx); !sent || err != nil {
		t.Fatalf("retry: sent=%v err=%v", sent, err)
	}
	if s.count() != 1 {
		t.Fatalf("saves = %d", s.count())
	}
}

func TestTickAllowsOneRequestInFlight(t *testing.T) {
	s := newFakeSaver()
	s.block = make(chan struct{})
	s.entered = make(chan struct{}, 1)
	c := NewCoordinator(uuid.New(), s, nil, time.Second, zerolog.Nop())
	ctx := context.Background()

	c.Update("q1", "A")
	done := make(chan struct{})
	go func() {
		_, _ = c.Tick(ctx)
		close(done)
	}()
	<-s.entered

	c.Update("q2", "B")
	if sent, _ := c.Tick(ctx); sent {
		t.Fatal("second request started while one was in flight")
	}

	close(s.block)
	<-done
	s.entered = nil

	if sent, _ := c.Tick(ctx); !sent {
		t.Fatal("pending change not sent after the in-flight request finished")
	}
	if atomic.LoadInt32(&s.maxSeen) != 1 {
		t.Fatalf("max concurrent = %d", s.maxSeen)
	}
}

func TestFinalizedAttemptStopsCoordinator(t *testing.T) {
	s := newFakeSaver()
	s.err = &client.APIError{Status: 409, Code: response.ErrAttemptAlreadyFinalized}
	c := NewCoordinator(uuid.New(), s, nil, time.Millisecond, zerolog.Nop())

	c.Update("q1", "A")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	finished := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		t.Fatal("Run kept going after the attempt was finalized")
	}

	c.Update("q2", "B")
	if _, ok := c.Answers()["q2"]; ok {
		t.Fatal("update accepted after finalization")
	}
}

func TestCloseSendsPendingBeacon(t *testing.T) {
	s := newFakeSaver()
	c := NewCoordinator(uuid.New(), s, nil, time.Second, zerolog.Nop())

	c.Update("q1", "A")
	c.Close()

	select {
	case got := <-s.beacons:
		if got["q1"] != "A" {
			t.Fatalf("beacon = %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no beacon sent")
	}

	c.Update("q2", "B")
	if sent, _ := c.Tick(context.Background()); sent {
		t.Fatal("tick after close")
	}
}

func TestCloseWithoutChangesSendsNothing(t *testing.T) {
	s := newFakeSaver()
	c := NewCoordinator(uuid.New(), s, nil, time.Second, zerolog.Nop())
	c.Restore(model.AnswerMap{"q1": "A"})

	c.Close()
	select {
	case got := <-s.beacons:
		t.Fatalf("unexpected beacon %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRestoreMergesLocalCopy(t *testing.T) {
	local, err := NewFileFallback(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id := uuid.New()

	first := NewCoordinator(id, newFakeSaver(), local, time.Second, zerolog.Nop())
	first.Update("q1", "A")
	first.Update("q2", "B")

	// Reload: the server only saw q1.
	s := newFakeSaver()
	second := NewCoordinator(id, s, local, time.Second, zerolog.Nop())
	got := second.Restore(model.AnswerMap{"q1": "A"})
	if got["q2"] != "B" {
		t.Fatalf("restored = %v", got)
	}

	if sent, err := second.Tick(context.Background()); !sent || err != nil {
		t.Fatalf("local-only answer not pushed: sent=%v err=%v", sent, err)
	}

	second.Finished()
	left, err := local.Load(id)
	if err != nil || len(left) != 0 {
		t.Fatalf("local copy not cleared: %v %v", left, err)
	}
}

func TestRestorePrefersServerAnswers(t *testing.T) {
	local, err := NewFileFallback(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id := uuid.New()
	if err := local.Save(id, model.AnswerMap{"q1": "A", "q2": "C"}); err != nil {
		t.Fatal(err)
	}

	c := NewCoordinator(id, newFakeSaver(), local, time.Second, zerolog.Nop())
	got := c.Restore(model.AnswerMap{"q1": "B"})
	if got["q1"] != "B" {
		t.Fatalf("q1 = %q, want server value B", got["q1"])
	}
	if got["q2"] != "C" {
		t.Fatalf("q2 = %q, want local-only value C", got["q2"])
	}
}

func TestFileFallbackRoundTrip(t *testing.T) {
	f, err := NewFileFallback(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id := uuid.New()

	empty, err := f.Load(id)
	if err != nil || len(empty) != 0 {
		t.Fatalf("missing file: %v %v", empty, err)
	}
	if err := f.Save(id, model.AnswerMap{"q1": "Y"}); err != nil {
		t.Fatal(err)
	}
	got, err := f.Load(id)
	if err != nil || got["q1"] != "Y" {
		t.Fatalf("load: %v %v", got, err)
	}
	if err := f.Clear(id); err != nil {
		t.Fatal(err)
	}
	if err := f.Clear(id); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestCountdownFinalizesAtZero(t *testing.T) {
	var calls int32
	cd := NewCountdown(0, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, 3, time.Millisecond)

	cd.Start(context.Background())
	select {
	case <-cd.Done():
	case <-time.After(time.Second):
		t.Fatal("countdown did not finish")
	}
	if cd.Err() != nil || atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("err=%v calls=%d", cd.Err(), calls)
	}
}

func TestCountdownRetriesThenGivesUp(t *testing.T) {
	var calls int32
	cd := NewCountdown(0, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("offline")
	}, 3, time.Millisecond)

	cd.Start(context.Background())
	<-cd.Done()
	if !errors.Is(cd.Err(), ErrFinalizeExhausted) {
		t.Fatalf("err = %v", cd.Err())
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestCountdownRecoversOnRetry(t *testing.T) {
	var calls int32
	cd := NewCountdown(0, func(context.Context) error {
		if atomic.AddInt32(&calls, 1) < 2 {
			return errors.New("offline")
		}
		return nil
	}, 5, time.Millisecond)

	cd.Start(context.Background())
	<-cd.Done()
	if cd.Err() != nil || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("err=%v calls=%d", cd.Err(), calls)
	}
}

func TestCountdownAlreadyFinalizedCountsAsDone(t *testing.T) {
	cd := NewCountdown(0, func(context.Context) error {
		return &client.APIError{Status: 409, Code: response.ErrAttemptAlreadyFinalized}
	}, 3, time.Millisecond)

	cd.Start(context.Background())
	<-cd.Done()
	if cd.Err() != nil {
		t.Fatalf("err = %v", cd.Err())
	}
}

func TestCountdownStop(t *testing.T) {
	var calls int32
	cd := NewCountdown(60, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, 1, 0)

	cd.Start(context.Background())
	if r := cd.Remaining(); r <= 59*time.Second || r > 60*time.Second {
		t.Fatalf("remaining = %v", r)
	}
	cd.Stop()
	cd.Stop()

	select {
	case <-cd.Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not end the countdown")
	}
	if !errors.Is(cd.Err(), context.Canceled) || atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("err=%v calls=%d", cd.Err(), calls)
	}
}
