package model

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates exam attempt states. NotStarted has no row.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
	AttemptStatusExpired    AttemptStatus = "expired"
)

// Final reports whether the status is terminal.
func (s AttemptStatus) Final() bool {
	return s == AttemptStatusSubmitted || s == AttemptStatusExpired
}

// AnswerMap maps question id → selected option id.
type AnswerMap map[string]string

// Clone returns a copy that can be mutated independently.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge writes every entry of next over m. Entries of m that next does not
// mention are kept, so merging never drops a recorded answer.
func (m AnswerMap) Merge(next AnswerMap) AnswerMap {
	if m == nil {
		m = make(AnswerMap, len(next))
	}
	for k, v := range next {
		m[k] = v
	}
	return m
}

// AnswerStamps maps question id → Unix millisecond time of the write that
// set its answer.
type AnswerStamps map[string]int64

// Older reports whether the entry recorded for qid was written before t. An
// entry without a stamp is older than any write.
func (s AnswerStamps) Older(qid string, t int64) bool {
	cur, ok := s[qid]
	return !ok || cur < t
}

// Clone returns a copy that can be mutated independently.
func (s AnswerStamps) Clone() AnswerStamps {
	out := make(AnswerStamps, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// MergeNewer writes the entries of next whose stamp is later than the one in
// stamps, and records the winning stamps. On a tie the entry in m stays.
func (m AnswerMap) MergeNewer(stamps AnswerStamps, next AnswerMap, nextStamps AnswerStamps) AnswerMap {
	if m == nil {
		m = make(AnswerMap, len(next))
	}
	for qid, optionID := range next {
		t := nextStamps[qid]
		if !stamps.Older(qid, t) {
			continue
		}
		m[qid] = optionID
		if stamps != nil {
			stamps[qid] = t
		}
	}
	return m
}

// StampAll stamps every entry of m with t.
func (m AnswerMap) StampAll(t time.Time) AnswerStamps {
	stamps := make(AnswerStamps, len(m))
	for qid := range m {
		stamps[qid] = t.UnixMilli()
	}
	return stamps
}

// ScoringFlags holds the SRQ-29 symptom flags of a finalized attempt.
type ScoringFlags struct {
	Anxiety   bool `json:"anxiety"`
	Substance bool `json:"substance"`
	Psychotic bool `json:"psychotic"`
	PTSD      bool `json:"ptsd"`
}

// Attempt represents one candidate's pass at one exam.
type Attempt struct {
	ID              uuid.UUID     `json:"id"`
	ExamID          uuid.UUID     `json:"exam_id"`
	CandidateID     int           `json:"candidate_id"`
	StartedAt       time.Time     `json:"started_at"`
	DurationSeconds int           `json:"duration_seconds"`
	Answers         AnswerMap     `json:"answers"`
	AnswerStamps    AnswerStamps  `json:"-"`
	Status          AttemptStatus `json:"status"`
	Score           *float64      `json:"score,omitempty"`
	Label           *string       `json:"classification_label,omitempty"`
	Flags           *ScoringFlags `json:"scoring_flags,omitempty"`
	ScoringError    *string       `json:"scoring_error,omitempty"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
}

// Deadline is the instant the time budget runs out.
func (a *Attempt) Deadline() time.Time {
	return a.StartedAt.Add(time.Duration(a.DurationSeconds) * time.Second)
}

// RemainingSeconds is derived from the stored start time, never stored.
// Terminal attempts have no remaining time.
func (a *Attempt) RemainingSeconds(now time.Time) int {
	if a.Status.Final() {
		return 0
	}
	remaining := a.Deadline().Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}

// AttemptCursor is a keyset position in the (started_at, id) order of attempts.
// The zero value sorts before every attempt.
type AttemptCursor struct {
	StartedAt time.Time
	ID        uuid.UUID
}

// Before reports whether c sorts strictly before o.
func (c AttemptCursor) Before(o AttemptCursor) bool {
	if !c.StartedAt.Equal(o.StartedAt) {
		return c.StartedAt.Before(o.StartedAt)
	}
	return bytes.Compare(c.ID[:], o.ID[:]) < 0
}

// ExpiryPage reports one page of an overdue sweep. Listed counts every
// attempt the page visited, including ones that failed to expire.
type ExpiryPage struct {
	Expired int
	Listed  int
	Next    AttemptCursor
}

// Finalization is the write-once payload applied when an attempt leaves in_progress.
type Finalization struct {
	Status       AttemptStatus
	Answers      AnswerMap
	Score        *float64
	Label        *string
	Flags        *ScoringFlags
	ScoringError *string
	FinishedAt   time.Time
}

// Apply copies the finalization onto the attempt.
func (f *Finalization) Apply(a *Attempt) {
	finished := f.FinishedAt
	a.Status = f.Status
	a.Answers = f.Answers
	a.Score = f.Score
	a.Label = f.Label
	a.Flags = f.Flags
	a.ScoringError = f.ScoringError
	a.FinishedAt = &finished
}

// AutosaveRequest is the payload of an autosave call.
type AutosaveRequest struct {
	Answers AnswerMap `json:"answers" binding:"required,max=500"`
}

// SubmitRequest is the payload of a submit call.
type SubmitRequest struct {
	Answers   AnswerMap `json:"answers" binding:"omitempty,max=500"`
	Automatic bool      `json:"automatic"`
}

// AttemptResult is the scoring outcome of a finalized attempt.
type AttemptResult struct {
	AttemptID    uuid.UUID     `json:"attempt_id"`
	Status       AttemptStatus `json:"status"`
	Score        *float64      `json:"score"`
	Label        *string       `json:"classification_label"`
	Description  string        `json:"description,omitempty"`
	Flags        *ScoringFlags `json:"scoring_flags,omitempty"`
	ScoringError *string       `json:"scoring_error,omitempty"`
	FinishedAt   *time.Time    `json:"finished_at"`
}

// Result builds the result view of a finalized attempt.
func (a *Attempt) Result() *AttemptResult {
	return &AttemptResult{
		AttemptID:    a.ID,
		Status:       a.Status,
		Score:        a.Score,
		Label:        a.Label,
		Flags:        a.Flags,
		ScoringError: a.ScoringError,
		FinishedAt:   a.FinishedAt,
	}
}

// AttemptState is what a candidate client needs to render or resume an attempt.
type AttemptState struct {
	AttemptID        uuid.UUID            `json:"attempt_id"`
	Status           AttemptStatus        `json:"status"`
	StartedAt        time.Time            `json:"started_at"`
	RemainingSeconds int                  `json:"remaining_seconds"`
	Answers          AnswerMap            `json:"answers"`
	Exam             ExamMetadata         `json:"exam"`
	Questions        []QuestionForStudent `json:"questions"`
	Result           *AttemptResult       `json:"result,omitempty"`
}

// AutosaveResult acknowledges an autosave write.
type AutosaveResult struct {
	Accepted         bool `json:"accepted"`
	Saved            int  `json:"saved"`
	RemainingSeconds int  `json:"remaining_seconds"`
}
