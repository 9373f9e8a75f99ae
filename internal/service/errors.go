package service

import (
	"errors"
	"fmt"
)

// Attempt lifecycle errors.
var (
	ErrExamNotAvailable        = errors.New("exam is not available")
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptAlreadyFinalized = errors.New("attempt is already finalized")
	ErrAttemptForbidden        = errors.New("attempt belongs to another candidate")
	ErrAttemptStillRunning     = errors.New("attempt deadline has not been reached")
	ErrInvalidAccessCode       = errors.New("invalid access code")
	ErrUnknownQuestion         = errors.New("unknown question")
	ErrInvalidOption           = errors.New("invalid option")
	ErrAnswerBufferUnavailable = errors.New("answer buffer is unavailable")
)

// IncompleteSubmissionError rejects a manual submission of an exam that
// requires every question to be answered.
type IncompleteSubmissionError struct {
	Unanswered int
}

func (e *IncompleteSubmissionError) Error() string {
	return fmt.Sprintf("%d question(s) unanswered", e.Unanswered)
}
