package model

import (
	"time"

	"github.com/google/uuid"
)

// MonitorEventType tags a live attempt event.
type MonitorEventType string

const (
	MonitorAttemptStarted   MonitorEventType = "attempt_started"
	MonitorAnswersSaved     MonitorEventType = "answers_saved"
	MonitorAttemptFinalized MonitorEventType = "attempt_finalized"
)

// MonitorEvent is published on the exam's monitor channel.
type MonitorEvent struct {
	Type        MonitorEventType `json:"type"`
	AttemptID   uuid.UUID        `json:"attempt_id"`
	CandidateID int              `json:"candidate_id"`
	Status      AttemptStatus    `json:"status"`
	Answered    int              `json:"answered"`
	At          time.Time        `json:"at"`
}

// MonitorStats counts an exam's attempts by status.
type MonitorStats struct {
	InProgress int64 `json:"in_progress"`
	Submitted  int64 `json:"submitted"`
	Expired    int64 `json:"expired"`
}

// MonitorSnapshot is the first event of a monitor stream.
type MonitorSnapshot struct {
	Exam           ExamMetadata `json:"exam"`
	TotalQuestions int          `json:"total_questions"`
	Stats          MonitorStats `json:"stats"`
}
