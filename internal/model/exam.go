package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// ExamType selects how a finalized attempt is scored.
type ExamType string

const (
	ExamTypeGeneral ExamType = "general"
	ExamTypeMMPI    ExamType = "mmpi"
	ExamTypePSS     ExamType = "pss"
	ExamTypeSRQ29   ExamType = "srq29"
)

// Scored reports whether attempts of this type get a score at finalization.
func (t ExamType) Scored() bool {
	switch t {
	case ExamTypeGeneral, ExamTypePSS, ExamTypeSRQ29:
		return true
	}
	return false
}

// DisplayMode is a rendering hint passed through to the candidate client.
type DisplayMode string

const (
	DisplayModeSingle DisplayMode = "single"
	DisplayModeList   DisplayMode = "list"
)

// Exam represents an exam definition.
type Exam struct {
	ID                uuid.UUID   `json:"id"`
	Title             string      `json:"title"`
	ExamType          ExamType    `json:"exam_type"`
	DurationMinutes   int         `json:"duration_minutes"`
	RequireAllAnswers bool        `json:"require_all_answers"`
	DisplayMode       DisplayMode `json:"display_mode"`
	Status            ExamStatus  `json:"status"`
	AccessCodeHash    *string     `json:"-"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// DurationSeconds is the time budget copied onto a new attempt.
func (e *Exam) DurationSeconds() int {
	return e.DurationMinutes * 60
}

// ExamMetadata is the subset of an exam the candidate client needs.
type ExamMetadata struct {
	ExamID            uuid.UUID   `json:"exam_id"`
	Title             string      `json:"title"`
	DurationMinutes   int         `json:"duration_minutes"`
	ExamType          ExamType    `json:"exam_type"`
	RequireAllAnswers bool        `json:"require_all_answers"`
	DisplayMode       DisplayMode `json:"display_mode"`
}

// Metadata builds the candidate-facing metadata of the exam.
func (e *Exam) Metadata() ExamMetadata {
	return ExamMetadata{
		ExamID:            e.ID,
		Title:             e.Title,
		DurationMinutes:   e.DurationMinutes,
		ExamType:          e.ExamType,
		RequireAllAnswers: e.RequireAllAnswers,
		DisplayMode:       e.DisplayMode,
	}
}

// ExamPaper is the Redis-cached paper sent to candidates (no answer key).
type ExamPaper struct {
	Exam      ExamMetadata         `json:"exam"`
	Questions []QuestionForStudent `json:"questions"`
}

// BeginAttemptRequest is the payload for starting or resuming an attempt.
type BeginAttemptRequest struct {
	AccessCode string `json:"access_code" binding:"omitempty,max=64"`
}
