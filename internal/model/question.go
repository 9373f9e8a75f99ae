package model

import (
	"github.com/google/uuid"
)

// Option is one selectable answer of a question.
// Value carries the raw Likert response for inventory items (PSS: 0–4).
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value int    `json:"value"`
}

// Question represents a single exam question.
type Question struct {
	ID            uuid.UUID `json:"id"`
	ExamID        uuid.UUID `json:"exam_id"`
	Ordinal       int       `json:"ordinal"`
	QuestionText  string    `json:"question_text"`
	Options       []Option  `json:"options"`
	CorrectOption string    `json:"correct_option,omitempty"`
	ReverseScored bool      `json:"reverse_scored"`
}

// FindOption returns the option with the given id.
func (q *Question) FindOption(id string) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// QuestionForStudent is a question without the correct answer, sent to candidates.
type QuestionForStudent struct {
	ID           uuid.UUID `json:"id"`
	Ordinal      int       `json:"ordinal"`
	QuestionText string    `json:"question_text"`
	Options      []Option  `json:"options"`
}
